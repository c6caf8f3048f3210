// Package oracle ingests external price observations and turns them into
// validated engine-scale triples. The engine trusts feed authenticity
// (signatures are verified upstream) but independently checks the feed
// identifier, staleness, and confidence scaling here.
package oracle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
)

var (
	// ErrStale means the observation's publish time is older than the
	// market's staleness bound. Never retried; the caller resubmits.
	ErrStale = errors.New("stale oracle")

	// ErrInvalid covers feed mismatch, future timestamps, zero prices, and
	// malformed fallback input.
	ErrInvalid = errors.New("invalid oracle input")
)

// PriceUpdate is an externally-signed price-feed record in its native
// representation: an exponent-scaled mantissa plus a confidence interval.
type PriceUpdate struct {
	FeedID      common.Hash
	Price       int64
	Conf        uint64
	Exponent    int32
	PublishTime int64
}

// Fallback is a caller-supplied observation used when no signed feed record
// accompanies the call. A zero price marks the fallback as absent.
type Fallback struct {
	Price       uint64 // already at engine scale
	Conf        uint64 // already at engine scale
	PublishTime int64  // zero means "now"
}

// Observation is a validated (price, confidence, publish time) triple at the
// engine's internal price scale.
type Observation struct {
	Price       uint64
	Conf        uint64
	PublishTime int64
}

// Read validates and normalizes a price source. If update is non-nil it must
// match the expected feed; otherwise the fallback is used and must carry a
// non-zero price. The price rounds down and the confidence rounds up during
// scale conversion so the engine never understates uncertainty.
func Read(expectedFeed common.Hash, update *PriceUpdate, fb Fallback, now, maxStalenessSec int64) (Observation, error) {
	if update == nil {
		if fb.Price == 0 {
			return Observation{}, fmt.Errorf("%w: fallback price is zero", ErrInvalid)
		}
		publishTime := fb.PublishTime
		if publishTime <= 0 {
			publishTime = now
		}
		if err := checkAge(now, publishTime, maxStalenessSec); err != nil {
			return Observation{}, err
		}
		return Observation{Price: fb.Price, Conf: fb.Conf, PublishTime: publishTime}, nil
	}

	if update.FeedID != expectedFeed {
		return Observation{}, fmt.Errorf("%w: feed %s does not match expected %s",
			ErrInvalid, update.FeedID.Hex(), expectedFeed.Hex())
	}
	if err := checkAge(now, update.PublishTime, maxStalenessSec); err != nil {
		return Observation{}, err
	}

	price, err := fixedpoint.ScalePrice(update.Price, update.Exponent)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: scale price: %v", ErrInvalid, err)
	}
	conf, err := fixedpoint.ScaleConf(update.Conf, update.Exponent)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: scale confidence: %v", ErrInvalid, err)
	}
	return Observation{Price: price, Conf: conf, PublishTime: update.PublishTime}, nil
}

func checkAge(now, publishTime, maxStalenessSec int64) error {
	age := now - publishTime
	if age < 0 {
		return fmt.Errorf("%w: publish time %d is in the future", ErrInvalid, publishTime)
	}
	if age > maxStalenessSec {
		return fmt.Errorf("%w: observation is %ds old, max %ds", ErrStale, age, maxStalenessSec)
	}
	return nil
}
