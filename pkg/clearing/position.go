package clearing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position tracks a trader's exposure in one market as two independent legs.
// Opening exposure always grows a leg; the engine never nets long against
// short automatically, so both legs can be non-zero at once.
//
// Entry notionals and funding indices exceed 64 bits at engine scale, so
// they are kept as big integers, mirroring the rest of the high-precision
// engine state.
type Position struct {
	Owner    common.Address
	MarketID uint64

	LongQty            uint64
	LongEntryNotional  *big.Int
	ShortQty           uint64
	ShortEntryNotional *big.Int

	// Last-settled cumulative funding index per leg. Advanced on every
	// settlement, including for empty legs, so a freshly opened leg never
	// owes funding accrued before it existed.
	LastFundingIndexLong  *big.Int
	LastFundingIndexShort *big.Int

	Version uint64 `json:"version"` // ledger record version
}

// NewPosition creates an empty position whose funding marks start at the
// market's current index.
func NewPosition(owner common.Address, marketID uint64, fundingIndex *big.Int) *Position {
	return &Position{
		Owner:                 owner,
		MarketID:              marketID,
		LongEntryNotional:     new(big.Int),
		ShortEntryNotional:    new(big.Int),
		LastFundingIndexLong:  new(big.Int).Set(fundingIndex),
		LastFundingIndexShort: new(big.Int).Set(fundingIndex),
	}
}

// normalize replaces nil big fields left behind by JSON decoding.
func (p *Position) normalize() {
	if p.LongEntryNotional == nil {
		p.LongEntryNotional = new(big.Int)
	}
	if p.ShortEntryNotional == nil {
		p.ShortEntryNotional = new(big.Int)
	}
	if p.LastFundingIndexLong == nil {
		p.LastFundingIndexLong = new(big.Int)
	}
	if p.LastFundingIndexShort == nil {
		p.LastFundingIndexShort = new(big.Int)
	}
}

// legFor maps a trade side to the leg it grows.
func legFor(side Side) PositionLeg {
	if side == Buy {
		return LegLong
	}
	return LegShort
}

// closingLegFor maps a reduce-only trade side to the leg it shrinks: a buy
// closes short exposure, a sell closes long exposure.
func closingLegFor(side Side) PositionLeg {
	if side == Buy {
		return LegShort
	}
	return LegLong
}

// applyFill grows the leg matching the trade side by qty and notional.
func (p *Position) applyFill(side Side, qty, notional uint64) error {
	switch legFor(side) {
	case LegLong:
		newQty := p.LongQty + qty
		if newQty < p.LongQty {
			return ErrMathOverflow
		}
		p.LongQty = newQty
		p.LongEntryNotional.Add(p.LongEntryNotional, new(big.Int).SetUint64(notional))
	case LegShort:
		newQty := p.ShortQty + qty
		if newQty < p.ShortQty {
			return ErrMathOverflow
		}
		p.ShortQty = newQty
		p.ShortEntryNotional.Add(p.ShortEntryNotional, new(big.Int).SetUint64(notional))
	}
	return nil
}

// reduce shrinks a leg by closeQty and removes the proportional share of its
// entry notional (truncated), preserving the leg's average entry price
// across partial closes. Returns the removed notional.
func (p *Position) reduce(leg PositionLeg, closeQty uint64) (uint64, error) {
	qty, notional := p.LongQty, p.LongEntryNotional
	if leg == LegShort {
		qty, notional = p.ShortQty, p.ShortEntryNotional
	}

	if closeQty > qty {
		return 0, fmt.Errorf("%w: close %d exceeds leg qty %d", ErrInvalidCloseQty, closeQty, qty)
	}
	if qty == 0 {
		return 0, ErrMathOverflow
	}

	// removed = entryNotional * closeQty / qty, truncated
	removed := new(big.Int).Mul(notional, new(big.Int).SetUint64(closeQty))
	removed.Div(removed, new(big.Int).SetUint64(qty))
	if !removed.IsUint64() {
		return 0, ErrMathOverflow
	}
	removedU64 := removed.Uint64()

	notional.Sub(notional, removed)
	if leg == LegLong {
		p.LongQty -= closeQty
	} else {
		p.ShortQty -= closeQty
	}
	return removedU64, nil
}

// IsFlat reports whether both legs are empty.
func (p *Position) IsFlat() bool {
	return p.LongQty == 0 && p.ShortQty == 0
}
