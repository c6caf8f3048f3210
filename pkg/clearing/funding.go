package clearing

import (
	"math/big"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

// FundingState is the per-market funding record: a cumulative index, the
// open interest and skew it is derived from, and the local halt flag set
// when the insurance backstop fails. Once halted it stays halted until
// external remediation.
//
// The index is a running integral at FundingScale precision; it grows
// without bound over time. Only its rate of change is capped.
type FundingState struct {
	MarketID     uint64
	FundingIndex *big.Int
	LastUpdateTS int64
	OpenInterest uint64   // total open notional
	Skew         *big.Int // long minus short notional, signed
	Halted       bool

	Version uint64 `json:"version"` // ledger record version
}

// NewFundingState creates the funding record at market activation.
func NewFundingState(marketID uint64, now int64) *FundingState {
	return &FundingState{
		MarketID:     marketID,
		FundingIndex: new(big.Int),
		LastUpdateTS: now,
		Skew:         new(big.Int),
	}
}

func (fs *FundingState) normalize() {
	if fs.FundingIndex == nil {
		fs.FundingIndex = new(big.Int)
	}
	if fs.Skew == nil {
		fs.Skew = new(big.Int)
	}
}

// updateIndex accrues the funding index up to now. The premium is the skew
// as bps of the OI cap, clamped to +/- PremiumClampBps; the resulting index
// delta is additionally bounded by the velocity cap scaled to the elapsed
// time, so the index can never move faster than
// FundingVelocityCapBpsPerDay regardless of the premium.
func (fs *FundingState) updateIndex(now int64, params market.FundingParams, oiCap uint64) error {
	if params.IntervalSec <= 0 {
		return ErrInvalidAmount
	}
	if now <= fs.LastUpdateTS {
		return nil
	}
	elapsed := now - fs.LastUpdateTS

	premiumBps := new(big.Int)
	if oiCap != 0 {
		premiumBps.Mul(fs.Skew, big.NewInt(int64(fixedpoint.BpsDenom)))
		premiumBps.Quo(premiumBps, new(big.Int).SetUint64(oiCap))
	}

	clamp := big.NewInt(params.PremiumClampBps)
	clamped := clampBig(premiumBps, clamp)

	// velocityBound = capPerDay * elapsed / 86400, then scaled
	velocityBound := new(big.Int).Mul(big.NewInt(params.FundingVelocityCapBpsPerDay), big.NewInt(elapsed))
	velocityBound.Quo(velocityBound, big.NewInt(86_400))
	maxScaled := velocityBound.Mul(velocityBound, big.NewInt(fixedpoint.FundingScale))

	// delta = clampedPremium * FundingScale * elapsed / intervalSec
	delta := new(big.Int).Mul(clamped, big.NewInt(fixedpoint.FundingScale))
	delta.Mul(delta, big.NewInt(elapsed))
	delta.Quo(delta, big.NewInt(params.IntervalSec))
	delta = clampBig(delta, maxScaled)

	fs.FundingIndex.Add(fs.FundingIndex, delta)
	fs.LastUpdateTS = now
	return nil
}

// settleFunding charges or credits a position's funding obligation against
// the margin account. A rising index means longs pay and shorts receive.
// Credits are overflow-checked; debits saturate at a zero balance, one of
// the two deliberately saturating paths in the engine. Both legs' marks are
// advanced to the current index even when a leg is empty.
func settleFunding(pos *Position, fs *FundingState, acct *MarginAccount) error {
	deltaLong := new(big.Int).Sub(fs.FundingIndex, pos.LastFundingIndexLong)
	deltaShort := new(big.Int).Sub(fs.FundingIndex, pos.LastFundingIndexShort)

	scale := big.NewInt(fixedpoint.FundingScale)

	longPayment := new(big.Int).Mul(new(big.Int).SetUint64(pos.LongQty), deltaLong)
	longPayment.Quo(longPayment, scale)

	shortPayment := new(big.Int).Mul(new(big.Int).SetUint64(pos.ShortQty), deltaShort)
	shortPayment.Quo(shortPayment, scale)

	netDelta := new(big.Int).Sub(shortPayment, longPayment)

	if netDelta.Sign() >= 0 {
		if !netDelta.IsUint64() {
			return ErrMathOverflow
		}
		credited, err := fixedpoint.CheckedAdd(acct.CollateralBalance, netDelta.Uint64())
		if err != nil {
			return err
		}
		acct.CollateralBalance = credited
	} else {
		debit := new(big.Int).Neg(netDelta)
		if !debit.IsUint64() || debit.Uint64() > acct.CollateralBalance {
			acct.CollateralBalance = 0
		} else {
			acct.CollateralBalance -= debit.Uint64()
		}
	}

	pos.LastFundingIndexLong.Set(fs.FundingIndex)
	pos.LastFundingIndexShort.Set(fs.FundingIndex)
	return nil
}

// clampBig returns v clamped to [-bound, bound]. bound must be >= 0.
func clampBig(v, bound *big.Int) *big.Int {
	negBound := new(big.Int).Neg(bound)
	if v.Cmp(bound) > 0 {
		return new(big.Int).Set(bound)
	}
	if v.Cmp(negBound) < 0 {
		return negBound
	}
	return v
}
