// Package fixedpoint provides overflow-checked integer arithmetic for the
// clearing engine. All prices and notionals are unsigned integers at a fixed
// internal scale; every multiply/divide that could exceed 64 bits goes
// through 256-bit intermediates and fails loudly instead of wrapping.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// PriceScale is the internal fixed-point scale for prices.
	// A feed price of $50.00 becomes 50_000_000 engine units.
	PriceScale = uint64(1_000_000)

	// FundingScale is the precision of the cumulative funding index.
	FundingScale = int64(1_000_000_000)

	// BpsDenom is the basis-point denominator (10000 bps = 100%).
	BpsDenom = uint64(10_000)
)

// ErrOverflow is returned by any checked computation whose result does not
// fit the target width. Operations never silently saturate.
var ErrOverflow = errors.New("math overflow")

// MulBps returns value * bps / 10000, computed at 128-bit width.
func MulBps(value, bps uint64) (uint64, error) {
	return MulDiv(value, bps, BpsDenom)
}

// MulDiv returns value * mul / div with a 256-bit intermediate product.
// Fails with ErrOverflow if div is zero or the quotient exceeds 64 bits.
func MulDiv(value, mul, div uint64) (uint64, error) {
	if div == 0 {
		return 0, ErrOverflow
	}
	product := new(uint256.Int).Mul(
		uint256.NewInt(value),
		uint256.NewInt(mul),
	)
	quotient := product.Div(product, uint256.NewInt(div))
	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// AbsDiff returns |a - b| for unsigned operands.
func AbsDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrOverflow on underflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// ScalePrice converts an exponent-scaled feed price to the internal price
// scale, rounding down. Feed prices carry a signed mantissa and a decimal
// exponent, e.g. price=5000000123, exponent=-8 means $50.00000123.
func ScalePrice(price int64, exponent int32) (uint64, error) {
	if price <= 0 {
		return 0, ErrOverflow
	}
	scaled, err := scaleUnsigned(uint64(price), exponent, false)
	if err != nil {
		return 0, err
	}
	if scaled == 0 {
		return 0, ErrOverflow
	}
	return scaled, nil
}

// ScaleConf converts an exponent-scaled confidence interval to the internal
// price scale, rounding up so the stated uncertainty is never narrowed.
func ScaleConf(conf uint64, exponent int32) (uint64, error) {
	return scaleUnsigned(conf, exponent, true)
}

func scaleUnsigned(value uint64, exponent int32, ceil bool) (uint64, error) {
	out := new(uint256.Int).Mul(uint256.NewInt(value), uint256.NewInt(PriceScale))

	if exponent >= 0 {
		power, err := pow10(uint32(exponent))
		if err != nil {
			return 0, err
		}
		var overflow bool
		out, overflow = new(uint256.Int).MulOverflow(out, power)
		if overflow || !out.IsUint64() {
			return 0, ErrOverflow
		}
		return out.Uint64(), nil
	}

	divisor, err := pow10(uint32(-exponent))
	if err != nil {
		return 0, err
	}
	if ceil {
		// ceil(n/d) = (n + d - 1) / d
		out.Add(out, new(uint256.Int).Sub(divisor, uint256.NewInt(1)))
	}
	out.Div(out, divisor)
	if !out.IsUint64() {
		return 0, ErrOverflow
	}
	return out.Uint64(), nil
}

func pow10(power uint32) (*uint256.Int, error) {
	if power > 77 { // 10^78 exceeds 256 bits
		return nil, ErrOverflow
	}
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint32(0); i < power; i++ {
		result.Mul(result, ten)
	}
	return result, nil
}
