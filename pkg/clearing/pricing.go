package clearing

import (
	"fmt"
	"math/big"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
	"github.com/coldbell/clearing/pkg/clearing/oracle"
)

// validateOracleBounds checks a proposed fill against a validated oracle
// observation: the confidence interval must be narrow enough, and the fill
// may not deviate from the oracle price by more than the market allows.
func validateOracleBounds(obs oracle.Observation, fillPrice uint64, pricing market.PricingParams) error {
	confBps, err := fixedpoint.MulDiv(obs.Conf, fixedpoint.BpsDenom, obs.Price)
	if err != nil {
		return err
	}
	if confBps > uint64(pricing.MaxConfBps) {
		return fmt.Errorf("%w: %d bps exceeds max %d", ErrConfTooWide, confBps, pricing.MaxConfBps)
	}

	deviation := fixedpoint.AbsDiff(fillPrice, obs.Price)
	deviationBps, err := fixedpoint.MulDiv(deviation, fixedpoint.BpsDenom, obs.Price)
	if err != nil {
		return err
	}
	if deviationBps > uint64(pricing.MaxFillDeviationBps) {
		return fmt.Errorf("%w: %d bps exceeds max %d", ErrFillDeviation, deviationBps, pricing.MaxFillDeviationBps)
	}
	return nil
}

// validateImpactPrice enforces the minimum price-impact band for trades that
// add exposure. The band widens with the post-trade skew ratio; buys must
// fill at or above the impact-adjusted price, sells at or below, so an
// executor can never fill in the trader's favor relative to fair impact.
func validateImpactPrice(side Side, fillPrice, oraclePrice uint64, projectedSkew *big.Int, projectedOI uint64, pricing market.PricingParams) error {
	var skewRatioBps uint64
	if projectedOI != 0 {
		absSkew := new(big.Int).Abs(projectedSkew)
		ratio := new(big.Int).Mul(absSkew, new(big.Int).SetUint64(fixedpoint.BpsDenom))
		ratio.Quo(ratio, new(big.Int).SetUint64(projectedOI))
		if !ratio.IsUint64() {
			return ErrMathOverflow
		}
		skewRatioBps = ratio.Uint64()
	}

	skewImpact, err := fixedpoint.MulDiv(uint64(pricing.SkewCoeffBps), skewRatioBps, fixedpoint.BpsDenom)
	if err != nil {
		return err
	}
	impactBps, err := fixedpoint.CheckedAdd(uint64(pricing.BaseSpreadBps), skewImpact)
	if err != nil {
		return err
	}
	if impactBps >= fixedpoint.BpsDenom {
		return fmt.Errorf("%w: impact %d bps out of range", ErrImpactPrice, impactBps)
	}

	upper, err := fixedpoint.MulDiv(oraclePrice, fixedpoint.BpsDenom+impactBps, fixedpoint.BpsDenom)
	if err != nil {
		return err
	}
	lower, err := fixedpoint.MulDiv(oraclePrice, fixedpoint.BpsDenom-impactBps, fixedpoint.BpsDenom)
	if err != nil {
		return err
	}

	switch side {
	case Buy:
		if fillPrice < upper {
			return fmt.Errorf("%w: buy fill %d below impact price %d", ErrImpactPrice, fillPrice, upper)
		}
	case Sell:
		if fillPrice > lower {
			return fmt.Errorf("%w: sell fill %d above impact price %d", ErrImpactPrice, fillPrice, lower)
		}
	}
	return nil
}

// validateLimitPrice checks fill-vs-limit compliance for both order types.
func validateLimitPrice(side Side, limitPrice, fillPrice uint64) error {
	if limitPrice == 0 {
		return ErrInvalidLimitPrice
	}
	switch side {
	case Buy:
		if fillPrice > limitPrice {
			return fmt.Errorf("%w: buy fill %d above limit %d", ErrLimitPrice, fillPrice, limitPrice)
		}
	case Sell:
		if fillPrice < limitPrice {
			return fmt.Errorf("%w: sell fill %d below limit %d", ErrLimitPrice, fillPrice, limitPrice)
		}
	}
	return nil
}
