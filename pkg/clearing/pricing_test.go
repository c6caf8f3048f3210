package clearing

import (
	"errors"
	"math/big"
	"testing"

	"github.com/coldbell/clearing/pkg/clearing/market"
	"github.com/coldbell/clearing/pkg/clearing/oracle"
)

var testPricing = market.PricingParams{
	BaseSpreadBps:         5,
	SkewCoeffBps:          50,
	MaxFillDeviationBps:   100,
	MaxOracleStalenessSec: 30,
	MaxConfBps:            100,
}

func TestValidateOracleBoundsConfWidth(t *testing.T) {
	price := uint64(50_000_000)

	// 100 bps of 50_000_000 is 500_000: exactly at the cap passes.
	obs := oracle.Observation{Price: price, Conf: 500_000}
	if err := validateOracleBounds(obs, price, testPricing); err != nil {
		t.Errorf("conf at cap: %v", err)
	}

	obs.Conf = 750_000 // 150 bps
	err := validateOracleBounds(obs, price, testPricing)
	if !errors.Is(err, ErrConfTooWide) {
		t.Errorf("conf above cap: got %v, want ErrConfTooWide", err)
	}
}

func TestValidateOracleBoundsDeviation(t *testing.T) {
	obs := oracle.Observation{Price: 50_000_000, Conf: 0}

	// Deviation is measured in whole bps with truncation, so anything that
	// floors to 100 bps passes; the first rejected deviation is 101 bps.
	for _, fill := range []uint64{50_000_000, 50_500_000, 50_504_999, 49_500_000, 49_495_001} {
		if err := validateOracleBounds(obs, fill, testPricing); err != nil {
			t.Errorf("fill %d within deviation: %v", fill, err)
		}
	}
	for _, fill := range []uint64{50_505_000, 49_495_000} {
		if err := validateOracleBounds(obs, fill, testPricing); !errors.Is(err, ErrFillDeviation) {
			t.Errorf("fill %d: got %v, want ErrFillDeviation", fill, err)
		}
	}
}

func TestValidateImpactPriceBands(t *testing.T) {
	oraclePrice := uint64(50_000_000)
	// skew ratio = 500_000*10000/1_000_000 = 5000 bps
	// impact = 5 + 50*5000/10000 = 30 bps
	skew := big.NewInt(500_000)
	oi := uint64(1_000_000)

	upper := oraclePrice * (10_000 + 30) / 10_000 // 50_150_000
	lower := oraclePrice * (10_000 - 30) / 10_000 // 49_850_000

	if err := validateImpactPrice(Buy, upper, oraclePrice, skew, oi, testPricing); err != nil {
		t.Errorf("buy at impact price: %v", err)
	}
	if err := validateImpactPrice(Buy, upper-1, oraclePrice, skew, oi, testPricing); !errors.Is(err, ErrImpactPrice) {
		t.Errorf("buy below impact price: got %v", err)
	}
	if err := validateImpactPrice(Sell, lower, oraclePrice, skew, oi, testPricing); err != nil {
		t.Errorf("sell at impact price: %v", err)
	}
	if err := validateImpactPrice(Sell, lower+1, oraclePrice, skew, oi, testPricing); !errors.Is(err, ErrImpactPrice) {
		t.Errorf("sell above impact price: got %v", err)
	}
}

func TestValidateImpactPriceZeroOpenInterest(t *testing.T) {
	// Zero projected OI means zero skew ratio: only the base spread applies.
	oraclePrice := uint64(50_000_000)
	upper := oraclePrice * (10_000 + 5) / 10_000

	if err := validateImpactPrice(Buy, upper, oraclePrice, big.NewInt(0), 0, testPricing); err != nil {
		t.Errorf("buy at base spread with zero oi: %v", err)
	}
	if err := validateImpactPrice(Buy, oraclePrice, oraclePrice, big.NewInt(0), 0, testPricing); !errors.Is(err, ErrImpactPrice) {
		t.Errorf("buy at oracle with zero oi: got %v", err)
	}
}

func TestValidateImpactPriceRejectsSaturatedBand(t *testing.T) {
	params := testPricing
	params.BaseSpreadBps = 9_999
	params.SkewCoeffBps = 10_000

	// impact = 9999 + 10000*10000/10000 >= 10000
	err := validateImpactPrice(Buy, 60_000_000, 50_000_000, big.NewInt(1_000_000), 1_000_000, params)
	if !errors.Is(err, ErrImpactPrice) {
		t.Errorf("saturated impact band: got %v", err)
	}
}

func TestValidateLimitPrice(t *testing.T) {
	if err := validateLimitPrice(Buy, 0, 50); !errors.Is(err, ErrInvalidLimitPrice) {
		t.Errorf("zero limit: got %v", err)
	}
	if err := validateLimitPrice(Buy, 100, 100); err != nil {
		t.Errorf("buy at limit: %v", err)
	}
	if err := validateLimitPrice(Buy, 100, 101); !errors.Is(err, ErrLimitPrice) {
		t.Errorf("buy above limit: got %v", err)
	}
	if err := validateLimitPrice(Sell, 100, 100); err != nil {
		t.Errorf("sell at limit: %v", err)
	}
	if err := validateLimitPrice(Sell, 100, 99); !errors.Is(err, ErrLimitPrice) {
		t.Errorf("sell below limit: got %v", err)
	}
}
