package clearing

import (
	"math/big"
	"testing"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

var testFundingParams = market.FundingParams{
	IntervalSec:                 3_600,
	FundingVelocityCapBpsPerDay: 4_800,
	PremiumClampBps:             100,
}

func TestUpdateIndexNoOpWhenClockDoesNotAdvance(t *testing.T) {
	fs := NewFundingState(1, 1_000)
	fs.Skew.SetInt64(500_000)

	for _, now := range []int64{1_000, 999} {
		if err := fs.updateIndex(now, testFundingParams, 1_000_000); err != nil {
			t.Fatalf("updateIndex(%d): %v", now, err)
		}
		if fs.FundingIndex.Sign() != 0 {
			t.Errorf("index moved on now=%d: %s", now, fs.FundingIndex)
		}
		if fs.LastUpdateTS != 1_000 {
			t.Errorf("last update moved backwards: %d", fs.LastUpdateTS)
		}
	}
}

func TestUpdateIndexPremiumClamp(t *testing.T) {
	fs := NewFundingState(1, 0)
	// Raw premium = 500_000 * 10000 / 1_000_000 = 5000 bps, clamped to 100.
	fs.Skew.SetInt64(500_000)

	if err := fs.updateIndex(3_600, testFundingParams, 1_000_000); err != nil {
		t.Fatalf("updateIndex: %v", err)
	}

	// One full interval at the clamped premium: 100 bps * FundingScale.
	want := new(big.Int).Mul(big.NewInt(100), big.NewInt(fixedpoint.FundingScale))
	if fs.FundingIndex.Cmp(want) != 0 {
		t.Errorf("index = %s, want %s", fs.FundingIndex, want)
	}
}

// The index can never move faster than the velocity cap, regardless of the
// premium clamp or skew ratio.
func TestUpdateIndexVelocityBound(t *testing.T) {
	params := market.FundingParams{
		IntervalSec:                 3_600,
		FundingVelocityCapBpsPerDay: 4_800,
		PremiumClampBps:             10_000, // effectively unclamped
	}

	cases := []struct {
		name    string
		skew    int64
		elapsed int64
	}{
		{"extreme long skew one interval", 1_000_000, 3_600},
		{"extreme short skew one interval", -1_000_000, 3_600},
		{"extreme skew one second", 1_000_000, 1},
		{"extreme skew one day", 1_000_000, 86_400},
		{"mild skew", 10_000, 3_600},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := NewFundingState(1, 0)
			fs.Skew.SetInt64(tc.skew)

			if err := fs.updateIndex(tc.elapsed, params, 1_000_000); err != nil {
				t.Fatalf("updateIndex: %v", err)
			}

			bound := new(big.Int).Mul(big.NewInt(params.FundingVelocityCapBpsPerDay), big.NewInt(tc.elapsed))
			bound.Quo(bound, big.NewInt(86_400))
			bound.Mul(bound, big.NewInt(fixedpoint.FundingScale))

			if new(big.Int).Abs(fs.FundingIndex).Cmp(bound) > 0 {
				t.Errorf("|index delta| %s exceeds velocity bound %s", fs.FundingIndex, bound)
			}
		})
	}
}

func TestUpdateIndexZeroOICap(t *testing.T) {
	fs := NewFundingState(1, 0)
	fs.Skew.SetInt64(500_000)

	if err := fs.updateIndex(3_600, testFundingParams, 0); err != nil {
		t.Fatalf("updateIndex: %v", err)
	}
	if fs.FundingIndex.Sign() != 0 {
		t.Errorf("zero oi cap must yield zero premium, got index %s", fs.FundingIndex)
	}
}

// A rising index charges longs and credits shorts.
func TestSettleFundingSignConvention(t *testing.T) {
	index := new(big.Int).Mul(big.NewInt(10), big.NewInt(fixedpoint.FundingScale))

	long := NewPosition(testAddr(1), 1, big.NewInt(0))
	if err := long.applyFill(Buy, 2_000, 100_000); err != nil {
		t.Fatal(err)
	}
	short := NewPosition(testAddr(2), 1, big.NewInt(0))
	if err := short.applyFill(Sell, 2_000, 100_000); err != nil {
		t.Fatal(err)
	}

	fs := NewFundingState(1, 0)
	fs.FundingIndex.Set(index)

	longAcct := &MarginAccount{Owner: testAddr(1), CollateralBalance: 100_000}
	if err := settleFunding(long, fs, longAcct); err != nil {
		t.Fatalf("settle long: %v", err)
	}
	// payment = 2000 * 10*scale / scale = 20_000, debited
	if longAcct.CollateralBalance != 80_000 {
		t.Errorf("long balance = %d, want 80000", longAcct.CollateralBalance)
	}

	shortAcct := &MarginAccount{Owner: testAddr(2), CollateralBalance: 100_000}
	if err := settleFunding(short, fs, shortAcct); err != nil {
		t.Fatalf("settle short: %v", err)
	}
	if shortAcct.CollateralBalance != 120_000 {
		t.Errorf("short balance = %d, want 120000", shortAcct.CollateralBalance)
	}
}

// Funding debits saturate at zero instead of underflowing.
func TestSettleFundingDebitSaturates(t *testing.T) {
	index := new(big.Int).Mul(big.NewInt(100), big.NewInt(fixedpoint.FundingScale))

	pos := NewPosition(testAddr(1), 1, big.NewInt(0))
	if err := pos.applyFill(Buy, 2_000, 100_000); err != nil {
		t.Fatal(err)
	}
	fs := NewFundingState(1, 0)
	fs.FundingIndex.Set(index)

	acct := &MarginAccount{Owner: testAddr(1), CollateralBalance: 50}
	if err := settleFunding(pos, fs, acct); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if acct.CollateralBalance != 0 {
		t.Errorf("balance = %d, want saturation at 0", acct.CollateralBalance)
	}
}

// Both legs' marks advance on every settlement, including empty legs, so a
// freshly opened leg never owes funding accrued before it existed.
func TestSettleFundingAdvancesEmptyLegMarks(t *testing.T) {
	index := new(big.Int).Mul(big.NewInt(7), big.NewInt(fixedpoint.FundingScale))

	pos := NewPosition(testAddr(1), 1, big.NewInt(0))
	fs := NewFundingState(1, 0)
	fs.FundingIndex.Set(index)

	acct := &MarginAccount{Owner: testAddr(1), CollateralBalance: 1_000}
	if err := settleFunding(pos, fs, acct); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if acct.CollateralBalance != 1_000 {
		t.Errorf("flat position paid funding: balance %d", acct.CollateralBalance)
	}
	if pos.LastFundingIndexLong.Cmp(index) != 0 || pos.LastFundingIndexShort.Cmp(index) != 0 {
		t.Errorf("marks not advanced: %s / %s", pos.LastFundingIndexLong, pos.LastFundingIndexShort)
	}

	// Opening after the advance owes nothing at the same index.
	if err := pos.applyFill(Buy, 1_000, 50_000); err != nil {
		t.Fatal(err)
	}
	if err := settleFunding(pos, fs, acct); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if acct.CollateralBalance != 1_000 {
		t.Errorf("retroactive funding charged: balance %d", acct.CollateralBalance)
	}
}
