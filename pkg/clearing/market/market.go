// Package market holds the per-market configuration records the clearing
// engine reads on every call: risk limits, pricing guards, funding
// parameters, and fees. The engine never caches a market across calls.
package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Status defines the trading status of a market
type Status int8

const (
	Active Status = iota // Trading enabled
	Paused               // Trading suspended by admin
	Halted               // Terminal local halt (insurance shortfall)
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// RiskParams bound per-account and per-market exposure.
type RiskParams struct {
	MaxLeverage      uint16 // e.g. 20 (20x aggregate account leverage)
	IMRBps           uint16 // initial margin requirement, basis points
	MMRBps           uint16 // maintenance margin requirement, basis points
	OICap            uint64 // max total open interest, notional units
	SkewCap          uint64 // max |long - short| notional
	MaxTradeNotional uint64 // max notional per fill
}

func (p RiskParams) Validate() error {
	if p.MaxLeverage < 1 {
		return fmt.Errorf("max leverage must be at least 1")
	}
	if p.IMRBps <= p.MMRBps {
		return fmt.Errorf("imr (%d bps) must exceed mmr (%d bps)", p.IMRBps, p.MMRBps)
	}
	if p.IMRBps > 10_000 || p.MMRBps > 10_000 {
		return fmt.Errorf("margin requirements cannot exceed 10000 bps")
	}
	if p.OICap == 0 {
		return fmt.Errorf("oi cap must be positive")
	}
	if p.MaxTradeNotional == 0 {
		return fmt.Errorf("max trade notional must be positive")
	}
	return nil
}

// PricingParams guard fills against a validated oracle price.
type PricingParams struct {
	BaseSpreadBps          uint16 // floor of the impact band
	SkewCoeffBps           uint16 // impact added per unit of skew ratio
	MaxFillDeviationBps    uint16 // max |fill - oracle| as bps of oracle
	MaxOracleStalenessSec  int64  // max age of the oracle observation
	MaxConfBps             uint16 // max confidence width as bps of price
}

func (p PricingParams) Validate() error {
	if p.MaxFillDeviationBps > 5_000 {
		return fmt.Errorf("max fill deviation cannot exceed 5000 bps")
	}
	if p.MaxOracleStalenessSec <= 0 {
		return fmt.Errorf("max oracle staleness must be positive")
	}
	if p.MaxConfBps > 10_000 {
		return fmt.Errorf("max confidence cannot exceed 10000 bps")
	}
	return nil
}

// FundingParams shape the per-market funding rate.
type FundingParams struct {
	IntervalSec                 int64 // funding accrual interval
	FundingVelocityCapBpsPerDay int64 // hard cap on index movement per day
	PremiumClampBps             int64 // clamp on the skew premium
}

func (p FundingParams) Validate() error {
	if p.IntervalSec <= 0 {
		return fmt.Errorf("funding interval must be positive")
	}
	if p.FundingVelocityCapBpsPerDay < 0 {
		return fmt.Errorf("funding velocity cap cannot be negative")
	}
	if p.PremiumClampBps < 0 {
		return fmt.Errorf("premium clamp cannot be negative")
	}
	return nil
}

// FeeParams are charged on executed notional.
type FeeParams struct {
	TakerFeeBps uint16
	MakerFeeBps uint16
}

func (p FeeParams) Validate() error {
	if p.TakerFeeBps > 1_000 {
		return fmt.Errorf("taker fee cannot exceed 1000 bps")
	}
	if p.MakerFeeBps > 1_000 {
		return fmt.Errorf("maker fee cannot exceed 1000 bps")
	}
	return nil
}

// Market is the registry record for one perpetual market.
// Read-only to the clearing engine; mutated only through the registry's
// admin-gated operations.
type Market struct {
	ID         uint64
	Symbol     string      // "SOL-USDC"
	OracleFeed common.Hash // expected price-feed identifier
	Status     Status

	Risk    RiskParams
	Pricing PricingParams
	Funding FundingParams
	Fees    FeeParams
}

// NewMarket creates a market record with validated parameters.
func NewMarket(id uint64, symbol string, feed common.Hash, risk RiskParams, pricing PricingParams, funding FundingParams, fees FeeParams) (*Market, error) {
	m := &Market{
		ID:         id,
		Symbol:     symbol,
		OracleFeed: feed,
		Status:     Active,
		Risk:       risk,
		Pricing:    pricing,
		Funding:    funding,
		Fees:       fees,
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	return m, nil
}

// Validate checks market parameter sanity.
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(m.Symbol) > 16 {
		return fmt.Errorf("symbol too long: %q", m.Symbol)
	}
	if err := m.Risk.Validate(); err != nil {
		return err
	}
	if err := m.Pricing.Validate(); err != nil {
		return err
	}
	if err := m.Funding.Validate(); err != nil {
		return err
	}
	return m.Fees.Validate()
}

// DefaultSOLUSDC returns the parameter set used on dev networks.
// Collateral units are USDC micros (1_000_000 = $1.00).
func DefaultSOLUSDC(feed common.Hash) (*Market, error) {
	return NewMarket(1, "SOL-USDC", feed,
		RiskParams{
			MaxLeverage:      20,
			IMRBps:           1_000, // 10%
			MMRBps:           500,   // 5%
			OICap:            1_000_000_000_000,
			SkewCap:          500_000_000_000,
			MaxTradeNotional: 10_000_000_000,
		},
		PricingParams{
			BaseSpreadBps:         5,
			SkewCoeffBps:          50,
			MaxFillDeviationBps:   100,
			MaxOracleStalenessSec: 30,
			MaxConfBps:            100,
		},
		FundingParams{
			IntervalSec:                 3_600,
			FundingVelocityCapBpsPerDay: 4_800,
			PremiumClampBps:             100,
		},
		FeeParams{TakerFeeBps: 10, MakerFeeBps: 2},
	)
}
