package clearing

import (
	"errors"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/oracle"
)

// Every failure path has a named cause so keepers can triage incidents
// mechanically. Call sites wrap these with fmt.Errorf("...: %w", err).
var (
	// Authorization
	ErrUnauthorized         = errors.New("unauthorized")
	ErrUnauthorizedExecutor = errors.New("unauthorized executor")

	// Validation
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidLimitPrice = errors.New("invalid limit price")
	ErrInvalidTTL        = errors.New("invalid ttl")
	ErrTTLTooLong        = errors.New("ttl too long")
	ErrMarketMismatch    = errors.New("market mismatch")
	ErrOrderNotOpen      = errors.New("order is not open")
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")

	// Arithmetic (alias of the fixedpoint sentinel so errors.Is works
	// across package boundaries)
	ErrMathOverflow = fixedpoint.ErrOverflow

	// Market state
	ErrGlobalPaused    = errors.New("global pause is enabled")
	ErrMarketNotActive = errors.New("market is not active")
	ErrMarketHalted    = errors.New("market is locally halted")
	ErrStaleOracle     = oracle.ErrStale
	ErrInvalidOracle   = oracle.ErrInvalid
	ErrConfTooWide     = errors.New("oracle confidence too wide")
	ErrFillDeviation   = errors.New("fill price deviation too large")
	ErrImpactPrice     = errors.New("impact price validation failed")
	ErrLimitPrice      = errors.New("limit price violation")

	// Risk limits
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrMarginRequirement      = errors.New("margin requirement violation")
	ErrLeverageExceeded       = errors.New("leverage exceeded")
	ErrOICapExceeded          = errors.New("oi cap exceeded")
	ErrSkewCapExceeded        = errors.New("skew cap exceeded")
	ErrMaxNotionalExceeded    = errors.New("max trade notional exceeded")

	// Liquidation
	ErrNotLiquidatable    = errors.New("not liquidatable")
	ErrInsuranceShortfall = errors.New("insurance shortfall triggered market halt")
	ErrInvalidCloseQty    = errors.New("invalid close quantity")
)
