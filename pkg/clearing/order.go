package clearing

import "github.com/ethereum/go-ethereum/common"

// Side of a trade.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType distinguishes market from limit orders. Both carry a price; for
// market orders it acts as a protective bound rather than a resting price.
type OrderType int8

const (
	MarketOrder OrderType = iota
	LimitOrder
)

func (t OrderType) String() string {
	if t == MarketOrder {
		return "market"
	}
	return "limit"
}

// OrderStatus is the order lifecycle: Open is the only non-terminal state.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderExecuted
	OrderCancelled
	OrderExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderExecuted:
		return "executed"
	case OrderCancelled:
		return "cancelled"
	case OrderExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderOpen
}

// PositionLeg selects one side of a two-leg position.
type PositionLeg int8

const (
	LegLong PositionLeg = iota
	LegShort
)

func (l PositionLeg) String() string {
	if l == LegLong {
		return "long"
	}
	return "short"
}

// Order is a pending trade instruction. The requested margin doubles as the
// trade notional at execution: the reservation model opens at 1x against the
// allocation, with leverage enforced on the aggregate account at fill time.
type Order struct {
	ID            uint64 // trader-scoped nonce
	Owner         common.Address
	MarketID      uint64
	Side          Side
	Type          OrderType
	ReduceOnly    bool
	Margin        uint64 // collateral allocated to the trade
	Reserved      uint64 // collateral debited at placement, refunded on cancel/expiry
	Price         uint64 // limit price at engine scale
	CreatedAt     int64
	ExpiresAt     int64
	ClientOrderID uint64 // caller correlation id, opaque to the engine
	Status        OrderStatus

	Version uint64 `json:"version"` // ledger record version
}
