package clearing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CollateralVault is the vault holding all trader deposits. Fees and
// liquidation penalties leave it for the pool's vaults at execution time.
const CollateralVault = "collateral"

// KeeperPenaltyShareBps is the keeper's cut of a liquidation penalty; the
// remainder backs the insurance vault.
const KeeperPenaltyShareBps = uint64(1_000)

// Authority is the delegated-authority capability the engine presents to
// the pool collaborator on every transfer/notify call. The pool binds to
// one handle at construction and rejects calls carrying any other, so a
// component holding a pool reference but not the handle cannot move funds.
type Authority common.Hash

// DeriveAuthority computes the engine's pool authority from its identity
// using a fixed derivation rule.
func DeriveAuthority(engine common.Address) Authority {
	return Authority(crypto.Keccak256Hash([]byte("clearing/pool-authority/v1"), engine.Bytes()))
}

// TradeFill describes one executed order. Notional and fee are in
// collateral units; PnL is reserved for future realized-PnL reporting and
// is always zero from this engine.
type TradeFill struct {
	MarketID   uint64
	Trader     common.Address
	Keeper     common.Address
	OrderID    uint64
	Side       Side
	ReduceOnly bool
	Qty        uint64
	FillPrice  uint64
	Notional   uint64
	Fee        uint64
	PnL        int64
	Timestamp  int64
}

// LiquidationEvent describes one forced position reduction.
type LiquidationEvent struct {
	MarketID  uint64
	Trader    common.Address
	Keeper    common.Address
	Leg       PositionLeg
	ClosedQty uint64
	Notional  uint64 // entry notional removed from the leg
	Penalty   uint64
	BadDebt   uint64
	Halted    bool
	Timestamp int64
}

// PoolSink is the liquidity-pool collaborator. Both methods run inside the
// caller's transaction: the vault credits they stage commit atomically with
// the engine's own mutations, so a notification can never land without its
// matching transfer.
type PoolSink interface {
	// NotifyTradeFill re-derives the LP/insurance/protocol fee split,
	// credits the pool vaults with the fill's fee, and accrues the keeper's
	// flat execution rebate.
	NotifyTradeFill(auth Authority, txn *Txn, fill TradeFill) error

	// NotifyLiquidation credits the keeper-rebate ledger and the insurance
	// vault with their penalty shares, absorbs the fill's bad debt from
	// insurance, and reports whether the backstop covered it. covered=false
	// does not undo the credits.
	NotifyLiquidation(auth Authority, txn *Txn, ev LiquidationEvent) (covered bool, err error)
}

// EventSink receives post-commit notifications for subscribers. Delivery is
// best-effort; ledger state never depends on it.
type EventSink interface {
	PublishFill(TradeFill)
	PublishLiquidation(LiquidationEvent)
}

type nopEvents struct{}

func (nopEvents) PublishFill(TradeFill)               {}
func (nopEvents) PublishLiquidation(LiquidationEvent) {}
