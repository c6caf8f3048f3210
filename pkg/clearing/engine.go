// Package clearing implements the margin, funding, pricing-validation, and
// liquidation engine of a leveraged perpetual-futures venue. Every entry
// point is a single synchronous call that stages all of its mutations in
// one store transaction and either fully commits or fully aborts; the one
// documented exception is the liquidation insurance-shortfall path, which
// commits its de-risking mutations before returning the halt error.
package clearing

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/params"
	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
	"github.com/coldbell/clearing/pkg/clearing/oracle"
	"github.com/coldbell/clearing/pkg/util"
)

// Engine orchestrates all clearing operations. It re-reads market
// configuration from the registry on every call and holds no per-record
// locks: concurrent operations on the same records are serialized by the
// store's version-checked commits.
type Engine struct {
	log      *zap.SugaredLogger
	cfg      params.Engine
	registry *market.Registry
	store    *Store
	pool     PoolSink
	events   EventSink
	auth     Authority
	clock    util.Clock
}

// NewEngine wires the engine against its collaborators. identity is the
// engine's own address, from which its pool authority is derived. events
// may be nil; clock defaults to the wall clock.
func NewEngine(log *zap.SugaredLogger, cfg params.Engine, registry *market.Registry, store *Store, pool PoolSink, events EventSink, identity common.Address, clock util.Clock) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if events == nil {
		events = nopEvents{}
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{
		log:      log,
		cfg:      cfg,
		registry: registry,
		store:    store,
		pool:     pool,
		events:   events,
		auth:     DeriveAuthority(identity),
		clock:    clock,
	}, nil
}

// Store exposes the backing ledger for read-only queries.
func (e *Engine) Store() *Store { return e.store }

// SetEventSink installs the event sink after construction; the API server
// both wraps the engine and consumes its events.
func (e *Engine) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = nopEvents{}
	}
	e.events = sink
}

// CreateMarginAccount creates a trader's collateral record. Accounts are
// created once and never destroyed.
func (e *Engine) CreateMarginAccount(owner common.Address) error {
	txn := e.store.Begin()
	defer txn.Discard()

	existing, err := txn.Account(owner)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: margin account %s", ErrAccountExists, owner.Hex())
	}
	if err := txn.PutAccount(NewMarginAccount(owner)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("margin account created", "owner", owner.Hex())
	return nil
}

// CreatePosition creates a trader's position record for one market, with
// funding marks starting at the market's current index. The market's
// funding state must already exist.
func (e *Engine) CreatePosition(owner common.Address, marketID uint64) error {
	if _, err := e.registry.Get(marketID); err != nil {
		return fmt.Errorf("%w: %v", ErrMarketMismatch, err)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	acct, err := txn.Account(owner)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}
	existing, err := txn.Position(owner, marketID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: position %s/%d", ErrAccountExists, owner.Hex(), marketID)
	}
	fs, err := txn.Funding(marketID)
	if err != nil {
		return err
	}
	if fs == nil {
		return fmt.Errorf("%w: funding state for market %d missing", ErrMarketMismatch, marketID)
	}
	if err := txn.PutPosition(NewPosition(owner, marketID, fs.FundingIndex)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("position created", "owner", owner.Hex(), "market", marketID)
	return nil
}

// InitFundingState creates a market's funding record at activation.
// Admin-gated.
func (e *Engine) InitFundingState(caller common.Address, marketID uint64) error {
	if caller != e.registry.Multisig() {
		return fmt.Errorf("%w: %s may not activate markets", ErrUnauthorized, caller.Hex())
	}
	if _, err := e.registry.Get(marketID); err != nil {
		return fmt.Errorf("%w: %v", ErrMarketMismatch, err)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	existing, err := txn.Funding(marketID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: funding state for market %d", ErrAccountExists, marketID)
	}
	if err := txn.PutFunding(NewFundingState(marketID, e.clock.Now().Unix())); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("funding state initialized", "market", marketID)
	return nil
}

// Deposit credits a trader's collateral balance and the collateral vault.
func (e *Engine) Deposit(owner common.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: deposit amount is zero", ErrInvalidAmount)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	acct, err := txn.Account(owner)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}
	balance, err := fixedpoint.CheckedAdd(acct.CollateralBalance, amount)
	if err != nil {
		return err
	}
	acct.CollateralBalance = balance
	if err := txn.PutAccount(acct); err != nil {
		return err
	}
	if err := creditVault(txn, CollateralVault, amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("deposit", "owner", owner.Hex(), "amount", amount, "balance", acct.CollateralBalance)
	return nil
}

// Withdraw debits a trader's collateral, gated so the remaining balance
// still covers the withdraw-IMR fraction of the account's open notional.
func (e *Engine) Withdraw(owner common.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: withdraw amount is zero", ErrInvalidAmount)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	acct, err := txn.Account(owner)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}
	if amount > acct.CollateralBalance {
		return fmt.Errorf("%w: withdraw %d exceeds balance %d", ErrInsufficientCollateral, amount, acct.CollateralBalance)
	}
	post := acct.CollateralBalance - amount
	required, err := fixedpoint.MulBps(acct.TotalNotional, uint64(e.cfg.MaxIMRBps))
	if err != nil {
		return err
	}
	if post < required {
		return fmt.Errorf("%w: post-withdraw balance %d below required margin %d", ErrMarginRequirement, post, required)
	}
	acct.CollateralBalance = post
	if err := txn.PutAccount(acct); err != nil {
		return err
	}
	if err := debitVault(txn, CollateralVault, amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("withdraw", "owner", owner.Hex(), "amount", amount, "balance", post)
	return nil
}

// PlaceOrderParams carries a trader's order request.
type PlaceOrderParams struct {
	MarketID      uint64
	Side          Side
	Type          OrderType
	ReduceOnly    bool
	Margin        uint64 // collateral allocated; equals trade notional at fill
	Price         uint64 // limit price at engine scale
	TTLSecs       int64
	ClientOrderID uint64
}

// PlaceOrder reserves collateral and creates an Open order. The reservation
// (IMR plus taker fee on the requested margin; zero for reduce-only) is
// debited immediately and refunded in full on any terminal non-executed
// transition.
func (e *Engine) PlaceOrder(owner common.Address, p PlaceOrderParams) (*Order, error) {
	if e.registry.GlobalPause() {
		return nil, ErrGlobalPaused
	}
	m, err := e.registry.Get(p.MarketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketMismatch, err)
	}
	if m.Status != market.Active {
		return nil, fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, m.ID, m.Status)
	}
	if p.Margin == 0 {
		return nil, fmt.Errorf("%w: order margin is zero", ErrInvalidAmount)
	}
	if p.Price == 0 {
		return nil, fmt.Errorf("%w: limit price is zero", ErrInvalidLimitPrice)
	}
	if p.TTLSecs <= 0 {
		return nil, fmt.Errorf("%w: ttl %ds", ErrInvalidTTL, p.TTLSecs)
	}
	if time.Duration(p.TTLSecs)*time.Second > e.cfg.MaxOrderTTL {
		return nil, fmt.Errorf("%w: ttl %ds exceeds max %s", ErrTTLTooLong, p.TTLSecs, e.cfg.MaxOrderTTL)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	acct, err := txn.Account(owner)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}

	reserved, err := orderReservation(p.ReduceOnly, p.Margin, m)
	if err != nil {
		return nil, err
	}
	if reserved > acct.CollateralBalance {
		return nil, fmt.Errorf("%w: reservation %d exceeds balance %d", ErrInsufficientCollateral, reserved, acct.CollateralBalance)
	}
	acct.CollateralBalance -= reserved

	now := e.clock.Now().Unix()
	order := &Order{
		ID:            acct.NextOrderNonce,
		Owner:         owner,
		MarketID:      p.MarketID,
		Side:          p.Side,
		Type:          p.Type,
		ReduceOnly:    p.ReduceOnly,
		Margin:        p.Margin,
		Reserved:      reserved,
		Price:         p.Price,
		CreatedAt:     now,
		ExpiresAt:     now + p.TTLSecs,
		ClientOrderID: p.ClientOrderID,
		Status:        OrderOpen,
	}
	acct.NextOrderNonce++

	if err := txn.PutAccount(acct); err != nil {
		return nil, err
	}
	if err := txn.PutOrder(order); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	e.log.Infow("order placed",
		"owner", owner.Hex(), "order", order.ID, "market", p.MarketID,
		"side", p.Side, "type", p.Type, "margin", p.Margin, "reserved", reserved)
	return order, nil
}

// CancelOrder is the owner-initiated cancel: requires Open and refunds the
// reservation in full.
func (e *Engine) CancelOrder(owner common.Address, orderID uint64) error {
	return e.cancel(owner, orderID, "owner")
}

// CancelOrderByExecutor cancels on behalf of the venue. Same refund
// semantics as an owner cancel; gated on the executor set.
func (e *Engine) CancelOrderByExecutor(executor, owner common.Address, orderID uint64) error {
	if !e.registry.IsExecutor(executor) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedExecutor, executor.Hex())
	}
	return e.cancel(owner, orderID, "executor")
}

func (e *Engine) cancel(owner common.Address, orderID uint64, by string) error {
	txn := e.store.Begin()
	defer txn.Discard()

	order, err := txn.Order(owner, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: order %d for %s not found", ErrOrderNotOpen, orderID, owner.Hex())
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: order %d is %s", ErrOrderNotOpen, orderID, order.Status)
	}
	acct, err := txn.Account(owner)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}
	balance, err := fixedpoint.CheckedAdd(acct.CollateralBalance, order.Reserved)
	if err != nil {
		return err
	}
	acct.CollateralBalance = balance
	order.Status = OrderCancelled

	if err := txn.PutAccount(acct); err != nil {
		return err
	}
	if err := txn.PutOrder(order); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	e.log.Infow("order cancelled", "owner", owner.Hex(), "order", orderID, "by", by, "refunded", order.Reserved)
	return nil
}

// ExecuteOrder applies an executor-supplied fill against an Open order.
// The full risk gauntlet runs in a fixed sequence; any failure aborts with
// no state change. An order past its expiry is moved to Expired with its
// reservation refunded and no fill applied, returning (nil, nil).
func (e *Engine) ExecuteOrder(executor, owner common.Address, orderID uint64, fillPrice uint64, update *oracle.PriceUpdate, fb oracle.Fallback) (*TradeFill, error) {
	if !e.registry.IsExecutor(executor) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedExecutor, executor.Hex())
	}
	if e.registry.GlobalPause() {
		return nil, ErrGlobalPaused
	}

	txn := e.store.Begin()
	defer txn.Discard()

	order, err := txn.Order(owner, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d for %s not found", ErrOrderNotOpen, orderID, owner.Hex())
	}
	if order.Status != OrderOpen {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotOpen, orderID, order.Status)
	}

	m, err := e.registry.Get(order.MarketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketMismatch, err)
	}
	if m.Status == market.Halted {
		return nil, fmt.Errorf("%w: market %d", ErrMarketHalted, m.ID)
	}
	if m.Status != market.Active {
		return nil, fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, m.ID, m.Status)
	}
	fs, err := txn.Funding(order.MarketID)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		return nil, fmt.Errorf("%w: funding state for market %d missing", ErrMarketMismatch, order.MarketID)
	}
	if fs.Halted {
		return nil, fmt.Errorf("%w: market %d", ErrMarketHalted, order.MarketID)
	}

	acct, err := txn.Account(owner)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: margin account %s", ErrAccountNotFound, owner.Hex())
	}
	pos, err := txn.Position(owner, order.MarketID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: position %s/%d", ErrAccountNotFound, owner.Hex(), order.MarketID)
	}

	now := e.clock.Now().Unix()

	// Past expiry: refund and expire, even if oracle data was supplied.
	if now > order.ExpiresAt {
		balance, err := fixedpoint.CheckedAdd(acct.CollateralBalance, order.Reserved)
		if err != nil {
			return nil, err
		}
		acct.CollateralBalance = balance
		order.Status = OrderExpired
		if err := txn.PutAccount(acct); err != nil {
			return nil, err
		}
		if err := txn.PutOrder(order); err != nil {
			return nil, err
		}
		if err := txn.Commit(); err != nil {
			return nil, err
		}
		e.log.Infow("order expired at execution", "owner", owner.Hex(), "order", orderID, "refunded", order.Reserved)
		return nil, nil
	}

	obs, err := oracle.Read(m.OracleFeed, update, fb, now, m.Pricing.MaxOracleStalenessSec)
	if err != nil {
		return nil, err
	}
	if fillPrice == 0 {
		return nil, fmt.Errorf("%w: fill price is zero", ErrInvalidPrice)
	}
	if err := validateOracleBounds(obs, fillPrice, m.Pricing); err != nil {
		return nil, err
	}

	// 1:1 sizing convention: the reserved margin is the trade notional.
	notional := order.Margin
	if notional > m.Risk.MaxTradeNotional {
		return nil, fmt.Errorf("%w: notional %d exceeds max %d", ErrMaxNotionalExceeded, notional, m.Risk.MaxTradeNotional)
	}
	qty, err := fixedpoint.MulDiv(notional, fixedpoint.PriceScale, fillPrice)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, fmt.Errorf("%w: fill quantity rounds to zero", ErrInvalidAmount)
	}
	if err := validateLimitPrice(order.Side, order.Price, fillPrice); err != nil {
		return nil, err
	}

	if err := fs.updateIndex(now, m.Funding, m.Risk.OICap); err != nil {
		return nil, err
	}
	if err := settleFunding(pos, fs, acct); err != nil {
		return nil, err
	}

	fee, err := fixedpoint.MulBps(notional, uint64(m.Fees.TakerFeeBps))
	if err != nil {
		return nil, err
	}

	if order.ReduceOnly {
		if err := e.applyReduceFill(txn, m, order, acct, pos, fs, qty, fee); err != nil {
			return nil, err
		}
	} else {
		if err := e.applyOpeningFill(txn, m, order, acct, pos, fs, obs, fillPrice, qty, notional, fee); err != nil {
			return nil, err
		}
	}

	order.Status = OrderExecuted
	if err := txn.PutAccount(acct); err != nil {
		return nil, err
	}
	if err := txn.PutPosition(pos); err != nil {
		return nil, err
	}
	if err := txn.PutFunding(fs); err != nil {
		return nil, err
	}
	if err := txn.PutOrder(order); err != nil {
		return nil, err
	}

	fill := TradeFill{
		MarketID:   order.MarketID,
		Trader:     owner,
		Keeper:     executor,
		OrderID:    order.ID,
		Side:       order.Side,
		ReduceOnly: order.ReduceOnly,
		Qty:        qty,
		FillPrice:  fillPrice,
		Notional:   notional,
		Fee:        fee,
		Timestamp:  now,
	}
	if err := debitVault(txn, CollateralVault, fee); err != nil {
		return nil, err
	}
	if err := e.pool.NotifyTradeFill(e.auth, txn, fill); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	e.log.Infow("order executed",
		"owner", owner.Hex(), "order", order.ID, "market", order.MarketID,
		"side", order.Side, "reduceOnly", order.ReduceOnly,
		"qty", qty, "fillPrice", fillPrice, "notional", notional, "fee", fee)
	e.events.PublishFill(fill)
	return &fill, nil
}

// applyOpeningFill runs the exposure-increasing leg of execution: cap
// checks against projected OI and skew, impact-price compliance, fee
// solvency, aggregate IMR, and aggregate leverage.
func (e *Engine) applyOpeningFill(txn *Txn, m *market.Market, order *Order, acct *MarginAccount, pos *Position, fs *FundingState, obs oracle.Observation, fillPrice, qty, notional, fee uint64) error {
	projOI, err := fixedpoint.CheckedAdd(fs.OpenInterest, notional)
	if err != nil {
		return err
	}
	if projOI > m.Risk.OICap {
		return fmt.Errorf("%w: projected oi %d exceeds cap %d", ErrOICapExceeded, projOI, m.Risk.OICap)
	}

	notionalBig := new(big.Int).SetUint64(notional)
	projSkew := new(big.Int).Set(fs.Skew)
	if order.Side == Buy {
		projSkew.Add(projSkew, notionalBig)
	} else {
		projSkew.Sub(projSkew, notionalBig)
	}
	if new(big.Int).Abs(projSkew).Cmp(new(big.Int).SetUint64(m.Risk.SkewCap)) > 0 {
		return fmt.Errorf("%w: projected skew %s exceeds cap %d", ErrSkewCapExceeded, projSkew, m.Risk.SkewCap)
	}

	if err := validateImpactPrice(order.Side, fillPrice, obs.Price, projSkew, projOI, m.Pricing); err != nil {
		return err
	}

	if fee > acct.CollateralBalance {
		return fmt.Errorf("%w: fee %d exceeds balance %d", ErrInsufficientCollateral, fee, acct.CollateralBalance)
	}
	acct.CollateralBalance -= fee

	newTotal, err := fixedpoint.CheckedAdd(acct.TotalNotional, notional)
	if err != nil {
		return err
	}
	imr, err := fixedpoint.MulBps(newTotal, uint64(m.Risk.IMRBps))
	if err != nil {
		return err
	}
	if imr > acct.CollateralBalance {
		return fmt.Errorf("%w: imr %d exceeds post-fee collateral %d", ErrMarginRequirement, imr, acct.CollateralBalance)
	}
	maxNotional := new(big.Int).Mul(
		new(big.Int).SetUint64(acct.CollateralBalance),
		new(big.Int).SetUint64(uint64(m.Risk.MaxLeverage)),
	)
	if new(big.Int).SetUint64(newTotal).Cmp(maxNotional) > 0 {
		return fmt.Errorf("%w: total notional %d exceeds %dx of collateral %d",
			ErrLeverageExceeded, newTotal, m.Risk.MaxLeverage, acct.CollateralBalance)
	}

	if err := pos.applyFill(order.Side, qty, notional); err != nil {
		return err
	}
	acct.TotalNotional = newTotal
	fs.OpenInterest = projOI
	fs.Skew = projSkew
	return nil
}

// applyReduceFill shrinks the leg opposite the trade side. Cap, impact, and
// leverage checks are skipped since exposure only decreases, but the taker
// fee is still charged and OI/skew/notional move in the decreasing
// direction by the entry notional removed.
func (e *Engine) applyReduceFill(txn *Txn, m *market.Market, order *Order, acct *MarginAccount, pos *Position, fs *FundingState, qty, fee uint64) error {
	removed, err := pos.reduce(closingLegFor(order.Side), qty)
	if err != nil {
		return err
	}

	if fee > acct.CollateralBalance {
		return fmt.Errorf("%w: fee %d exceeds balance %d", ErrInsufficientCollateral, fee, acct.CollateralBalance)
	}
	acct.CollateralBalance -= fee

	oi, err := fixedpoint.CheckedSub(fs.OpenInterest, removed)
	if err != nil {
		return err
	}
	fs.OpenInterest = oi

	removedBig := new(big.Int).SetUint64(removed)
	if closingLegFor(order.Side) == LegLong {
		fs.Skew.Sub(fs.Skew, removedBig)
	} else {
		fs.Skew.Add(fs.Skew, removedBig)
	}

	total, err := fixedpoint.CheckedSub(acct.TotalNotional, removed)
	if err != nil {
		return err
	}
	acct.TotalNotional = total
	return nil
}

// Liquidate force-reduces a caller-chosen leg of an under-margined
// position. Keeper-only. The engine does not size the liquidation itself;
// it bounds the keeper's chosen quantity by the leg's actual quantity.
//
// If the insurance backstop cannot absorb the realized bad debt after
// receiving its penalty share, the market's funding state is halted and the
// already-applied mutations are committed before the halt error returns:
// the position is de-risked even though the backstop was insufficient.
func (e *Engine) Liquidate(keeper, trader common.Address, marketID uint64, leg PositionLeg, closeQty uint64) (*LiquidationEvent, error) {
	if !e.registry.IsKeeper(keeper) {
		return nil, fmt.Errorf("%w: %s is not a keeper", ErrUnauthorizedExecutor, keeper.Hex())
	}
	m, err := e.registry.Get(marketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarketMismatch, err)
	}
	if m.Status == market.Halted {
		return nil, fmt.Errorf("%w: market %d", ErrMarketHalted, marketID)
	}
	if m.Status != market.Active {
		return nil, fmt.Errorf("%w: market %d is %s", ErrMarketNotActive, marketID, m.Status)
	}
	if closeQty == 0 {
		return nil, fmt.Errorf("%w: close quantity is zero", ErrInvalidAmount)
	}

	txn := e.store.Begin()
	defer txn.Discard()

	acct, err := txn.Account(trader)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: margin account %s", ErrAccountNotFound, trader.Hex())
	}
	pos, err := txn.Position(trader, marketID)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: position %s/%d", ErrAccountNotFound, trader.Hex(), marketID)
	}
	fs, err := txn.Funding(marketID)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		return nil, fmt.Errorf("%w: funding state for market %d missing", ErrMarketMismatch, marketID)
	}
	if fs.Halted {
		return nil, fmt.Errorf("%w: market %d", ErrMarketHalted, marketID)
	}

	now := e.clock.Now().Unix()
	if err := fs.updateIndex(now, m.Funding, m.Risk.OICap); err != nil {
		return nil, err
	}
	if err := settleFunding(pos, fs, acct); err != nil {
		return nil, err
	}

	mmr, err := fixedpoint.MulBps(acct.TotalNotional, uint64(m.Risk.MMRBps))
	if err != nil {
		return nil, err
	}
	if acct.CollateralBalance >= mmr {
		return nil, fmt.Errorf("%w: collateral %d covers mmr %d", ErrNotLiquidatable, acct.CollateralBalance, mmr)
	}

	removed, err := pos.reduce(leg, closeQty)
	if err != nil {
		return nil, err
	}
	oi, err := fixedpoint.CheckedSub(fs.OpenInterest, removed)
	if err != nil {
		return nil, err
	}
	fs.OpenInterest = oi
	removedBig := new(big.Int).SetUint64(removed)
	if leg == LegLong {
		fs.Skew.Sub(fs.Skew, removedBig)
	} else {
		fs.Skew.Add(fs.Skew, removedBig)
	}
	total, err := fixedpoint.CheckedSub(acct.TotalNotional, removed)
	if err != nil {
		return nil, err
	}
	acct.TotalNotional = total

	penalty, err := fixedpoint.MulBps(removed, uint64(e.cfg.LiquidationPenaltyBps))
	if err != nil {
		return nil, err
	}
	// Collateral saturates at zero here; the uncovered remainder is bad
	// debt absorbed by insurance.
	paid := penalty
	if paid > acct.CollateralBalance {
		paid = acct.CollateralBalance
	}
	acct.CollateralBalance -= paid
	badDebt := penalty - paid

	if err := txn.PutAccount(acct); err != nil {
		return nil, err
	}
	if err := txn.PutPosition(pos); err != nil {
		return nil, err
	}
	if err := debitVault(txn, CollateralVault, paid); err != nil {
		return nil, err
	}

	ev := LiquidationEvent{
		MarketID:  marketID,
		Trader:    trader,
		Keeper:    keeper,
		Leg:       leg,
		ClosedQty: closeQty,
		Notional:  removed,
		Penalty:   penalty,
		BadDebt:   badDebt,
		Timestamp: now,
	}
	covered, err := e.pool.NotifyLiquidation(e.auth, txn, ev)
	if err != nil {
		return nil, err
	}
	if !covered {
		fs.Halted = true
		ev.Halted = true
	}
	if err := txn.PutFunding(fs); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	e.log.Infow("liquidation",
		"trader", trader.Hex(), "keeper", keeper.Hex(), "market", marketID,
		"leg", leg, "closedQty", closeQty, "notionalRemoved", removed,
		"penalty", penalty, "badDebt", badDebt, "halted", ev.Halted)
	e.events.PublishLiquidation(ev)

	if !covered {
		return &ev, fmt.Errorf("%w: bad debt %d exceeds insurance backstop", ErrInsuranceShortfall, badDebt)
	}
	return &ev, nil
}

// creditVault adds amount to a named vault inside the transaction.
func creditVault(txn *Txn, name string, amount uint64) error {
	vb, err := txn.Vault(name)
	if err != nil {
		return err
	}
	balance, err := fixedpoint.CheckedAdd(vb.Balance, amount)
	if err != nil {
		return err
	}
	vb.Balance = balance
	return txn.PutVault(vb)
}

// debitVault removes amount from a named vault inside the transaction.
func debitVault(txn *Txn, name string, amount uint64) error {
	vb, err := txn.Vault(name)
	if err != nil {
		return err
	}
	balance, err := fixedpoint.CheckedSub(vb.Balance, amount)
	if err != nil {
		return fmt.Errorf("vault %s: %w", name, err)
	}
	vb.Balance = balance
	return txn.PutVault(vb)
}
