// Package pool is the liquidity-pool collaborator of the clearing engine:
// it holds the LP, insurance, and protocol vaults, splits trading fees
// among them, maintains the keeper-rebate ledger, and absorbs liquidation
// bad debt from the insurance backstop.
package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/pkg/clearing"
	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

// Vault names inside the shared ledger.
const (
	LiquidityVault = "liquidity"
	InsuranceVault = "insurance"
	ProtocolVault  = "protocol"

	// Accounting counters, stored as vault records for atomicity with the
	// transfers they describe.
	totalFeesCounter      = "pool:fees_total"
	pendingRebatesCounter = "pool:rebates_pending"
)

// rebateVault is the per-keeper rebate ledger entry.
func rebateVault(keeper common.Address) string {
	return "rebate:" + keeper.Hex()
}

// Pool implements clearing.PoolSink. Every notify call runs inside the
// engine's transaction, so the vault movements commit atomically with the
// engine state they account for.
type Pool struct {
	log      *zap.SugaredLogger
	registry *market.Registry
	store    *clearing.Store
	auth     clearing.Authority

	// execRebateFlat is credited to the executing keeper's rebate ledger on
	// every fill, paid from the liquidity vault while it can afford it.
	execRebateFlat uint64
}

// New binds the pool to the authority handle the engine will present.
func New(log *zap.SugaredLogger, registry *market.Registry, store *clearing.Store, auth clearing.Authority, execRebateFlat uint64) *Pool {
	return &Pool{
		log:            log,
		registry:       registry,
		store:          store,
		auth:           auth,
		execRebateFlat: execRebateFlat,
	}
}

func (p *Pool) checkAuth(auth clearing.Authority) error {
	if auth != p.auth {
		return fmt.Errorf("%w: bad pool authority", clearing.ErrUnauthorized)
	}
	return nil
}

// NotifyTradeFill re-derives the venue fee split and credits the three
// vaults with the fill's fee. Split remainders from integer division go to
// the protocol vault so no dust is lost. The executing keeper accrues the
// flat execution rebate when the liquidity vault can cover it.
func (p *Pool) NotifyTradeFill(auth clearing.Authority, txn *clearing.Txn, fill clearing.TradeFill) error {
	if err := p.checkAuth(auth); err != nil {
		return err
	}

	split := p.registry.FeeSplit()
	lpShare, err := fixedpoint.MulBps(fill.Fee, uint64(split.LPBps))
	if err != nil {
		return err
	}
	insShare, err := fixedpoint.MulBps(fill.Fee, uint64(split.InsuranceBps))
	if err != nil {
		return err
	}
	protoShare := fill.Fee - lpShare - insShare

	if err := creditVault(txn, LiquidityVault, lpShare); err != nil {
		return err
	}
	if err := creditVault(txn, InsuranceVault, insShare); err != nil {
		return err
	}
	if err := creditVault(txn, ProtocolVault, protoShare); err != nil {
		return err
	}
	if err := creditVault(txn, totalFeesCounter, fill.Fee); err != nil {
		return err
	}

	if p.execRebateFlat > 0 {
		lp, err := txn.Vault(LiquidityVault)
		if err != nil {
			return err
		}
		if lp.Balance >= p.execRebateFlat {
			lp.Balance -= p.execRebateFlat
			if err := txn.PutVault(lp); err != nil {
				return err
			}
			if err := creditVault(txn, rebateVault(fill.Keeper), p.execRebateFlat); err != nil {
				return err
			}
			if err := creditVault(txn, pendingRebatesCounter, p.execRebateFlat); err != nil {
				return err
			}
		}
	}
	return nil
}

// NotifyLiquidation credits the keeper's rebate ledger and the insurance
// vault with their penalty shares, then absorbs the liquidation's bad debt
// from insurance. Reports covered=false when the post-credit insurance
// balance cannot cover the bad debt; the credits stand either way.
func (p *Pool) NotifyLiquidation(auth clearing.Authority, txn *clearing.Txn, ev clearing.LiquidationEvent) (bool, error) {
	if err := p.checkAuth(auth); err != nil {
		return false, err
	}

	rebate, err := fixedpoint.MulBps(ev.Penalty, clearing.KeeperPenaltyShareBps)
	if err != nil {
		return false, err
	}
	insShare := ev.Penalty - rebate

	if err := creditVault(txn, rebateVault(ev.Keeper), rebate); err != nil {
		return false, err
	}
	if err := creditVault(txn, pendingRebatesCounter, rebate); err != nil {
		return false, err
	}

	ins, err := txn.Vault(InsuranceVault)
	if err != nil {
		return false, err
	}
	balance, err := fixedpoint.CheckedAdd(ins.Balance, insShare)
	if err != nil {
		return false, err
	}

	covered := balance >= ev.BadDebt
	if covered {
		balance -= ev.BadDebt
	} else {
		balance = 0
	}
	ins.Balance = balance
	if err := txn.PutVault(ins); err != nil {
		return false, err
	}

	if !covered {
		p.log.Warnw("insurance backstop exhausted",
			"market", ev.MarketID, "penalty", ev.Penalty, "badDebt", ev.BadDebt)
	}
	return covered, nil
}

// ClaimRebate zeroes the keeper's rebate ledger and credits the amount to
// its margin account, so rebates are spendable as trading collateral.
func (p *Pool) ClaimRebate(keeper common.Address) (uint64, error) {
	txn := p.store.Begin()
	defer txn.Discard()

	rb, err := txn.Vault(rebateVault(keeper))
	if err != nil {
		return 0, err
	}
	if rb.Balance == 0 {
		return 0, nil
	}
	amount := rb.Balance

	acct, err := txn.Account(keeper)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, fmt.Errorf("%w: margin account %s", clearing.ErrAccountNotFound, keeper.Hex())
	}
	balance, err := fixedpoint.CheckedAdd(acct.CollateralBalance, amount)
	if err != nil {
		return 0, err
	}
	acct.CollateralBalance = balance

	rb.Balance = 0
	pending, err := txn.Vault(pendingRebatesCounter)
	if err != nil {
		return 0, err
	}
	if amount > pending.Balance {
		pending.Balance = 0
	} else {
		pending.Balance -= amount
	}

	if err := txn.PutVault(rb); err != nil {
		return 0, err
	}
	if err := txn.PutVault(pending); err != nil {
		return 0, err
	}
	if err := txn.PutAccount(acct); err != nil {
		return 0, err
	}
	if err := creditVault(txn, clearing.CollateralVault, amount); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	p.log.Infow("rebate claimed", "keeper", keeper.Hex(), "amount", amount)
	return amount, nil
}

// Fund seeds a pool vault directly. Admin-gated; used to capitalize the
// insurance backstop and the LP vault on new deployments.
func (p *Pool) Fund(admin common.Address, vault string, amount uint64) error {
	if admin != p.registry.Multisig() {
		return fmt.Errorf("%w: %s may not fund pool vaults", clearing.ErrUnauthorized, admin.Hex())
	}
	switch vault {
	case LiquidityVault, InsuranceVault, ProtocolVault:
	default:
		return fmt.Errorf("%w: unknown vault %q", clearing.ErrInvalidAmount, vault)
	}
	if amount == 0 {
		return fmt.Errorf("%w: fund amount is zero", clearing.ErrInvalidAmount)
	}

	txn := p.store.Begin()
	defer txn.Discard()

	if err := creditVault(txn, vault, amount); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	p.log.Infow("pool vault funded", "vault", vault, "amount", amount)
	return nil
}

// Stats summarizes pool accounting for the API.
type Stats struct {
	Liquidity      uint64 `json:"liquidity"`
	Insurance      uint64 `json:"insurance"`
	Protocol       uint64 `json:"protocol"`
	TotalFees      uint64 `json:"totalFees"`
	PendingRebates uint64 `json:"pendingRebates"`
}

// Snapshot reads current pool balances outside any transaction.
func (p *Pool) Snapshot() (Stats, error) {
	var stats Stats
	for _, f := range []struct {
		name string
		dst  *uint64
	}{
		{LiquidityVault, &stats.Liquidity},
		{InsuranceVault, &stats.Insurance},
		{ProtocolVault, &stats.Protocol},
		{totalFeesCounter, &stats.TotalFees},
		{pendingRebatesCounter, &stats.PendingRebates},
	} {
		vb, err := p.store.GetVault(f.name)
		if err != nil {
			return Stats{}, err
		}
		*f.dst = vb.Balance
	}
	return stats, nil
}

// PendingRebate reads a keeper's unclaimed rebate balance.
func (p *Pool) PendingRebate(keeper common.Address) (uint64, error) {
	vb, err := p.store.GetVault(rebateVault(keeper))
	if err != nil {
		return 0, err
	}
	return vb.Balance, nil
}

func creditVault(txn *clearing.Txn, name string, amount uint64) error {
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
