package pool

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/pkg/clearing"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

var (
	multisigAddr = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	keeperAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	engineAddr   = common.HexToAddress("0x00000000000000000000000000000000000000E1")
)

func newTestPool(t *testing.T, rebateFlat uint64) (*Pool, *clearing.Store, clearing.Authority) {
	t.Helper()

	store, err := clearing.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg, err := market.NewRegistry(multisigAddr, market.DefaultFeeSplit)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	auth := clearing.DeriveAuthority(engineAddr)
	return New(zap.NewNop().Sugar(), reg, store, auth, rebateFlat), store, auth
}

func notifyFill(t *testing.T, p *Pool, store *clearing.Store, auth clearing.Authority, fee uint64) {
	t.Helper()
	txn := store.Begin()
	defer txn.Discard()
	if err := p.NotifyTradeFill(auth, txn, clearing.TradeFill{Keeper: keeperAddr, Fee: fee}); err != nil {
		t.Fatalf("notify fill: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// The 7000/2000/1000 split credits all three vaults; integer-division dust
// lands in the protocol vault so the shares always sum to the fee.
func TestNotifyTradeFillSplitsFee(t *testing.T) {
	p, store, auth := newTestPool(t, 0)

	notifyFill(t, p, store, auth, 1_001)

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Liquidity != 700 || stats.Insurance != 200 || stats.Protocol != 101 {
		t.Errorf("split = %d/%d/%d, want 700/200/101", stats.Liquidity, stats.Insurance, stats.Protocol)
	}
	if stats.Liquidity+stats.Insurance+stats.Protocol != 1_001 {
		t.Error("split shares do not sum to the fee")
	}
	if stats.TotalFees != 1_001 {
		t.Errorf("total fees = %d, want 1001", stats.TotalFees)
	}
}

func TestNotifyTradeFillExecRebate(t *testing.T) {
	p, store, auth := newTestPool(t, 10)

	// LP share 700 covers the flat rebate of 10.
	notifyFill(t, p, store, auth, 1_000)

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Liquidity != 690 {
		t.Errorf("liquidity = %d, want 700 minus rebate 10", stats.Liquidity)
	}
	if stats.PendingRebates != 10 {
		t.Errorf("pending rebates = %d, want 10", stats.PendingRebates)
	}
	pending, err := p.PendingRebate(keeperAddr)
	if err != nil || pending != 10 {
		t.Errorf("keeper rebate = %d (%v), want 10", pending, err)
	}
}

// The rebate debit applies on top of the same fill's LP credit: with a
// prior committed balance the vault ends at prior + lpShare - rebate, so
// the fee share is never lost to a stale re-read.
func TestNotifyTradeFillRebateWithPriorBalance(t *testing.T) {
	p, store, auth := newTestPool(t, 10)
	if err := p.Fund(multisigAddr, LiquidityVault, 50); err != nil {
		t.Fatal(err)
	}

	notifyFill(t, p, store, auth, 1_000)

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Liquidity != 740 {
		t.Errorf("liquidity = %d, want 50 + 700 - 10 = 740", stats.Liquidity)
	}
	if stats.PendingRebates != 10 {
		t.Errorf("pending rebates = %d, want 10", stats.PendingRebates)
	}
	// Conservation: everything debited from traders is accounted for.
	total := stats.Liquidity + stats.Insurance + stats.Protocol + stats.PendingRebates
	if total != 1_000+50 {
		t.Errorf("pool holdings = %d, want fee 1000 plus seed 50", total)
	}
}

// The rebate is skipped, not failed, when the liquidity vault cannot cover it.
func TestNotifyTradeFillRebateSkippedWhenUnderfunded(t *testing.T) {
	p, store, auth := newTestPool(t, 10)

	// Fee 10 leaves an LP share of 7, below the flat rebate.
	notifyFill(t, p, store, auth, 10)

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Liquidity != 7 || stats.PendingRebates != 0 {
		t.Errorf("liquidity/pending = %d/%d, want 7/0", stats.Liquidity, stats.PendingRebates)
	}
}

func TestNotifyRejectsForeignAuthority(t *testing.T) {
	p, store, _ := newTestPool(t, 0)
	forged := clearing.DeriveAuthority(common.HexToAddress("0x00000000000000000000000000000000000000FF"))

	txn := store.Begin()
	defer txn.Discard()

	if err := p.NotifyTradeFill(forged, txn, clearing.TradeFill{Fee: 100}); !errors.Is(err, clearing.ErrUnauthorized) {
		t.Errorf("fill with forged authority: got %v", err)
	}
	if _, err := p.NotifyLiquidation(forged, txn, clearing.LiquidationEvent{Penalty: 100}); !errors.Is(err, clearing.ErrUnauthorized) {
		t.Errorf("liquidation with forged authority: got %v", err)
	}
}

func TestNotifyLiquidationPenaltySplit(t *testing.T) {
	p, store, auth := newTestPool(t, 0)

	txn := store.Begin()
	covered, err := p.NotifyLiquidation(auth, txn, clearing.LiquidationEvent{
		Keeper: keeperAddr, Penalty: 1_000, BadDebt: 0,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !covered {
		t.Error("zero bad debt reported uncovered")
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	// 10% keeper rebate, 90% to insurance.
	pending, err := p.PendingRebate(keeperAddr)
	if err != nil || pending != 100 {
		t.Errorf("keeper rebate = %d (%v), want 100", pending, err)
	}
	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Insurance != 900 {
		t.Errorf("insurance = %d, want 900", stats.Insurance)
	}
}

func TestNotifyLiquidationAbsorbsBadDebt(t *testing.T) {
	p, store, auth := newTestPool(t, 0)
	if err := p.Fund(multisigAddr, InsuranceVault, 5_000); err != nil {
		t.Fatal(err)
	}

	txn := store.Begin()
	covered, err := p.NotifyLiquidation(auth, txn, clearing.LiquidationEvent{
		Keeper: keeperAddr, Penalty: 1_000, BadDebt: 2_000,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !covered {
		t.Error("backstop with 5900 post-credit reported uncovered")
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	// 5000 + 900 penalty share - 2000 bad debt.
	if stats.Insurance != 3_900 {
		t.Errorf("insurance = %d, want 3900", stats.Insurance)
	}
}

// A shortfall zeroes insurance and reports uncovered; the keeper's rebate
// credit stands regardless.
func TestNotifyLiquidationShortfall(t *testing.T) {
	p, store, auth := newTestPool(t, 0)

	txn := store.Begin()
	covered, err := p.NotifyLiquidation(auth, txn, clearing.LiquidationEvent{
		Keeper: keeperAddr, Penalty: 1_000, BadDebt: 950,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if covered {
		t.Error("bad debt 950 against 900 insurance reported covered")
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Insurance != 0 {
		t.Errorf("insurance = %d, want exhaustion to 0", stats.Insurance)
	}
	pending, err := p.PendingRebate(keeperAddr)
	if err != nil || pending != 100 {
		t.Errorf("keeper rebate = %d (%v), want 100", pending, err)
	}
}

func TestClaimRebate(t *testing.T) {
	p, store, auth := newTestPool(t, 0)

	setup := store.Begin()
	if err := setup.PutAccount(clearing.NewMarginAccount(keeperAddr)); err != nil {
		t.Fatal(err)
	}
	if err := setup.Commit(); err != nil {
		t.Fatal(err)
	}

	txn := store.Begin()
	if _, err := p.NotifyLiquidation(auth, txn, clearing.LiquidationEvent{
		Keeper: keeperAddr, Penalty: 1_000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	amount, err := p.ClaimRebate(keeperAddr)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount != 100 {
		t.Errorf("claimed = %d, want 100", amount)
	}

	acct, err := store.GetAccount(keeperAddr)
	if err != nil || acct == nil {
		t.Fatal(err)
	}
	if acct.CollateralBalance != 100 {
		t.Errorf("keeper balance = %d, want 100", acct.CollateralBalance)
	}
	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.PendingRebates != 0 {
		t.Errorf("pending rebates = %d, want 0", stats.PendingRebates)
	}

	// Nothing left to claim.
	again, err := p.ClaimRebate(keeperAddr)
	if err != nil || again != 0 {
		t.Errorf("second claim = %d (%v), want 0", again, err)
	}
}

func TestFundGating(t *testing.T) {
	p, _, _ := newTestPool(t, 0)
	outsider := common.HexToAddress("0x00000000000000000000000000000000000000FF")

	if err := p.Fund(outsider, InsuranceVault, 1_000); !errors.Is(err, clearing.ErrUnauthorized) {
		t.Errorf("outsider fund: got %v", err)
	}
	if err := p.Fund(multisigAddr, "collateral", 1_000); !errors.Is(err, clearing.ErrInvalidAmount) {
		t.Errorf("non-pool vault: got %v", err)
	}
	if err := p.Fund(multisigAddr, LiquidityVault, 0); !errors.Is(err, clearing.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if err := p.Fund(multisigAddr, LiquidityVault, 1_000); err != nil {
		t.Errorf("valid fund: %v", err)
	}
	stats, err := p.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Liquidity != 1_000 {
		t.Errorf("liquidity = %d, want 1000", stats.Liquidity)
	}
}
