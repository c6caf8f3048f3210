package market

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	keeper   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000FF")
)

func validMarket(t *testing.T) *Market {
	t.Helper()
	m, err := DefaultSOLUSDC(common.Hash{0x01})
	if err != nil {
		t.Fatalf("default market: %v", err)
	}
	return m
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(admin, DefaultFeeSplit)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestRiskParamsValidation(t *testing.T) {
	base := validMarket(t).Risk

	cases := []struct {
		name   string
		mutate func(*RiskParams)
		errSub string
	}{
		{"valid", func(r *RiskParams) {}, ""},
		{"zero leverage", func(r *RiskParams) { r.MaxLeverage = 0 }, "leverage"},
		{"imr equals mmr", func(r *RiskParams) { r.IMRBps = r.MMRBps }, "must exceed"},
		{"imr below mmr", func(r *RiskParams) { r.IMRBps = r.MMRBps - 1 }, "must exceed"},
		{"zero oi cap", func(r *RiskParams) { r.OICap = 0 }, "oi cap"},
		{"zero max notional", func(r *RiskParams) { r.MaxTradeNotional = 0 }, "max trade notional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			err := p.Validate()
			if tc.errSub == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.errSub) {
				t.Errorf("got %v, want error containing %q", err, tc.errSub)
			}
		})
	}
}

func TestFeeSplitValidation(t *testing.T) {
	if err := DefaultFeeSplit.Validate(); err != nil {
		t.Errorf("default split: %v", err)
	}
	bad := FeeSplit{LPBps: 7_000, InsuranceBps: 2_000, ProtocolBps: 999}
	if err := bad.Validate(); err == nil {
		t.Error("split summing to 9999 bps accepted")
	}
}

func TestRegistryAdminGating(t *testing.T) {
	r := newRegistry(t)
	m := validMarket(t)

	if err := r.CreateMarket(outsider, m); err == nil {
		t.Error("outsider created a market")
	}
	if err := r.CreateMarket(admin, m); err != nil {
		t.Fatalf("admin create: %v", err)
	}
	if err := r.CreateMarket(admin, m); err == nil {
		t.Error("duplicate market id accepted")
	}

	if err := r.SetGlobalPause(outsider, true); err == nil {
		t.Error("outsider set global pause")
	}
	if err := r.AddKeeper(outsider, keeper); err == nil {
		t.Error("outsider added a keeper")
	}
	if err := r.SetStatus(outsider, m.ID, Paused); err == nil {
		t.Error("outsider changed market status")
	}
	if err := r.UpdateParams(outsider, m.ID, m.Risk, m.Pricing, m.Funding, m.Fees); err == nil {
		t.Error("outsider updated params")
	}
}

// Get hands out copies: mutating the result must not leak into the registry.
func TestRegistryGetReturnsCopies(t *testing.T) {
	r := newRegistry(t)
	if err := r.CreateMarket(admin, validMarket(t)); err != nil {
		t.Fatal(err)
	}

	first, err := r.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	first.Risk.OICap = 1
	first.Status = Halted

	second, err := r.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if second.Risk.OICap == 1 || second.Status == Halted {
		t.Error("registry state mutated through a Get copy")
	}
}

func TestRegistryUpdateParamsRevalidates(t *testing.T) {
	r := newRegistry(t)
	m := validMarket(t)
	if err := r.CreateMarket(admin, m); err != nil {
		t.Fatal(err)
	}

	bad := m.Risk
	bad.IMRBps = bad.MMRBps // invalid: must exceed
	if err := r.UpdateParams(admin, m.ID, bad, m.Pricing, m.Funding, m.Fees); err == nil {
		t.Error("invalid param update accepted")
	}
	// Original params survive the rejected update.
	got, err := r.Get(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Risk.IMRBps != m.Risk.IMRBps {
		t.Errorf("imr = %d, want %d", got.Risk.IMRBps, m.Risk.IMRBps)
	}
}

// The multisig may execute orders but is never implicitly a keeper.
func TestKeeperAndExecutorSets(t *testing.T) {
	r := newRegistry(t)

	if r.IsExecutor(keeper) || r.IsKeeper(keeper) {
		t.Error("unregistered keeper recognized")
	}
	if !r.IsExecutor(admin) {
		t.Error("multisig not recognized as executor")
	}
	if r.IsKeeper(admin) {
		t.Error("multisig implicitly treated as keeper")
	}

	if err := r.AddKeeper(admin, keeper); err != nil {
		t.Fatal(err)
	}
	if !r.IsKeeper(keeper) || !r.IsExecutor(keeper) {
		t.Error("registered keeper not recognized")
	}

	if err := r.RemoveKeeper(admin, keeper); err != nil {
		t.Fatal(err)
	}
	if r.IsKeeper(keeper) || r.IsExecutor(keeper) {
		t.Error("removed keeper still recognized")
	}
}

func TestGlobalPauseToggle(t *testing.T) {
	r := newRegistry(t)
	if r.GlobalPause() {
		t.Error("registry starts paused")
	}
	if err := r.SetGlobalPause(admin, true); err != nil {
		t.Fatal(err)
	}
	if !r.GlobalPause() {
		t.Error("pause not set")
	}
	if err := r.SetGlobalPause(admin, false); err != nil {
		t.Fatal(err)
	}
	if r.GlobalPause() {
		t.Error("pause not cleared")
	}
}
