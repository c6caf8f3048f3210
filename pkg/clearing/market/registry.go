package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeSplit divides trading fees between liquidity providers, the insurance
// backstop, and the protocol. Must sum to exactly 10000 bps.
type FeeSplit struct {
	LPBps        uint16
	InsuranceBps uint16
	ProtocolBps  uint16
}

func (f FeeSplit) Validate() error {
	if int(f.LPBps)+int(f.InsuranceBps)+int(f.ProtocolBps) != 10_000 {
		return fmt.Errorf("fee split must sum to 10000 bps")
	}
	return nil
}

// DefaultFeeSplit is 70% LP / 20% insurance / 10% protocol.
var DefaultFeeSplit = FeeSplit{LPBps: 7_000, InsuranceBps: 2_000, ProtocolBps: 1_000}

// Registry is the market-configuration collaborator: market records keyed by
// id, the authorized keeper set, the privileged multisig, and the global
// pause flag. All mutation is admin-gated behind the multisig identity.
//
// The clearing engine re-reads records through Get on every call; it must
// never cache a *Market across operations.
type Registry struct {
	mu          sync.RWMutex
	markets     map[uint64]*Market
	keepers     map[common.Address]bool
	multisig    common.Address
	globalPause bool
	feeSplit    FeeSplit
	updatedAt   int64
}

// NewRegistry creates a registry governed by the given multisig identity.
func NewRegistry(multisig common.Address, split FeeSplit) (*Registry, error) {
	if err := split.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		markets:   make(map[uint64]*Market),
		keepers:   make(map[common.Address]bool),
		multisig:  multisig,
		feeSplit:  split,
		updatedAt: time.Now().Unix(),
	}, nil
}

// Get returns a copy of the market record, so callers cannot mutate registry
// state and cannot observe admin updates mid-operation.
func (r *Registry) Get(id uint64) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d not found", id)
	}
	cp := *m
	return &cp, nil
}

// List returns copies of all registered markets.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// CreateMarket registers a new market. Admin-gated.
func (r *Registry) CreateMarket(admin common.Address, m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if _, exists := r.markets[m.ID]; exists {
		return fmt.Errorf("market %d already exists", m.ID)
	}
	cp := *m
	r.markets[m.ID] = &cp
	r.updatedAt = time.Now().Unix()
	return nil
}

// UpdateParams replaces a market's risk/pricing/funding/fee parameters.
// Admin-gated; status is not touched here.
func (r *Registry) UpdateParams(admin common.Address, id uint64, risk RiskParams, pricing PricingParams, funding FundingParams, fees FeeParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	m, ok := r.markets[id]
	if !ok {
		return fmt.Errorf("market %d not found", id)
	}
	updated := *m
	updated.Risk = risk
	updated.Pricing = pricing
	updated.Funding = funding
	updated.Fees = fees
	if err := updated.Validate(); err != nil {
		return err
	}
	r.markets[id] = &updated
	r.updatedAt = time.Now().Unix()
	return nil
}

// SetStatus moves a market between Active/Paused/Halted. Admin-gated.
func (r *Registry) SetStatus(admin common.Address, id uint64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	m, ok := r.markets[id]
	if !ok {
		return fmt.Errorf("market %d not found", id)
	}
	m.Status = status
	r.updatedAt = time.Now().Unix()
	return nil
}

// AddKeeper authorizes an executor identity. Admin-gated.
func (r *Registry) AddKeeper(admin, keeper common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	r.keepers[keeper] = true
	r.updatedAt = time.Now().Unix()
	return nil
}

// RemoveKeeper revokes an executor identity. Admin-gated.
func (r *Registry) RemoveKeeper(admin, keeper common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	delete(r.keepers, keeper)
	r.updatedAt = time.Now().Unix()
	return nil
}

// SetGlobalPause toggles the venue-wide trading pause. Admin-gated.
func (r *Registry) SetGlobalPause(admin common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdmin(admin); err != nil {
		return err
	}
	r.globalPause = paused
	r.updatedAt = time.Now().Unix()
	return nil
}

// GlobalPause reports whether the venue-wide pause is set.
func (r *Registry) GlobalPause() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.globalPause
}

// FeeSplit returns the venue fee split.
func (r *Registry) FeeSplit() FeeSplit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeSplit
}

// IsKeeper reports whether addr is in the keeper set. The multisig is NOT
// implicitly a keeper; liquidation is keeper-only.
func (r *Registry) IsKeeper(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keepers[addr]
}

// IsExecutor reports whether addr may execute or executor-cancel orders:
// any keeper, or the privileged multisig.
func (r *Registry) IsExecutor(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keepers[addr] || addr == r.multisig
}

// Multisig returns the privileged admin identity.
func (r *Registry) Multisig() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.multisig
}

func (r *Registry) requireAdmin(addr common.Address) error {
	if addr != r.multisig {
		return fmt.Errorf("unauthorized: %s is not the registry multisig", addr.Hex())
	}
	return nil
}
