// Package faucet hands out test collateral on dev networks. It is disabled
// by default and must never be enabled against real funds.
package faucet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/params"
	"github.com/coldbell/clearing/pkg/clearing"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

// ErrDisabled is returned when the faucet is not enabled for this network.
var ErrDisabled = errors.New("faucet is disabled")

// Faucet credits margin accounts with test collateral through the engine's
// deposit path, so faucet funds are indistinguishable from real deposits
// downstream.
type Faucet struct {
	log      *zap.SugaredLogger
	engine   *clearing.Engine
	registry *market.Registry

	mu           sync.RWMutex
	enabled      bool
	defaultClaim uint64
	maxClaim     uint64
}

func New(log *zap.SugaredLogger, cfg params.Faucet, engine *clearing.Engine, registry *market.Registry) *Faucet {
	return &Faucet{
		log:          log,
		engine:       engine,
		registry:     registry,
		enabled:      cfg.Enabled,
		defaultClaim: cfg.DefaultClaim,
		maxClaim:     cfg.MaxClaim,
	}
}

// Claim credits the owner's margin account. A zero amount claims the
// default; claims above the max are rejected. The margin account is created
// on first claim, a dev-network convenience.
func (f *Faucet) Claim(owner common.Address, amount uint64) (uint64, error) {
	f.mu.RLock()
	enabled, defaultClaim, maxClaim := f.enabled, f.defaultClaim, f.maxClaim
	f.mu.RUnlock()

	if !enabled {
		return 0, ErrDisabled
	}
	if amount == 0 {
		amount = defaultClaim
	}
	if amount > maxClaim {
		return 0, fmt.Errorf("%w: claim %d exceeds max %d", clearing.ErrInvalidAmount, amount, maxClaim)
	}

	if err := f.engine.CreateMarginAccount(owner); err != nil && !errors.Is(err, clearing.ErrAccountExists) {
		return 0, err
	}
	if err := f.engine.Deposit(owner, amount); err != nil {
		return 0, err
	}
	f.log.Infow("faucet claim", "owner", owner.Hex(), "amount", amount)
	return amount, nil
}

// SetLimits updates claim limits. Admin-gated.
func (f *Faucet) SetLimits(admin common.Address, defaultClaim, maxClaim uint64) error {
	if admin != f.registry.Multisig() {
		return fmt.Errorf("%w: %s may not tune the faucet", clearing.ErrUnauthorized, admin.Hex())
	}
	if defaultClaim == 0 || maxClaim == 0 || defaultClaim > maxClaim {
		return fmt.Errorf("%w: default %d / max %d", clearing.ErrInvalidAmount, defaultClaim, maxClaim)
	}
	f.mu.Lock()
	f.defaultClaim = defaultClaim
	f.maxClaim = maxClaim
	f.mu.Unlock()
	f.log.Infow("faucet limits updated", "default", defaultClaim, "max", maxClaim)
	return nil
}

// Enabled reports whether claims are allowed.
func (f *Faucet) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}
