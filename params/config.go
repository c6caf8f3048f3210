package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Node struct {
	// DBPath is where the pebble ledger lives.
	DBPath string
	// APIListenAddr is the HTTP/WS listen address.
	APIListenAddr string
	// LogFile, when set, tees structured logs to a file in addition to stdout.
	LogFile string
	// Multisig is the privileged admin identity governing the registry.
	Multisig string
	// EngineIdentity is the engine's own address; its pool authority is
	// derived from it.
	EngineIdentity string
}

type Pool struct {
	// ExecRebateFlat is credited to the executing keeper per fill, paid
	// from the liquidity vault. Zero disables fill rebates.
	ExecRebateFlat uint64
}

type Engine struct {
	// MaxOrderTTL bounds how far in the future an order may expire.
	MaxOrderTTL time.Duration
	// LiquidationPenaltyBps is charged on the notional removed by a
	// liquidation and split between keeper and insurance. Capped at 5000.
	LiquidationPenaltyBps int64
	// MaxIMRBps gates withdrawals: post-withdraw collateral must stay at or
	// above this fraction of total open notional. Capped at 10000.
	MaxIMRBps int64
}

// Validate rejects engine limits outside their documented ranges.
func (e Engine) Validate() error {
	if e.MaxOrderTTL <= 0 {
		return fmt.Errorf("max order TTL must be positive, got %s", e.MaxOrderTTL)
	}
	if e.LiquidationPenaltyBps < 0 || e.LiquidationPenaltyBps > 5000 {
		return fmt.Errorf("liquidation penalty %d bps outside [0, 5000]", e.LiquidationPenaltyBps)
	}
	if e.MaxIMRBps < 0 || e.MaxIMRBps > 10000 {
		return fmt.Errorf("max IMR %d bps outside [0, 10000]", e.MaxIMRBps)
	}
	return nil
}

type Faucet struct {
	// Enabled turns the test-collateral faucet on. Never enable outside
	// dev/test networks.
	Enabled bool
	// DefaultClaim is credited when a claim names no amount.
	DefaultClaim uint64
	// MaxClaim bounds a single claim.
	MaxClaim uint64
}

type Config struct {
	Node   Node
	Engine Engine
	Pool   Pool
	Faucet Faucet
}

func Default() Config {
	return Config{
		Node: Node{
			DBPath:        "./data/clearing",
			APIListenAddr: ":8080",
			// Dev defaults; override on any real deployment.
			Multisig:       "0x00000000000000000000000000000000000000A1",
			EngineIdentity: "0x00000000000000000000000000000000000000E1",
		},
		Engine: Engine{
			MaxOrderTTL:           24 * time.Hour,
			LiquidationPenaltyBps: 500, // 5%
			MaxIMRBps:             1000,
		},
		Faucet: Faucet{
			Enabled:      false,
			DefaultClaim: 1_000_000_000,  // 1,000 USDC at 1e6
			MaxClaim:     10_000_000_000, // 10,000 USDC
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Node.DBPath = getEnv("CLEARING_DB_PATH", cfg.Node.DBPath)
	cfg.Node.APIListenAddr = getEnv("CLEARING_API_ADDR", cfg.Node.APIListenAddr)
	cfg.Node.LogFile = getEnv("CLEARING_LOG_FILE", cfg.Node.LogFile)
	cfg.Node.Multisig = getEnv("CLEARING_MULTISIG", cfg.Node.Multisig)
	cfg.Node.EngineIdentity = getEnv("CLEARING_ENGINE_IDENTITY", cfg.Node.EngineIdentity)

	if amt := os.Getenv("POOL_EXEC_REBATE"); amt != "" {
		if v, err := strconv.ParseUint(amt, 10, 64); err == nil {
			cfg.Pool.ExecRebateFlat = v
		}
	}

	if ttl := os.Getenv("ENGINE_MAX_ORDER_TTL_SECS"); ttl != "" {
		if secs, err := strconv.Atoi(ttl); err == nil {
			cfg.Engine.MaxOrderTTL = time.Duration(secs) * time.Second
		}
	}
	if bps := os.Getenv("ENGINE_LIQ_PENALTY_BPS"); bps != "" {
		if v, err := strconv.ParseInt(bps, 10, 64); err == nil {
			cfg.Engine.LiquidationPenaltyBps = v
		}
	}
	if bps := os.Getenv("ENGINE_MAX_IMR_BPS"); bps != "" {
		if v, err := strconv.ParseInt(bps, 10, 64); err == nil {
			cfg.Engine.MaxIMRBps = v
		}
	}

	if enabled := os.Getenv("FAUCET_ENABLED"); enabled != "" {
		cfg.Faucet.Enabled = enabled == "true"
	}
	if amt := os.Getenv("FAUCET_DEFAULT_CLAIM"); amt != "" {
		if v, err := strconv.ParseUint(amt, 10, 64); err == nil {
			cfg.Faucet.DefaultClaim = v
		}
	}
	if amt := os.Getenv("FAUCET_MAX_CLAIM"); amt != "" {
		if v, err := strconv.ParseUint(amt, 10, 64); err == nil {
			cfg.Faucet.MaxClaim = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
