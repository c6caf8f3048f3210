package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/params"
	"github.com/coldbell/clearing/pkg/api"
	"github.com/coldbell/clearing/pkg/clearing"
	"github.com/coldbell/clearing/pkg/clearing/market"
	"github.com/coldbell/clearing/pkg/faucet"
	"github.com/coldbell/clearing/pkg/pool"
	"github.com/coldbell/clearing/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := buildLogger(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	multisig := common.HexToAddress(cfg.Node.Multisig)
	engineAddr := common.HexToAddress(cfg.Node.EngineIdentity)

	// ---- Registry ----
	registry, err := market.NewRegistry(multisig, market.DefaultFeeSplit)
	if err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}

	// ---- Store ----
	store, err := clearing.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "db", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Pool ----
	auth := clearing.DeriveAuthority(engineAddr)
	lpPool := pool.New(sugar, registry, store, auth, cfg.Pool.ExecRebateFlat)

	// ---- Engine ----
	engine, err := clearing.NewEngine(sugar, cfg.Engine, registry, store, lpPool, nil, engineAddr, util.RealClock{})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	// ---- Dev bootstrap: default market + funding state ----
	if err := bootstrapMarkets(engine, registry, multisig); err != nil {
		sugar.Fatalw("bootstrap_failed", "err", err)
	}

	// ---- Faucet ----
	fct := faucet.New(sugar, cfg.Faucet, engine, registry)

	// ---- API Server ----
	server := api.NewServer(sugar, engine, registry, lpPool, fct)
	engine.SetEventSink(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(cfg.Node.APIListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("clearingd_started",
		"db", cfg.Node.DBPath,
		"api", cfg.Node.APIListenAddr,
		"multisig", multisig.Hex(),
		"faucet_enabled", cfg.Faucet.Enabled)

	<-ctx.Done()
	sugar.Info("clearingd_shutting_down")
}

func buildLogger(logFile string) (*zap.Logger, error) {
	if logFile != "" {
		return util.NewLoggerWithFile(logFile)
	}
	return util.NewLogger()
}

// bootstrapMarkets registers the default dev market and its funding state
// when the registry is empty. Idempotent across restarts.
func bootstrapMarkets(engine *clearing.Engine, registry *market.Registry, multisig common.Address) error {
	if len(registry.List()) > 0 {
		return nil
	}
	feed := common.HexToHash(os.Getenv("ORACLE_FEED_SOL_USDC"))
	m, err := market.DefaultSOLUSDC(feed)
	if err != nil {
		return err
	}
	if err := registry.CreateMarket(multisig, m); err != nil {
		return err
	}
	if err := engine.InitFundingState(multisig, m.ID); err != nil && !errors.Is(err, clearing.ErrAccountExists) {
		return err
	}
	return nil
}
