package main

import (
	"context"
	"log" // Standard log only for fatal errors before the logger is up
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindshareTrader/config"
	"mindshareTrader/internal/adapters/cookiefun"
	"mindshareTrader/internal/adapters/dexscreener"
	"mindshareTrader/internal/adapters/evm"
	"mindshareTrader/internal/adapters/logger"
	"mindshareTrader/internal/adapters/sqlite"
	"mindshareTrader/internal/aggregator"
	"mindshareTrader/internal/app"
	"mindshareTrader/internal/executor"
	"mindshareTrader/internal/signals"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	appLogger := logger.New(logger.ParseLevel(cfg.LogLevel))
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize position store
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing position store")
		}
	}()
	appLogger.Info(context.Background(), "Position store initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize chain registry
	chains, err := evm.NewRegistry(cfg.Chains, cfg.ConfirmationTimeout, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize chain registry: %v", err)
	}

	// 5. Initialize data providers
	market, err := dexscreener.New(dexscreener.Config{
		BaseURL: cfg.DexScreenerURL,
		Timeout: 15 * time.Second,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data provider: %v", err)
	}
	social, err := cookiefun.New(cookiefun.Config{
		BaseURL: cfg.CookieBaseURL,
		APIKey:  cfg.CookieAPIKey,
		Timeout: 15 * time.Second,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize social data provider: %v", err)
	}

	// 6. Initialize signal evaluator
	evaluator, err := signals.NewEvaluator(signals.Config{
		BuyThreshold:        cfg.BuyThreshold,
		ProfitTargetPercent: cfg.ProfitTargetPercent,
		StopLossPercent:     cfg.StopLossPercent,
		TrailingTrigger:     cfg.TrailingTrigger,
		TrailingStopPercent: cfg.TrailingStopPercent,
		VolumeCollapseDrop:  cfg.VolumeCollapseDrop,
		PriceZScoreFloor:    cfg.PriceZScoreFloor,
		Logger:              appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal evaluator: %v", err)
	}

	// 7. Initialize aggregator
	allowed := make(map[int64]bool, len(cfg.Chains))
	for chainID := range cfg.Chains {
		allowed[chainID] = true
	}
	scorer, err := aggregator.New(aggregator.Config{
		Market:           market,
		Social:           social,
		History:          store,
		Store:            store,
		Evaluator:        evaluator,
		Logger:           appLogger,
		AllowedChains:    allowed,
		PriceWeight:      cfg.Weights.Price,
		VolumeWeight:     cfg.Weights.Volume,
		MindshareWeight:  cfg.Weights.Mindshare,
		LiquidityWeight:  cfg.Weights.Liquidity,
		HoldersWeight:    cfg.Weights.Holders,
		Lookback:         cfg.SnapshotLookback,
		Interval:         cfg.SocialInterval,
		TrendingPageSize: cfg.TrendingPageSize,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize aggregator: %v", err)
	}

	// 8. Initialize execution engine
	engine, err := executor.NewEngine(executor.Config{
		Chains:               chains,
		Logger:               appLogger,
		SlippageBps:          cfg.SlippageBps,
		BalanceReadRetries:   cfg.BalanceReadRetries,
		BalanceRetryBaseWait: cfg.BalanceRetryBaseWait,
		DryRun:               cfg.DryRun,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize execution engine: %v", err)
	}

	// 9. Initialize housekeeping service
	service, err := app.NewService(app.Config{
		Store:          store,
		History:        store,
		Scorer:         scorer,
		Evaluator:      evaluator,
		Executor:       engine,
		Market:         market,
		Chains:         chains,
		Logger:         appLogger,
		TradeAmountWei: cfg.TradeAmountWei,
		CycleInterval:  cfg.CycleInterval,
		Lookback:       cfg.SnapshotLookback,
		ForceSellAll:   cfg.ForceSellAll,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize housekeeping service: %v", err)
	}

	// 10. Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil && ctx.Err() == nil {
		appLogger.Error(context.Background(), err, "Housekeeping service exited with error")
		os.Exit(1)
	}

	appLogger.Info(context.Background(), "Shutdown complete")
}
