// Command trade executes one manual buy or sell through the same contracts
// the unattended loop uses, so hand-placed trades obey the same position
// invariants. Usage:
//
//	trade -action buy -chain arbitrum -token 0xabc...
//	trade -action sell -chain base -token 0xdef...
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"mindshareTrader/config"
	"mindshareTrader/internal/adapters/dexscreener"
	"mindshareTrader/internal/adapters/evm"
	"mindshareTrader/internal/adapters/logger"
	"mindshareTrader/internal/adapters/sqlite"
	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/executor"
)

func main() {
	action := flag.String("action", "", "buy or sell")
	chainName := flag.String("chain", "", "network name, e.g. arbitrum")
	token := flag.String("token", "", "token contract address")
	flag.Parse()

	if *action != "buy" && *action != "sell" {
		flag.Usage()
		os.Exit(2)
	}
	chainID := domain.ChainIDByName(*chainName)
	if chainID == 0 {
		log.Fatalf("FATAL: Unknown chain %q", *chainName)
	}
	if *token == "" {
		log.Fatalf("FATAL: Token address is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if !cfg.AllowedChain(chainID) {
		log.Fatalf("FATAL: Chain %s is not enabled in TRADING_CHAINS", *chainName)
	}

	appLogger := logger.New(logger.ParseLevel(cfg.LogLevel))

	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open position store: %v", err)
	}
	defer store.Close()

	chains, err := evm.NewRegistry(cfg.Chains, cfg.ConfirmationTimeout, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize chain registry: %v", err)
	}

	market, err := dexscreener.New(dexscreener.Config{
		BaseURL: cfg.DexScreenerURL,
		Timeout: 15 * time.Second,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data provider: %v", err)
	}

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

	trader := manualTrader{store: store, market: market, engine: engine, cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var receipt *domain.TradeReceipt
	if *action == "buy" {
		receipt, err = trader.buy(ctx, chainID, *token)
	} else {
		receipt, err = trader.sell(ctx, chainID, *token)
	}
	if err != nil {
		log.Fatalf("FATAL: %s failed: %v", *action, err)
	}

	fmt.Printf("%s confirmed: %s %s @ %.10f (%s)\n",
		receipt.Action, receipt.Symbol, receipt.TokenAddress, receipt.Price,
		chains.ExplorerTxURL(chainID, receipt.TradeID))
}
