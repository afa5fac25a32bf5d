// Command positions prints the open positions, realized performance and the
// latest scored snapshots from the trading database. Read-only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"mindshareTrader/config"
	"mindshareTrader/internal/adapters/logger"
	"mindshareTrader/internal/adapters/sqlite"
)

func main() {
	snapshots := flag.Int("snapshots", 0, "also print the N latest scored snapshots")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.New(logger.ParseLevel("ERROR"))
	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open position store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	open, err := store.GetOpenPositions(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to load open positions: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTOKEN\tCHAIN\tENTRY\tSTOP\tSELL FLAG\tSINCE")
	for _, pos := range open {
		stop := "-"
		if pos.StopLossLevel != nil {
			stop = fmt.Sprintf("%.1f%%", *pos.StopLossLevel)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.10f\t%s\t%v\t%s\n",
			pos.Symbol, pos.TokenAddress, pos.ChainName, *pos.EntryPrice, stop,
			pos.SellSignal, pos.Timestamp.Format(time.RFC3339))
	}
	w.Flush()

	closed, err := store.CountClosed(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to count closed positions: %v", err)
	}
	total, err := store.TotalProfit(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to sum realized profit: %v", err)
	}
	fmt.Printf("\nopen: %d  closed: %d  realized P/L: %+.0f%%\n", len(open), closed, total)

	if *snapshots > 0 {
		latest, err := store.LatestSnapshots(ctx, *snapshots)
		if err != nil {
			log.Fatalf("FATAL: Failed to load snapshots: %v", err)
		}
		fmt.Println()
		sw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(sw, "SYMBOL\tCHAIN\tPRICE\tSCORE\tAT")
		for _, snap := range latest {
			fmt.Fprintf(sw, "%s\t%s\t%.10f\t%.3f\t%s\n",
				snap.Symbol, snap.ChainName, snap.Price, snap.CompositeScore,
				snap.Timestamp.Format(time.RFC3339))
		}
		sw.Flush()
	}
}
