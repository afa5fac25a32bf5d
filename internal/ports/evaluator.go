package ports

import (
	"context"
	"math/big"

	"mindshareTrader/internal/domain"
)

// SignalEvaluator decides buy and sell signals from scored snapshots and
// position state.
type SignalEvaluator interface {
	// EvaluateBuy reports whether a scored snapshot qualifies as a buy
	// candidate. hasOpenPosition is true when a non-finalized position
	// already exists for the snapshot's (token, chain) pair.
	EvaluateBuy(ctx context.Context, snap *domain.TokenSnapshot, hasOpenPosition bool) bool

	// EvaluateSell checks an open position against the exit conditions using
	// the freshly fetched pair quote and the token's recent history (newest
	// first). The quote carries both the base-asset price for P/L and the live
	// 24h volume for the volume-collapse check, so exits keep firing for
	// positions whose tokens stopped being scored by the aggregator.
	// Re-evaluating an already-flagged position returns false.
	EvaluateSell(ctx context.Context, pos *domain.Position, quote *PairData, history []*domain.TokenSnapshot) (bool, domain.SellReason)

	// AdjustStopLoss returns a tightened trailing stop level for the position
	// given its unrealized P/L. The second return is false when the level
	// must not change. Levels are only ever raised, never loosened.
	AdjustStopLoss(pos *domain.Position, pnlPercent float64) (float64, bool)
}

// TradeExecutor is the execution engine's contract as seen by the scheduler
// and by the manual trade path.
type TradeExecutor interface {
	// Buy swaps baseAmount (in the base asset's smallest unit) into the token
	// and returns the confirmed fill.
	Buy(ctx context.Context, chainID int64, tokenAddress string, baseAmount *big.Int) (*domain.TradeReceipt, error)
	// Sell swaps the wallet's token balance back into the base asset. A nil
	// amount sells the full balance; a zero balance is a hard error.
	Sell(ctx context.Context, chainID int64, tokenAddress string, amount *big.Int) (*domain.TradeReceipt, error)
}
