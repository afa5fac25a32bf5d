package ports

import (
	"context"

	"mindshareTrader/internal/domain"
)

// PositionStore defines the interface for the durable position table. The
// at-most-one-open-position invariant per (token_address, chain_id) is
// enforced by the implementation's storage layer, not by callers.
type PositionStore interface {
	// UpsertCandidate creates or refreshes a candidate row from fresh
	// aggregator data. On conflict with an existing non-finalized row it must
	// merge: metric fields are updated, but entry_price, exit_price,
	// profit_loss and a raised sell_signal are never overwritten once set.
	UpsertCandidate(ctx context.Context, snap *domain.TokenSnapshot) error

	// MarkBought records the realized entry price after a confirmed buy and
	// clears the buy signal, moving the row from Candidate to Open.
	MarkBought(ctx context.Context, tokenAddress string, chainID int64, entryPrice float64) error

	// MarkSellSignal flags an open position for exit. Idempotent: flagging an
	// already-flagged row is a no-op.
	MarkSellSignal(ctx context.Context, tokenAddress string, chainID int64) error

	// UpdateStopLoss raises the dynamic trailing stop level. Implementations
	// must never lower an existing level.
	UpdateStopLoss(ctx context.Context, tokenAddress string, chainID int64, level float64) error

	// FinalizeSold records exit price and P/L percent and marks the row
	// finalized. The row is terminal afterwards.
	FinalizeSold(ctx context.Context, tokenAddress string, chainID int64, exitPrice, pnlPercent float64) error

	// GetOpenPositions returns non-finalized positions with a confirmed entry.
	GetOpenPositions(ctx context.Context) ([]*domain.Position, error)
	// GetBuyCandidates returns non-finalized rows flagged for buying that have
	// no entry price yet.
	GetBuyCandidates(ctx context.Context) ([]*domain.Position, error)
	// GetSellCandidates returns non-finalized rows flagged for selling.
	GetSellCandidates(ctx context.Context) ([]*domain.Position, error)
	// FindPosition returns the non-finalized row for the pair, or nil if none.
	FindPosition(ctx context.Context, tokenAddress string, chainID int64) (*domain.Position, error)
	// CountClosed returns the number of finalized positions.
	CountClosed(ctx context.Context) (int, error)
	// TotalProfit sums the stored P/L percent over all finalized positions.
	TotalProfit(ctx context.Context) (float64, error)
}

// SnapshotHistory defines the interface for the append-only scored snapshot
// table used for z-score lookback.
type SnapshotHistory interface {
	// AppendSnapshot writes one scored snapshot. Unconditional per cycle so
	// future z-scores remain well-founded.
	AppendSnapshot(ctx context.Context, snap *domain.TokenSnapshot) error

	// RecentSnapshots returns up to limit snapshots for the token/chain pair,
	// newest first.
	RecentSnapshots(ctx context.Context, tokenAddress string, chainID int64, limit int) ([]*domain.TokenSnapshot, error)

	// LatestSnapshots returns the most recent snapshots across all tokens,
	// newest first, for status reporting.
	LatestSnapshots(ctx context.Context, limit int) ([]*domain.TokenSnapshot, error)
}
