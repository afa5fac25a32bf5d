package domain

import (
	"math"
	"time"
)

// Position tracks a single buy-to-sell trading lifecycle for one token on one
// chain. At most one non-finalized row may exist per (token_address, chain_id)
// pair; the storage layer enforces this with a partial unique index.
//
// Lifecycle: Candidate (buy_signal set, no entry price) -> Open (entry price
// recorded after a confirmed buy) -> Flagged (sell_signal set) -> Closed
// (finalized with exit price and P/L). States are never skipped and a closed
// row is never mutated again.
type Position struct {
	ID           int64
	TokenAddress string
	ChainID      int64
	ChainName    string
	Symbol       string

	// Metrics as of the last aggregator upsert. Once the position is open the
	// aggregator no longer touches the row, so Volume24h is the volume
	// recorded at entry and is the baseline for the volume-collapse exit.
	Mindshare    float64
	Liquidity    float64
	Volume24h    float64
	HoldersCount int64
	Price        float64

	PriceScore     float64
	VolumeScore    float64
	MindshareScore float64
	LiquidityScore float64
	HoldersScore   float64
	SocialScore    float64
	CompositeScore float64

	BuySignal  bool
	SellSignal bool

	// Nullable trade economics, set only by the execution engine.
	EntryPrice        *float64
	ExitPrice         *float64
	ProfitLossPercent *float64
	StopLossLevel     *float64 // Dynamic trailing stop in P/L percent, e.g. -20

	Finalized bool
	Timestamp time.Time
}

// IsOpen reports whether the position has a confirmed entry and has not been
// finalized yet.
func (p *Position) IsOpen() bool {
	return p.EntryPrice != nil && !p.Finalized
}

// ProfitLossAt returns the unrealized P/L percent at the given current price,
// denominated in the same base asset as the entry price. Returns 0 when the
// position has no entry price or a zero entry price.
func (p *Position) ProfitLossAt(currentPrice float64) float64 {
	if p.EntryPrice == nil || *p.EntryPrice == 0 {
		return 0
	}
	return ((currentPrice - *p.EntryPrice) / *p.EntryPrice) * 100
}

// RoundedPnL computes the P/L percent rounded to the nearest integer, as it
// is stored at finalize time.
func RoundedPnL(entryPrice, exitPrice float64) float64 {
	if entryPrice == 0 {
		return 0
	}
	return math.Round(((exitPrice - entryPrice) / entryPrice) * 100)
}

// Snapshot copies the position's metric fields into a TokenSnapshot, used
// when a fresh scoring pass needs to upsert candidate rows.
func (p *Position) Snapshot() *TokenSnapshot {
	return &TokenSnapshot{
		TokenAddress:   p.TokenAddress,
		ChainID:        p.ChainID,
		ChainName:      p.ChainName,
		Symbol:         p.Symbol,
		Mindshare:      p.Mindshare,
		Liquidity:      p.Liquidity,
		Volume24h:      p.Volume24h,
		HoldersCount:   p.HoldersCount,
		Price:          p.Price,
		PriceScore:     p.PriceScore,
		VolumeScore:    p.VolumeScore,
		MindshareScore: p.MindshareScore,
		LiquidityScore: p.LiquidityScore,
		HoldersScore:   p.HoldersScore,
		SocialScore:    p.SocialScore,
		CompositeScore: p.CompositeScore,
		Timestamp:      p.Timestamp,
	}
}
