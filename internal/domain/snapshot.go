package domain

import "time"

// TokenSnapshot is one scored observation of a token, captured once per
// housekeeping cycle. Snapshots are append-only: once written to history they
// are never mutated, and they are the sole input for the next cycle's
// momentum scores.
type TokenSnapshot struct {
	ID           int64
	TokenAddress string // Token contract address (lowercase hex)
	ChainID      int64
	ChainName    string
	Symbol       string

	// Raw metrics merged from the market-data and social providers.
	Mindshare    float64
	Liquidity    float64 // Liquidity in USD
	Volume24h    float64 // Traded volume over the last 24h in USD
	HoldersCount int64
	Price        float64 // USD price from the market pair, provider price as fallback

	// Per-factor momentum scores (z-scores against this token's own recent
	// history) and the weighted composite.
	PriceScore     float64
	VolumeScore    float64
	MindshareScore float64
	LiquidityScore float64
	HoldersScore   float64
	SocialScore    float64
	CompositeScore float64

	Timestamp time.Time
}
