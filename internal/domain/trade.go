package domain

import "time"

// TradeReceipt describes a confirmed on-chain swap. It is transient: the
// execution engine returns it to the caller, which folds the realized price
// into the Position row.
type TradeReceipt struct {
	TradeID      string // Chain transaction hash
	TokenAddress string
	Symbol       string
	Action       TradeAction
	Price        float64 // Realized fill price in base-asset units per token
	Amount       float64 // Tokens received (buy) or sold (sell)
	Timestamp    time.Time
}

// CycleResult summarizes one housekeeping cycle for the caller. The summary
// is a short human-readable string, never a stack trace.
type CycleResult struct {
	CycleID       string
	Success       bool
	Summary       string
	Scored        int
	BoughtTokens  int
	SoldTokens    int
	OpenPositions int
	ClosedTotal   int
}
