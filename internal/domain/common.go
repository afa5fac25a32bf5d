package domain

// TradeAction represents the direction of a trade (BUY or SELL).
type TradeAction string

const (
	Buy  TradeAction = "BUY"
	Sell TradeAction = "SELL"
)

// SellReason indicates which exit condition flagged a position for selling.
type SellReason string

const (
	SellReasonProfitTarget     SellReason = "PROFIT_TARGET"
	SellReasonStopLoss         SellReason = "STOP_LOSS"
	SellReasonTrailingStop     SellReason = "TRAILING_STOP"
	SellReasonVolumeCollapse   SellReason = "VOLUME_COLLAPSE"
	SellReasonMomentumReversal SellReason = "MOMENTUM_REVERSAL"
	SellReasonManual           SellReason = "MANUAL"
	SellReasonForced           SellReason = "FORCED"
	SellReasonNone             SellReason = ""
)

// KnownChains maps supported network names to their numeric chain IDs.
var KnownChains = map[string]int64{
	"arbitrum":  42161,
	"base":      8453,
	"mode":      34443,
	"avalanche": 43114,
}

// ChainIDByName resolves a network name to its chain ID. Returns 0 for
// unknown names.
func ChainIDByName(name string) int64 {
	return KnownChains[name]
}

// ChainNameByID resolves a chain ID back to its network name. Returns ""
// for unknown IDs.
func ChainNameByID(id int64) string {
	for name, chainID := range KnownChains {
		if chainID == id {
			return name
		}
	}
	return ""
}
