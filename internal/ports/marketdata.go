package ports

import "context"

// PairData holds per-token market facts from the pair-screening provider.
type PairData struct {
	Symbol       string
	PriceUSD     float64 // Best-pair price in USD
	PriceNative  float64 // Price denominated in the chain's base asset (e.g., WETH)
	LiquidityUSD float64
	Volume24h    float64
	PairURL      string
}

// MarketDataProvider fetches price/liquidity/volume facts by token contract
// address. The absence of any trading pair is reported as ErrNoPairData, a
// valid "no data" outcome rather than an infrastructure failure.
type MarketDataProvider interface {
	FetchPair(ctx context.Context, tokenAddress string) (*PairData, error)
}

// TokenContract associates an on-chain contract with the chain it lives on.
type TokenContract struct {
	Address string
	ChainID int64
}

// SocialMetrics holds per-identifier social telemetry from the mindshare
// provider, with the on-chain contracts the identifier is associated with.
type SocialMetrics struct {
	Identifier     string
	Symbol         string
	Mindshare      float64
	MindshareDelta float64 // Percent change reported by the provider
	HoldersCount   int64
	Price          float64 // Provider's own USD price, used as fallback
	PriceDelta     float64
	Contracts      []TokenContract
}

// SocialDataProvider fetches mindshare and holder data by identifier and
// lists trending tokens page by page.
type SocialDataProvider interface {
	FetchMetrics(ctx context.Context, identifier, interval string) (*SocialMetrics, error)
	ListTrending(ctx context.Context, interval string, page, pageSize int) ([]*SocialMetrics, error)
}
