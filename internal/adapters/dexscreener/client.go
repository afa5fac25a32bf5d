package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mindshareTrader/internal/ports"
)

// Client implements ports.MarketDataProvider against the DexScreener
// token-pairs API. No authentication is required.
type Client struct {
	http   *resty.Client
	logger ports.Logger
}

// Config holds configuration for the DexScreener client.
type Config struct {
	BaseURL string // e.g. https://api.dexscreener.com/latest
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a new DexScreener client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for DexScreener client")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dexscreener.com/latest"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, logger: cfg.Logger}, nil
}

// pairsResponse mirrors the relevant slice of the DexScreener payload.
type pairsResponse struct {
	Pairs []pairEntry `json:"pairs"`
}

type pairEntry struct {
	URL       string `json:"url"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUSD    string `json:"priceUsd"`
	PriceNative string `json:"priceNative"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

// FetchPair fetches the most liquid trading pair for the token address.
// A token without any trading pair yields ports.ErrNoPairData; it is a valid
// "no data" outcome, not an infrastructure failure.
func (c *Client) FetchPair(ctx context.Context, tokenAddress string) (*ports.PairData, error) {
	var out pairsResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/dex/tokens/" + tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request for %s failed: %w", tokenAddress, ports.ErrProviderUnavailable)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("dexscreener throttled request for %s: %w", tokenAddress, ports.ErrRateLimited)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("dexscreener responded %d for %s: %w", resp.StatusCode(), tokenAddress, ports.ErrProviderUnavailable)
	}
	if len(out.Pairs) == 0 {
		return nil, fmt.Errorf("token %s: %w", tokenAddress, ports.ErrNoPairData)
	}

	// The first entry is the most active pair. Prefer a pair quoted in the
	// wrapped native asset so PriceNative matches entry-price denomination.
	best := out.Pairs[0]
	for _, p := range out.Pairs {
		if strings.EqualFold(p.QuoteToken.Symbol, "WETH") {
			best = p
			break
		}
	}

	priceUSD, err := parsePrice(best.PriceUSD)
	if err != nil {
		return nil, fmt.Errorf("token %s priceUsd %q: %w", tokenAddress, best.PriceUSD, ports.ErrMalformedResponse)
	}
	priceNative, err := parsePrice(best.PriceNative)
	if err != nil {
		return nil, fmt.Errorf("token %s priceNative %q: %w", tokenAddress, best.PriceNative, ports.ErrMalformedResponse)
	}

	data := &ports.PairData{
		Symbol:       best.BaseToken.Symbol,
		PriceUSD:     priceUSD,
		PriceNative:  priceNative,
		LiquidityUSD: best.Liquidity.USD,
		Volume24h:    best.Volume.H24,
		PairURL:      best.URL,
	}
	c.logger.Debug(ctx, "Fetched pair data", map[string]interface{}{
		"token":     tokenAddress,
		"symbol":    data.Symbol,
		"priceUSD":  data.PriceUSD,
		"liquidity": data.LiquidityUSD,
	})
	return data, nil
}

// parsePrice tolerates empty price strings, which DexScreener returns for
// pairs without a settled price yet.
func parsePrice(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}
