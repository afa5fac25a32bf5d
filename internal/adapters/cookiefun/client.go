package cookiefun

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

// Client implements ports.SocialDataProvider against the Cookie agents API,
// which reports social mindshare, holder counts and the on-chain contracts
// associated with each tracked identifier.
type Client struct {
	http   *resty.Client
	logger ports.Logger
}

// Config holds configuration for the Cookie API client.
type Config struct {
	BaseURL string // e.g. https://api.cookie.fun/v2
	APIKey  string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a new Cookie API client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Cookie API client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Cookie API client: %w", ports.ErrConfigurationError)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cookie.fun/v2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, logger: cfg.Logger}, nil
}

type agentPayload struct {
	AgentName         string  `json:"agentName"`
	Mindshare         float64 `json:"mindshare"`
	MindshareDeltaPct float64 `json:"mindshareDeltaPercent"`
	HoldersCount      int64   `json:"holdersCount"`
	Price             float64 `json:"price"`
	PriceDeltaPercent float64 `json:"priceDeltaPercent"`
	Contracts         []struct {
		ContractAddress string `json:"contractAddress"`
		Chain           int64  `json:"chain"`
	} `json:"contracts"`
}

type agentResponse struct {
	OK agentPayload `json:"ok"`
}

type agentsPagedResponse struct {
	OK struct {
		Data []agentPayload `json:"data"`
	} `json:"ok"`
}

// FetchMetrics fetches social metrics for one identifier.
func (c *Client) FetchMetrics(ctx context.Context, identifier, interval string) (*ports.SocialMetrics, error) {
	var out agentResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("interval", interval).
		SetResult(&out).
		Get("/agents/" + identifier)
	if err != nil {
		return nil, fmt.Errorf("cookie API request for %s failed: %w", identifier, ports.ErrProviderUnavailable)
	}
	if err := statusToError(resp.StatusCode(), identifier); err != nil {
		return nil, err
	}

	metrics := toSocialMetrics(out.OK)
	metrics.Identifier = identifier
	return metrics, nil
}

// ListTrending fetches one page of the trending-token listing.
func (c *Client) ListTrending(ctx context.Context, interval string, page, pageSize int) ([]*ports.SocialMetrics, error) {
	var out agentsPagedResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"interval": interval,
			"page":     strconv.Itoa(page),
			"pageSize": strconv.Itoa(pageSize),
		}).
		SetResult(&out).
		Get("/agents/agentsPaged")
	if err != nil {
		return nil, fmt.Errorf("cookie API paged request failed: %w", ports.ErrProviderUnavailable)
	}
	if err := statusToError(resp.StatusCode(), "agentsPaged"); err != nil {
		return nil, err
	}

	results := make([]*ports.SocialMetrics, 0, len(out.OK.Data))
	for _, agent := range out.OK.Data {
		m := toSocialMetrics(agent)
		m.Identifier = agent.AgentName
		results = append(results, m)
	}
	c.logger.Debug(ctx, "Fetched trending listing", map[string]interface{}{"page": page, "count": len(results)})
	return results, nil
}

func toSocialMetrics(agent agentPayload) *ports.SocialMetrics {
	m := &ports.SocialMetrics{
		Symbol:         agent.AgentName,
		Mindshare:      agent.Mindshare,
		MindshareDelta: agent.MindshareDeltaPct,
		HoldersCount:   agent.HoldersCount,
		Price:          agent.Price,
		PriceDelta:     agent.PriceDeltaPercent,
	}
	for _, contract := range agent.Contracts {
		m.Contracts = append(m.Contracts, ports.TokenContract{
			Address: strings.ToLower(contract.ContractAddress),
			ChainID: contract.Chain,
		})
	}
	return m
}

func statusToError(status int, subject string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("cookie API throttled %s: %w", subject, ports.ErrRateLimited)
	case status >= 400:
		return fmt.Errorf("cookie API responded %d for %s: %w", status, subject, ports.ErrProviderUnavailable)
	}
	return nil
}
