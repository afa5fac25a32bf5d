package cookiefun

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindshareTrader/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
		Logger:  &mockLogger{},
	})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestFetchMetrics(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/aixbt", r.URL.Path)
		assert.Equal(t, "_7Days", r.URL.Query().Get("interval"))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":{
			"agentName":"aixbt",
			"mindshare":3.2,
			"mindshareDeltaPercent":12.5,
			"holdersCount":150000,
			"price":0.21,
			"priceDeltaPercent":-4.2,
			"contracts":[
				{"contractAddress":"0xABCDEF","chain":8453},
				{"contractAddress":"0x123456","chain":42161}
			]}}`))
	})

	metrics, err := client.FetchMetrics(context.Background(), "aixbt", "_7Days")
	require.NoError(t, err)

	assert.Equal(t, "aixbt", metrics.Identifier)
	assert.Equal(t, 3.2, metrics.Mindshare)
	assert.Equal(t, 12.5, metrics.MindshareDelta)
	assert.Equal(t, int64(150000), metrics.HoldersCount)
	assert.Equal(t, 0.21, metrics.Price)
	assert.Equal(t, -4.2, metrics.PriceDelta)
	require.Len(t, metrics.Contracts, 2)
	// Contract addresses are normalized to lowercase for keying.
	assert.Equal(t, "0xabcdef", metrics.Contracts[0].Address)
	assert.Equal(t, int64(8453), metrics.Contracts[0].ChainID)
}

func TestListTrending(t *testing.T) {
	t.Run("maps one page", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/agents/agentsPaged", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			assert.Equal(t, "25", r.URL.Query().Get("pageSize"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":{"data":[
				{"agentName":"alpha","mindshare":5.5,"holdersCount":1000,
				 "contracts":[{"contractAddress":"0xAAA","chain":42161}]},
				{"agentName":"beta","mindshare":2.2,"holdersCount":500,
				 "contracts":[]}
			]}}`))
		})

		trending, err := client.ListTrending(context.Background(), "_7Days", 1, 25)
		require.NoError(t, err)
		require.Len(t, trending, 2)
		assert.Equal(t, "alpha", trending[0].Identifier)
		assert.Equal(t, 5.5, trending[0].Mindshare)
		require.Len(t, trending[0].Contracts, 1)
		assert.Equal(t, "0xaaa", trending[0].Contracts[0].Address)
		assert.Empty(t, trending[1].Contracts)
	})

	t.Run("rate limited", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.ListTrending(context.Background(), "_7Days", 1, 25)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ports.ErrRateLimited))
	})

	t.Run("auth rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.ListTrending(context.Background(), "_7Days", 1, 25)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ports.ErrProviderUnavailable))
	})
}
