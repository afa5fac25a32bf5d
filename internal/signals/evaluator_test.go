package signals

import (
	"context"
	"testing"
	"time"

	"mindshareTrader/internal/domain"
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

func defaultConfig() Config {
	return Config{
		BuyThreshold:        0.5,
		ProfitTargetPercent: 30,
		StopLossPercent:     -20,
		TrailingTrigger:     20,
		TrailingStopPercent: -10,
		VolumeCollapseDrop:  50,
		PriceZScoreFloor:    -2.0,
		Logger:              &mockLogger{},
	}
}

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(defaultConfig())
	require.NoError(t, err)
	return ev
}

func openPosition(entryPrice float64) *domain.Position {
	entry := entryPrice
	return &domain.Position{
		TokenAddress: "0xabc",
		ChainID:      42161,
		Symbol:       "TEST",
		Volume24h:    100000,
		EntryPrice:   &entry,
		Timestamp:    time.Now().UTC(),
	}
}

func quote(priceNative, priceUSD, volume float64) *ports.PairData {
	return &ports.PairData{
		Symbol:      "TEST",
		PriceNative: priceNative,
		PriceUSD:    priceUSD,
		Volume24h:   volume,
	}
}

func priceHistory(prices ...float64) []*domain.TokenSnapshot {
	hist := make([]*domain.TokenSnapshot, 0, len(prices))
	for _, p := range prices {
		hist = append(hist, &domain.TokenSnapshot{
			TokenAddress: "0xabc",
			ChainID:      42161,
			Price:        p,
			Timestamp:    time.Now().UTC(),
		})
	}
	return hist
}

func TestNewEvaluator_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"zero profit target", func(c *Config) { c.ProfitTargetPercent = 0 }},
		{"positive stop loss", func(c *Config) { c.StopLossPercent = 5 }},
		{"trailing looser than stop", func(c *Config) { c.TrailingStopPercent = -30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			_, err := NewEvaluator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestEvaluateBuy(t *testing.T) {
	ev := newTestEvaluator(t)
	ctx := context.Background()

	snap := func(score float64) *domain.TokenSnapshot {
		return &domain.TokenSnapshot{TokenAddress: "0xabc", ChainID: 42161, Price: 0.01, CompositeScore: score}
	}

	tests := []struct {
		name    string
		snap    *domain.TokenSnapshot
		hasOpen bool
		want    bool
	}{
		{"score above threshold", snap(0.8), false, true},
		{"score at threshold", snap(0.5), false, true},
		{"score below threshold", snap(0.49), false, false},
		{"open position vetoes any score", snap(5.0), true, false},
		{"zero price is not tradable", &domain.TokenSnapshot{TokenAddress: "0xabc", CompositeScore: 2}, false, false},
		{"missing address", &domain.TokenSnapshot{Price: 1, CompositeScore: 2}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ev.EvaluateBuy(ctx, tt.snap, tt.hasOpen))
		})
	}
}

func TestEvaluateSell(t *testing.T) {
	ev := newTestEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		pos        *domain.Position
		quote      *ports.PairData
		history    []*domain.TokenSnapshot
		wantSell   bool
		wantReason domain.SellReason
	}{
		{
			name:       "profit target hit",
			pos:        openPosition(1.0),
			quote:      quote(1.30, 1.30, 90000),
			wantSell:   true,
			wantReason: domain.SellReasonProfitTarget,
		},
		{
			name:       "stop loss hit",
			pos:        openPosition(1.0),
			quote:      quote(0.80, 0.80, 90000),
			wantSell:   true,
			wantReason: domain.SellReasonStopLoss,
		},
		{
			name:       "quiet position holds",
			pos:        openPosition(1.0),
			quote:      quote(1.05, 1.0, 90000),
			history:    priceHistory(1.0, 1.1, 0.9),
			wantSell:   false,
			wantReason: domain.SellReasonNone,
		},
		{
			name:       "volume collapse versus entry",
			pos:        openPosition(1.0),
			quote:      quote(1.05, 1.0, 40000), // entry volume is 100000
			history:    priceHistory(1.0, 1.1, 0.9),
			wantSell:   true,
			wantReason: domain.SellReasonVolumeCollapse,
		},
		{
			name:       "momentum reversal on severe price z-score",
			pos:        openPosition(1.0),
			quote:      quote(1.05, 0.5, 90000),
			history:    priceHistory(1.0, 1.1, 0.9),
			wantSell:   true,
			wantReason: domain.SellReasonMomentumReversal,
		},
		{
			name:       "profit target wins over volume collapse",
			pos:        openPosition(1.0),
			quote:      quote(1.50, 0.5, 10000),
			history:    priceHistory(1.0, 1.1, 0.9),
			wantSell:   true,
			wantReason: domain.SellReasonProfitTarget,
		},
		{
			name:       "zero price means no fresh data",
			pos:        openPosition(1.0),
			quote:      quote(0, 0, 0),
			wantSell:   false,
			wantReason: domain.SellReasonNone,
		},
		{
			name:       "missing quote means no fresh data",
			pos:        openPosition(1.0),
			wantSell:   false,
			wantReason: domain.SellReasonNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sell, reason := ev.EvaluateSell(ctx, tt.pos, tt.quote, tt.history)
			assert.Equal(t, tt.wantSell, sell)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestEvaluateSell_TightenedStopOverridesDefault(t *testing.T) {
	ev := newTestEvaluator(t)
	pos := openPosition(1.0)
	tightened := -10.0
	pos.StopLossLevel = &tightened

	// -12% would survive the default -20% stop but not the tightened one.
	sell, reason := ev.EvaluateSell(context.Background(), pos, quote(0.88, 0.88, 90000), nil)
	assert.True(t, sell)
	assert.Equal(t, domain.SellReasonTrailingStop, reason)
}

func TestEvaluateSell_LiveQuoteDetectsCollapseWithoutFreshSnapshots(t *testing.T) {
	ev := newTestEvaluator(t)
	pos := openPosition(1.0)
	pos.Volume24h = 1000

	// The token fell out of the scoring universe after entry, so no snapshots
	// have been recorded since. The collapse must still be visible from the
	// live pair quote alone.
	sell, reason := ev.EvaluateSell(context.Background(), pos, quote(1.0, 1.0, 100), nil)
	assert.True(t, sell)
	assert.Equal(t, domain.SellReasonVolumeCollapse, reason)
}

func TestEvaluateSell_MomentumUsesLiveQuotePrice(t *testing.T) {
	ev := newTestEvaluator(t)
	pos := openPosition(1.0)

	// The stored history ends in an uptrend. Only the live quote shows the
	// reversal, so the z-score has to be recomputed against today's price.
	hist := priceHistory(1.0, 1.05, 1.1)
	sell, reason := ev.EvaluateSell(context.Background(), pos, quote(1.02, 0.5, 90000), hist)
	assert.True(t, sell)
	assert.Equal(t, domain.SellReasonMomentumReversal, reason)
}

func TestEvaluateSell_Idempotent(t *testing.T) {
	ev := newTestEvaluator(t)
	pos := openPosition(1.0)
	pos.SellSignal = true

	// Already flagged: re-evaluation is a no-op even at profit target.
	sell, reason := ev.EvaluateSell(context.Background(), pos, quote(2.0, 2.0, 90000), nil)
	assert.False(t, sell)
	assert.Equal(t, domain.SellReasonNone, reason)
}

func TestEvaluateSell_ClosedOrCandidatePositions(t *testing.T) {
	ev := newTestEvaluator(t)
	ctx := context.Background()

	sell, _ := ev.EvaluateSell(ctx, nil, quote(1.0, 1.0, 90000), nil)
	assert.False(t, sell)

	candidate := &domain.Position{TokenAddress: "0xabc"}
	sell, _ = ev.EvaluateSell(ctx, candidate, quote(1.0, 1.0, 90000), nil)
	assert.False(t, sell)

	closed := openPosition(1.0)
	closed.Finalized = true
	sell, _ = ev.EvaluateSell(ctx, closed, quote(2.0, 2.0, 90000), nil)
	assert.False(t, sell)
}

func TestAdjustStopLoss(t *testing.T) {
	ev := newTestEvaluator(t)

	t.Run("below trigger leaves the stop alone", func(t *testing.T) {
		_, ok := ev.AdjustStopLoss(openPosition(1.0), 19.9)
		assert.False(t, ok)
	})

	t.Run("crossing the trigger tightens", func(t *testing.T) {
		level, ok := ev.AdjustStopLoss(openPosition(1.0), 20)
		require.True(t, ok)
		assert.Equal(t, -10.0, level)
	})

	t.Run("already tightened stop is never touched again", func(t *testing.T) {
		pos := openPosition(1.0)
		tightened := -10.0
		pos.StopLossLevel = &tightened
		_, ok := ev.AdjustStopLoss(pos, 50)
		assert.False(t, ok)
	})

	t.Run("candidate without entry is skipped", func(t *testing.T) {
		_, ok := ev.AdjustStopLoss(&domain.Position{}, 50)
		assert.False(t, ok)
	})
}
