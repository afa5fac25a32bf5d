// Package aggregator collects social and market telemetry for trending
// tokens, scores each token against its own recent history and feeds
// qualifying candidates into the position store.
package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
)

// Config wires the aggregator's collaborators and scoring parameters.
type Config struct {
	Market    ports.MarketDataProvider
	Social    ports.SocialDataProvider
	History   ports.SnapshotHistory
	Store     ports.PositionStore
	Evaluator ports.SignalEvaluator
	Logger    ports.Logger

	// AllowedChains restricts candidate contracts to the chains the engine
	// can actually trade on.
	AllowedChains map[int64]bool

	// Weights of the composite score, must sum to 1.
	PriceWeight     float64
	VolumeWeight    float64
	MindshareWeight float64
	LiquidityWeight float64
	HoldersWeight   float64

	// Lookback is how many historical snapshots feed each z-score.
	Lookback int
	// Interval is the provider's aggregation window, e.g. "_7Days".
	Interval string
	// TrendingPageSize bounds one discovery page.
	TrendingPageSize int
}

// Aggregator implements the per-cycle scoring pass.
type Aggregator struct {
	cfg    Config
	logger ports.Logger
}

// candidate pairs one token contract with the social telemetry backing it.
type candidate struct {
	contract ports.TokenContract
	social   *ports.SocialMetrics
	pair     *ports.PairData
}

// New validates the configuration and returns the aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Market == nil || cfg.Social == nil || cfg.History == nil || cfg.Store == nil || cfg.Evaluator == nil {
		return nil, fmt.Errorf("aggregator collaborators are required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Lookback < 3 {
		return nil, fmt.Errorf("lookback must be at least 3: %w", ports.ErrConfigurationError)
	}
	sum := cfg.PriceWeight + cfg.VolumeWeight + cfg.MindshareWeight + cfg.LiquidityWeight + cfg.HoldersWeight
	if sum < 0.999 || sum > 1.001 {
		return nil, fmt.Errorf("score weights must sum to 1, got %.3f: %w", sum, ports.ErrConfigurationError)
	}
	if cfg.TrendingPageSize <= 0 {
		cfg.TrendingPageSize = 25
	}
	return &Aggregator{cfg: cfg, logger: cfg.Logger}, nil
}

// RunCycle discovers trending tokens, refreshes existing candidates, scores
// everything against history and upserts buy candidates. One token's provider
// failure is logged and skipped; it never aborts the rest of the pass.
func (a *Aggregator) RunCycle(ctx context.Context) ([]*domain.TokenSnapshot, error) {
	op := "aggregatorCycle"

	candidates, err := a.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: discovery failed: %w", op, err)
	}
	if len(candidates) == 0 {
		a.logger.Info(ctx, "No candidates to score this cycle", nil)
		return nil, nil
	}

	a.fetchPairs(ctx, candidates)

	scored := make([]*domain.TokenSnapshot, 0, len(candidates))
	for _, cand := range candidates {
		if cand.pair == nil {
			continue
		}
		snap, err := a.score(ctx, cand)
		if err != nil {
			a.logger.Warn(ctx, "Skipping token, scoring failed", map[string]interface{}{
				"token":   cand.contract.Address,
				"chainId": cand.contract.ChainID,
				"error":   err.Error(),
			})
			continue
		}
		scored = append(scored, snap)
	}

	a.logger.Info(ctx, "Scoring pass complete", map[string]interface{}{
		"discovered": len(candidates),
		"scored":     len(scored),
	})
	return scored, nil
}

// discover merges one trending page with the store's existing non-finalized
// candidates, so a token that fell out of trending keeps getting re-scored
// until its position resolves.
func (a *Aggregator) discover(ctx context.Context) ([]*candidate, error) {
	trending, err := a.cfg.Social.ListTrending(ctx, a.cfg.Interval, 1, a.cfg.TrendingPageSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	candidates := make([]*candidate, 0, len(trending))
	for _, metrics := range trending {
		for _, contract := range metrics.Contracts {
			if !a.cfg.AllowedChains[contract.ChainID] || contract.Address == "" {
				continue
			}
			key := candidateKey(contract.Address, contract.ChainID)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, &candidate{contract: contract, social: metrics})
		}
	}

	pending, err := a.cfg.Store.GetBuyCandidates(ctx)
	if err != nil {
		return nil, err
	}
	for _, pos := range pending {
		key := candidateKey(pos.TokenAddress, pos.ChainID)
		if seen[key] || !a.cfg.AllowedChains[pos.ChainID] {
			continue
		}
		seen[key] = true
		// Carry the stored social metrics forward; only the market side is
		// refreshed for these.
		candidates = append(candidates, &candidate{
			contract: ports.TokenContract{Address: pos.TokenAddress, ChainID: pos.ChainID},
			social: &ports.SocialMetrics{
				Symbol:       pos.Symbol,
				Mindshare:    pos.Mindshare,
				HoldersCount: pos.HoldersCount,
				Price:        pos.Price,
			},
		})
	}

	return candidates, nil
}

// fetchPairs pulls market data for all candidates concurrently. A failed
// fetch leaves cand.pair nil, lost for this cycle only.
func (a *Aggregator) fetchPairs(ctx context.Context, candidates []*candidate) {
	var wg sync.WaitGroup
	for _, cand := range candidates {
		wg.Add(1)
		go func(cand *candidate) {
			defer wg.Done()
			pair, err := a.cfg.Market.FetchPair(ctx, cand.contract.Address)
			if err != nil {
				a.logger.Warn(ctx, "Skipping token, pair fetch failed", map[string]interface{}{
					"token":   cand.contract.Address,
					"chainId": cand.contract.ChainID,
					"error":   err.Error(),
				})
				return
			}
			cand.pair = pair
		}(cand)
	}
	wg.Wait()
}

// score computes z-scores for the candidate against its own history, appends
// the snapshot and upserts the row when a buy signal fires or a candidate row
// already exists.
func (a *Aggregator) score(ctx context.Context, cand *candidate) (*domain.TokenSnapshot, error) {
	address := strings.ToLower(cand.contract.Address)
	chainID := cand.contract.ChainID

	history, err := a.cfg.History.RecentSnapshots(ctx, address, chainID, a.cfg.Lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	price := cand.pair.PriceUSD
	if price == 0 {
		price = cand.social.Price
	}

	snap := &domain.TokenSnapshot{
		TokenAddress: address,
		ChainID:      chainID,
		ChainName:    domain.ChainNameByID(chainID),
		Symbol:       pickSymbol(cand),
		Mindshare:    cand.social.Mindshare,
		Liquidity:    cand.pair.LiquidityUSD,
		Volume24h:    cand.pair.Volume24h,
		HoldersCount: cand.social.HoldersCount,
		Price:        price,
		Timestamp:    time.Now().UTC(),
	}

	snap.PriceScore = domain.ZScore(snap.Price, values(history, func(s *domain.TokenSnapshot) float64 { return s.Price }))
	snap.VolumeScore = domain.ZScore(snap.Volume24h, values(history, func(s *domain.TokenSnapshot) float64 { return s.Volume24h }))
	snap.MindshareScore = domain.ZScore(snap.Mindshare, values(history, func(s *domain.TokenSnapshot) float64 { return s.Mindshare }))
	snap.LiquidityScore = domain.ZScore(snap.Liquidity, values(history, func(s *domain.TokenSnapshot) float64 { return s.Liquidity }))
	snap.HoldersScore = domain.ZScore(float64(snap.HoldersCount), values(history, func(s *domain.TokenSnapshot) float64 { return float64(s.HoldersCount) }))
	snap.SocialScore = (snap.MindshareScore + snap.HoldersScore) / 2
	snap.CompositeScore = a.cfg.PriceWeight*snap.PriceScore +
		a.cfg.VolumeWeight*snap.VolumeScore +
		a.cfg.MindshareWeight*snap.MindshareScore +
		a.cfg.LiquidityWeight*snap.LiquidityScore +
		a.cfg.HoldersWeight*snap.HoldersScore

	// History grows every cycle regardless of signal outcome, otherwise
	// z-scores could never warm up for tokens that start out unremarkable.
	if err := a.cfg.History.AppendSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to append snapshot: %w", err)
	}

	existing, err := a.cfg.Store.FindPosition(ctx, address, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing position: %w", err)
	}
	hasOpen := existing != nil && existing.IsOpen()

	shouldBuy := a.cfg.Evaluator.EvaluateBuy(ctx, snap, hasOpen)
	refreshCandidate := existing != nil && !existing.IsOpen()
	if shouldBuy || refreshCandidate {
		if err := a.cfg.Store.UpsertCandidate(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to upsert candidate: %w", err)
		}
	}

	return snap, nil
}

func pickSymbol(cand *candidate) string {
	if cand.pair != nil && cand.pair.Symbol != "" {
		return cand.pair.Symbol
	}
	return cand.social.Symbol
}

func candidateKey(address string, chainID int64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(address), chainID)
}

func values(history []*domain.TokenSnapshot, pick func(*domain.TokenSnapshot) float64) []float64 {
	out := make([]float64, 0, len(history))
	for _, s := range history {
		out = append(out, pick(s))
	}
	return out
}
