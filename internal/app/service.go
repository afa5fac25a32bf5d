// Package app orchestrates the housekeeping cycle: score, buy, re-check,
// sell, report. It owns no trading logic itself; every decision is delegated
// to the evaluator and every side effect to the store or the executor.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
)

// Scorer is the aggregator as the service sees it.
type Scorer interface {
	RunCycle(ctx context.Context) ([]*domain.TokenSnapshot, error)
}

// Config wires the housekeeping service.
type Config struct {
	Store     ports.PositionStore
	History   ports.SnapshotHistory
	Scorer    Scorer
	Evaluator ports.SignalEvaluator
	Executor  ports.TradeExecutor
	Market    ports.MarketDataProvider
	Chains    ports.ChainRegistry
	Logger    ports.Logger

	// TradeAmountWei is the base-asset amount spent on every buy.
	TradeAmountWei *big.Int
	// CycleInterval is the pause between housekeeping cycles.
	CycleInterval time.Duration
	// Lookback bounds the history consulted during sell checks.
	Lookback int
	// ForceSellAll liquidates every open position instead of trading.
	ForceSellAll bool
}

// Service runs the housekeeping loop. At most one cycle is in flight at any
// time; a tick that arrives while a cycle still runs is skipped, not queued.
type Service struct {
	cfg    Config
	logger ports.Logger
	mu     sync.Mutex
}

// NewService validates the wiring and returns the service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil || cfg.History == nil || cfg.Scorer == nil || cfg.Evaluator == nil ||
		cfg.Executor == nil || cfg.Market == nil || cfg.Chains == nil {
		return nil, fmt.Errorf("service collaborators are required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.TradeAmountWei == nil || cfg.TradeAmountWei.Sign() <= 0 {
		return nil, fmt.Errorf("trade amount must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	if cfg.Lookback < 3 {
		cfg.Lookback = 10
	}
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// Start runs cycles until the context is canceled. The first cycle fires
// immediately rather than waiting out a full interval.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Housekeeping loop starting", map[string]interface{}{
		"interval":     s.cfg.CycleInterval.String(),
		"chains":       s.cfg.Chains.Configured(),
		"forceSellAll": s.cfg.ForceSellAll,
	})

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Housekeeping loop stopping", nil)
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one housekeeping pass. A panic anywhere inside the cycle
// is converted into a failed result so the loop survives to the next tick.
func (s *Service) RunCycle(ctx context.Context) (result *domain.CycleResult) {
	if !s.mu.TryLock() {
		s.logger.Warn(ctx, "Skipping cycle, previous cycle still running", nil)
		return &domain.CycleResult{Success: false, Summary: "skipped: previous cycle still running"}
	}
	defer s.mu.Unlock()

	cycleID := uuid.New().String()
	started := time.Now()
	result = &domain.CycleResult{CycleID: cycleID}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Cycle panicked", map[string]interface{}{
				"cycleId": cycleID,
			})
			result.Success = false
			result.Summary = "cycle aborted by internal error"
		}
	}()

	s.logger.Info(ctx, "Cycle starting", map[string]interface{}{"cycleId": cycleID})

	if s.cfg.ForceSellAll {
		s.flagAllOpen(ctx, cycleID)
	} else {
		scored, err := s.cfg.Scorer.RunCycle(ctx)
		if err != nil {
			// Scoring failure skips buys but never the sell checks; open
			// positions must keep being protected.
			s.logger.Error(ctx, err, "Scoring pass failed, continuing with sell checks", map[string]interface{}{
				"cycleId": cycleID,
			})
		}
		result.Scored = len(scored)

		result.BoughtTokens = s.processBuys(ctx, cycleID)
		s.checkSells(ctx, cycleID)
	}

	result.SoldTokens = s.processSells(ctx, cycleID)

	s.finishCycle(ctx, result, started)
	return result
}

// processBuys executes every pending buy candidate. One failed buy is logged
// and skipped; it never blocks the remaining candidates.
func (s *Service) processBuys(ctx context.Context, cycleID string) int {
	candidates, err := s.cfg.Store.GetBuyCandidates(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load buy candidates", map[string]interface{}{"cycleId": cycleID})
		return 0
	}

	bought := 0
	for _, pos := range candidates {
		receipt, err := s.cfg.Executor.Buy(ctx, pos.ChainID, pos.TokenAddress, s.cfg.TradeAmountWei)
		if err != nil {
			s.logger.Warn(ctx, "Buy failed, candidate stays pending", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"chainId": pos.ChainID,
				"error":   err.Error(),
			})
			continue
		}

		if err := s.persistEntry(ctx, pos, receipt); err != nil {
			// The swap is confirmed but the row is not. Surface loudly; the
			// position must be reconciled by hand before the next buy.
			s.logger.Error(ctx, err, "Buy confirmed but entry not persisted, manual reconciliation required", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"chainId": pos.ChainID,
				"txHash":  receipt.TradeID,
			})
			continue
		}
		bought++
	}
	return bought
}

// persistEntry writes the realized entry price back to the row, retrying
// transient storage failures.
func (s *Service) persistEntry(ctx context.Context, pos *domain.Position, receipt *domain.TradeReceipt) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		lastErr = s.cfg.Store.MarkBought(ctx, pos.TokenAddress, pos.ChainID, receipt.Price)
		if lastErr == nil || errors.Is(lastErr, ports.ErrNotFound) {
			return lastErr
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return lastErr
}

// checkSells re-prices every open position and flags the ones hitting an exit
// condition. Also tightens trailing stops on the way.
func (s *Service) checkSells(ctx context.Context, cycleID string) {
	open, err := s.cfg.Store.GetOpenPositions(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load open positions", map[string]interface{}{"cycleId": cycleID})
		return
	}

	for _, pos := range open {
		if pos.SellSignal {
			continue
		}

		pair, err := s.cfg.Market.FetchPair(ctx, pos.TokenAddress)
		if err != nil {
			s.logger.Warn(ctx, "Price check failed, position unchanged", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"chainId": pos.ChainID,
				"error":   err.Error(),
			})
			continue
		}
		currentPrice := pair.PriceNative
		if currentPrice <= 0 {
			continue
		}

		pnl := pos.ProfitLossAt(currentPrice)
		if level, ok := s.cfg.Evaluator.AdjustStopLoss(pos, pnl); ok {
			if err := s.cfg.Store.UpdateStopLoss(ctx, pos.TokenAddress, pos.ChainID, level); err != nil {
				s.logger.Warn(ctx, "Failed to tighten stop loss", map[string]interface{}{
					"cycleId": cycleID,
					"token":   pos.TokenAddress,
					"error":   err.Error(),
				})
			} else {
				stop := level
				pos.StopLossLevel = &stop
			}
		}

		history, err := s.cfg.History.RecentSnapshots(ctx, pos.TokenAddress, pos.ChainID, s.cfg.Lookback)
		if err != nil {
			s.logger.Warn(ctx, "History read failed during sell check", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"error":   err.Error(),
			})
			history = nil
		}

		if sell, reason := s.cfg.Evaluator.EvaluateSell(ctx, pos, pair, history); sell {
			if err := s.cfg.Store.MarkSellSignal(ctx, pos.TokenAddress, pos.ChainID); err != nil {
				s.logger.Error(ctx, err, "Failed to flag position for sale", map[string]interface{}{
					"cycleId": cycleID,
					"token":   pos.TokenAddress,
					"reason":  string(reason),
				})
			}
		}
	}
}

// processSells liquidates every flagged position and finalizes the rows with
// realized exit prices.
func (s *Service) processSells(ctx context.Context, cycleID string) int {
	flagged, err := s.cfg.Store.GetSellCandidates(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load sell candidates", map[string]interface{}{"cycleId": cycleID})
		return 0
	}

	sold := 0
	for _, pos := range flagged {
		if !pos.IsOpen() {
			continue
		}

		receipt, err := s.cfg.Executor.Sell(ctx, pos.ChainID, pos.TokenAddress, nil)
		if err != nil {
			s.logger.Error(ctx, err, "Sell failed, position stays flagged", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"chainId": pos.ChainID,
			})
			continue
		}

		pnl := domain.RoundedPnL(*pos.EntryPrice, receipt.Price)
		if err := s.cfg.Store.FinalizeSold(ctx, pos.TokenAddress, pos.ChainID, receipt.Price, pnl); err != nil {
			s.logger.Error(ctx, err, "Sell confirmed but position not finalized, manual reconciliation required", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
				"txHash":  receipt.TradeID,
			})
			continue
		}

		s.logger.Info(ctx, "Position closed", map[string]interface{}{
			"cycleId":    cycleID,
			"token":      pos.TokenAddress,
			"symbol":     pos.Symbol,
			"entryPrice": *pos.EntryPrice,
			"exitPrice":  receipt.Price,
			"pnl":        pnl,
		})
		sold++
	}
	return sold
}

// flagAllOpen marks every open position for liquidation, used by the
// force-sell startup mode.
func (s *Service) flagAllOpen(ctx context.Context, cycleID string) {
	open, err := s.cfg.Store.GetOpenPositions(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load open positions for forced sale", map[string]interface{}{"cycleId": cycleID})
		return
	}
	for _, pos := range open {
		if err := s.cfg.Store.MarkSellSignal(ctx, pos.TokenAddress, pos.ChainID); err != nil {
			s.logger.Error(ctx, err, "Failed to flag position for forced sale", map[string]interface{}{
				"cycleId": cycleID,
				"token":   pos.TokenAddress,
			})
		}
	}
}

func (s *Service) finishCycle(ctx context.Context, result *domain.CycleResult, started time.Time) {
	open, err := s.cfg.Store.GetOpenPositions(ctx)
	if err == nil {
		result.OpenPositions = len(open)
	}
	closed, err := s.cfg.Store.CountClosed(ctx)
	if err == nil {
		result.ClosedTotal = closed
	}

	result.Success = true
	parts := []string{
		fmt.Sprintf("scored %d", result.Scored),
		fmt.Sprintf("bought %d", result.BoughtTokens),
		fmt.Sprintf("sold %d", result.SoldTokens),
		fmt.Sprintf("open %d", result.OpenPositions),
		fmt.Sprintf("closed total %d", result.ClosedTotal),
	}
	result.Summary = strings.Join(parts, ", ")

	s.logger.Info(ctx, "Cycle complete", map[string]interface{}{
		"cycleId":  result.CycleID,
		"duration": time.Since(started).String(),
		"summary":  result.Summary,
	})
}

// ManualBuy buys the token outside the scoring flow and records the position.
// The single-position invariant still applies: an existing open position for
// the pair rejects the request.
func (s *Service) ManualBuy(ctx context.Context, chainID int64, tokenAddress string) (*domain.TradeReceipt, error) {
	op := "manualBuy"
	tokenAddress = strings.ToLower(tokenAddress)

	existing, err := s.cfg.Store.FindPosition(ctx, tokenAddress, chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil && existing.IsOpen() {
		return nil, fmt.Errorf("%s: %s on chain %d: %w", op, tokenAddress, chainID, ports.ErrOpenPositionExists)
	}

	pair, err := s.cfg.Market.FetchPair(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// The swap runs before any row is written: a failed buy must leave no
	// candidate behind for the unattended loop to pick up.
	receipt, err := s.cfg.Executor.Buy(ctx, chainID, tokenAddress, s.cfg.TradeAmountWei)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	snap := &domain.TokenSnapshot{
		TokenAddress: tokenAddress,
		ChainID:      chainID,
		ChainName:    domain.ChainNameByID(chainID),
		Symbol:       pair.Symbol,
		Liquidity:    pair.LiquidityUSD,
		Volume24h:    pair.Volume24h,
		Price:        pair.PriceUSD,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.cfg.Store.UpsertCandidate(ctx, snap); err != nil {
		return nil, fmt.Errorf("%s: trade %s confirmed but entry not persisted: %w", op, receipt.TradeID, err)
	}
	if err := s.cfg.Store.MarkBought(ctx, tokenAddress, chainID, receipt.Price); err != nil {
		return nil, fmt.Errorf("%s: trade %s confirmed but entry not persisted: %w", op, receipt.TradeID, err)
	}
	return receipt, nil
}

// ManualSell liquidates the pair's open position immediately.
func (s *Service) ManualSell(ctx context.Context, chainID int64, tokenAddress string) (*domain.TradeReceipt, error) {
	op := "manualSell"
	tokenAddress = strings.ToLower(tokenAddress)

	pos, err := s.cfg.Store.FindPosition(ctx, tokenAddress, chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pos == nil || !pos.IsOpen() {
		return nil, fmt.Errorf("%s: no open position for %s on chain %d: %w", op, tokenAddress, chainID, ports.ErrNotFound)
	}

	receipt, err := s.cfg.Executor.Sell(ctx, chainID, tokenAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pnl := domain.RoundedPnL(*pos.EntryPrice, receipt.Price)
	if err := s.cfg.Store.FinalizeSold(ctx, tokenAddress, chainID, receipt.Price, pnl); err != nil {
		return nil, fmt.Errorf("%s: trade %s confirmed but position not finalized: %w", op, receipt.TradeID, err)
	}
	return receipt, nil
}

// OpenPositions lists the currently open positions.
func (s *Service) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	return s.cfg.Store.GetOpenPositions(ctx)
}

// RecentActivity returns the latest scored snapshots across all tokens.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*domain.TokenSnapshot, error) {
	return s.cfg.History.LatestSnapshots(ctx, limit)
}

// TotalProfit sums realized P/L percent over all closed positions.
func (s *Service) TotalProfit(ctx context.Context) (float64, error) {
	return s.cfg.Store.TotalProfit(ctx)
}
