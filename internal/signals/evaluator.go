// Package signals holds the buy and sell decision rules. The evaluator is
// pure decision logic: it reads scores, prices and history but never touches
// storage or the chain, which keeps every rule unit-testable in isolation.
package signals

import (
	"context"
	"fmt"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
)

// Config holds the evaluator's thresholds.
type Config struct {
	// BuyThreshold is the composite score floor for a buy signal.
	BuyThreshold float64
	// ProfitTargetPercent closes a position in profit, e.g. 30.
	ProfitTargetPercent float64
	// StopLossPercent closes a position in loss, e.g. -20.
	StopLossPercent float64
	// TrailingTrigger is the unrealized P/L that tightens the stop, e.g. 20.
	TrailingTrigger float64
	// TrailingStopPercent is the tightened stop level, e.g. -10.
	TrailingStopPercent float64
	// VolumeCollapseDrop is the percent 24h-volume decline versus entry that
	// forces an exit, e.g. 50.
	VolumeCollapseDrop float64
	// PriceZScoreFloor flags a severe negative price deviation, e.g. -2.0.
	PriceZScoreFloor float64

	Logger ports.Logger
}

// Evaluator implements ports.SignalEvaluator.
type Evaluator struct {
	cfg    Config
	logger ports.Logger
}

// NewEvaluator validates thresholds and returns the evaluator.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.ProfitTargetPercent <= 0 {
		return nil, fmt.Errorf("profit target must be positive: %w", ports.ErrConfigurationError)
	}
	if cfg.StopLossPercent >= 0 {
		return nil, fmt.Errorf("stop loss must be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.TrailingStopPercent < cfg.StopLossPercent {
		return nil, fmt.Errorf("trailing stop must not be looser than the initial stop: %w", ports.ErrConfigurationError)
	}
	return &Evaluator{cfg: cfg, logger: cfg.Logger}, nil
}

// EvaluateBuy reports whether a scored snapshot qualifies as a buy candidate.
// An existing open position for the pair always vetoes the signal, keeping
// the single-position invariant independent of score strength.
func (e *Evaluator) EvaluateBuy(ctx context.Context, snap *domain.TokenSnapshot, hasOpenPosition bool) bool {
	if hasOpenPosition {
		return false
	}
	if snap.TokenAddress == "" || snap.Price <= 0 {
		return false
	}
	if snap.CompositeScore < e.cfg.BuyThreshold {
		return false
	}

	e.logger.Info(ctx, "Buy signal", map[string]interface{}{
		"token":          snap.TokenAddress,
		"chainId":        snap.ChainID,
		"symbol":         snap.Symbol,
		"compositeScore": snap.CompositeScore,
		"threshold":      e.cfg.BuyThreshold,
	})
	return true
}

// EvaluateSell checks an open position against the exit conditions in fixed
// precedence: profit target, stop loss, volume collapse, momentum reversal.
// The first matching condition wins. Volume and price come from the live pair
// quote, not from stored snapshots, so a token that dropped out of the
// aggregator's scoring universe still hits its exits. history is newest first
// and only seeds the momentum z-score.
func (e *Evaluator) EvaluateSell(ctx context.Context, pos *domain.Position, quote *ports.PairData, history []*domain.TokenSnapshot) (bool, domain.SellReason) {
	if pos == nil || !pos.IsOpen() {
		return false, domain.SellReasonNone
	}
	// Already flagged positions wait for the execution step; re-deriving the
	// reason would only churn logs.
	if pos.SellSignal {
		return false, domain.SellReasonNone
	}
	if quote == nil || quote.PriceNative <= 0 {
		return false, domain.SellReasonNone
	}

	pnl := pos.ProfitLossAt(quote.PriceNative)

	if pnl >= e.cfg.ProfitTargetPercent {
		e.logSell(ctx, pos, domain.SellReasonProfitTarget, pnl)
		return true, domain.SellReasonProfitTarget
	}

	stopLevel := e.cfg.StopLossPercent
	if pos.StopLossLevel != nil {
		stopLevel = *pos.StopLossLevel
	}
	if pnl <= stopLevel {
		reason := domain.SellReasonStopLoss
		if pos.StopLossLevel != nil && *pos.StopLossLevel > e.cfg.StopLossPercent {
			reason = domain.SellReasonTrailingStop
		}
		e.logSell(ctx, pos, reason, pnl)
		return true, reason
	}

	// Volume at entry is frozen on the position row, see domain.Position.
	if pos.Volume24h > 0 {
		drop := ((pos.Volume24h - quote.Volume24h) / pos.Volume24h) * 100
		if drop > e.cfg.VolumeCollapseDrop {
			e.logSell(ctx, pos, domain.SellReasonVolumeCollapse, pnl)
			return true, domain.SellReasonVolumeCollapse
		}
	}

	// The momentum score is recomputed here from today's quote against the
	// token's own price history; a stale stored score would pin the check to
	// whenever the aggregator last visited the token.
	if quote.PriceUSD > 0 {
		prices := make([]float64, 0, len(history))
		for _, s := range history {
			prices = append(prices, s.Price)
		}
		if z := domain.ZScore(quote.PriceUSD, prices); z < e.cfg.PriceZScoreFloor {
			e.logSell(ctx, pos, domain.SellReasonMomentumReversal, pnl)
			return true, domain.SellReasonMomentumReversal
		}
	}

	return false, domain.SellReasonNone
}

// AdjustStopLoss tightens the stop once unrealized P/L crosses the trailing
// trigger. The returned level is only ever higher than the current one; a
// pullback after the trigger never loosens the stop back.
func (e *Evaluator) AdjustStopLoss(pos *domain.Position, pnlPercent float64) (float64, bool) {
	if pos == nil || !pos.IsOpen() {
		return 0, false
	}
	if pnlPercent < e.cfg.TrailingTrigger {
		return 0, false
	}
	if pos.StopLossLevel != nil && *pos.StopLossLevel >= e.cfg.TrailingStopPercent {
		return 0, false
	}
	return e.cfg.TrailingStopPercent, true
}

func (e *Evaluator) logSell(ctx context.Context, pos *domain.Position, reason domain.SellReason, pnl float64) {
	e.logger.Info(ctx, "Sell signal", map[string]interface{}{
		"token":   pos.TokenAddress,
		"chainId": pos.ChainID,
		"symbol":  pos.Symbol,
		"reason":  string(reason),
		"pnl":     pnl,
	})
}
