package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mindshareTrader/config"
	"mindshareTrader/internal/adapters/sqlite"
	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
)

// manualTrader records hand-placed trades in the same position rows the
// unattended loop maintains, so the single open position per pair invariant
// holds across both paths.
type manualTrader struct {
	store  *sqlite.Store
	market ports.MarketDataProvider
	engine ports.TradeExecutor
	cfg    *config.Config
}

func (t manualTrader) buy(ctx context.Context, chainID int64, token string) (*domain.TradeReceipt, error) {
	token = strings.ToLower(token)

	existing, err := t.store.FindPosition(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsOpen() {
		return nil, fmt.Errorf("%s on chain %d: %w", token, chainID, ports.ErrOpenPositionExists)
	}

	pair, err := t.market.FetchPair(ctx, token)
	if err != nil {
		return nil, err
	}

	// Swap first, persist after: a failed buy must leave no candidate row for
	// the unattended loop to pick up.
	receipt, err := t.engine.Buy(ctx, chainID, token, t.cfg.TradeAmountWei)
	if err != nil {
		return nil, err
	}

	snap := &domain.TokenSnapshot{
		TokenAddress: token,
		ChainID:      chainID,
		ChainName:    domain.ChainNameByID(chainID),
		Symbol:       pair.Symbol,
		Liquidity:    pair.LiquidityUSD,
		Volume24h:    pair.Volume24h,
		Price:        pair.PriceUSD,
		Timestamp:    time.Now().UTC(),
	}
	if err := t.store.UpsertCandidate(ctx, snap); err != nil {
		return nil, fmt.Errorf("trade %s confirmed but entry not persisted: %w", receipt.TradeID, err)
	}
	if err := t.store.MarkBought(ctx, token, chainID, receipt.Price); err != nil {
		return nil, fmt.Errorf("trade %s confirmed but entry not persisted: %w", receipt.TradeID, err)
	}
	return receipt, nil
}

func (t manualTrader) sell(ctx context.Context, chainID int64, token string) (*domain.TradeReceipt, error) {
	token = strings.ToLower(token)

	pos, err := t.store.FindPosition(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	if pos == nil || !pos.IsOpen() {
		return nil, fmt.Errorf("no open position for %s on chain %d: %w", token, chainID, ports.ErrNotFound)
	}

	receipt, err := t.engine.Sell(ctx, chainID, token, nil)
	if err != nil {
		return nil, err
	}

	pnl := domain.RoundedPnL(*pos.EntryPrice, receipt.Price)
	if err := t.store.FinalizeSold(ctx, token, chainID, receipt.Price, pnl); err != nil {
		return nil, fmt.Errorf("trade %s confirmed but position not finalized: %w", receipt.TradeID, err)
	}
	return receipt, nil
}
