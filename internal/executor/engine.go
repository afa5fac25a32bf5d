// Package executor turns buy and sell decisions into slippage-bounded router
// swaps. It owns fee-tier probing, approvals, balance reads and the
// conversion of raw wei amounts into realized fill prices.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
)

// feeTiers are probed in order when quoting; the tier with the best non-zero
// quote wins. Standard V3 tiers: 0.01%, 0.05%, 0.3%, 1%.
var feeTiers = []int64{100, 500, 3000, 10000}

// tokenDecimals is assumed for realized-price math. The screened universe is
// 18-decimal ERC-20s.
const tokenDecimals = -18

// Config wires the engine.
type Config struct {
	Chains ports.ChainRegistry
	Logger ports.Logger

	// SlippageBps bounds the accepted output below the quote, e.g. 50 = 0.5%.
	SlippageBps int64
	// BalanceReadRetries is how many times a post-trade balance read is
	// attempted before giving up.
	BalanceReadRetries int
	// BalanceRetryBaseWait seeds the backoff between balance reads.
	BalanceRetryBaseWait time.Duration
	// DryRun logs intended swaps without submitting anything.
	DryRun bool
}

// Engine implements ports.TradeExecutor on top of the chain registry.
type Engine struct {
	cfg    Config
	logger ports.Logger
}

// NewEngine validates the configuration and returns the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Chains == nil {
		return nil, fmt.Errorf("chain registry is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	if cfg.SlippageBps <= 0 || cfg.SlippageBps >= 10000 {
		return nil, fmt.Errorf("slippage bps must be in (0, 10000): %w", ports.ErrConfigurationError)
	}
	if cfg.BalanceReadRetries <= 0 {
		cfg.BalanceReadRetries = 3
	}
	if cfg.BalanceRetryBaseWait <= 0 {
		cfg.BalanceRetryBaseWait = time.Second
	}
	return &Engine{cfg: cfg, logger: cfg.Logger}, nil
}

// Buy swaps baseAmount of the chain's base asset into the token and returns
// the confirmed fill with its realized price.
func (e *Engine) Buy(ctx context.Context, chainID int64, tokenAddress string, baseAmount *big.Int) (*domain.TradeReceipt, error) {
	op := "buy"
	if baseAmount == nil || baseAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%s: base amount must be positive: %w", op, ports.ErrInvalidRequest)
	}

	client, err := e.cfg.Chains.Resolve(chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quote, feeTier, err := e.bestQuote(ctx, client, client.BaseAsset(), tokenAddress, baseAmount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	minOut := e.applySlippage(quote)

	symbol, err := client.TokenSymbol(ctx, tokenAddress)
	if err != nil {
		e.logger.Warn(ctx, "Token symbol unavailable, continuing", map[string]interface{}{
			"token": tokenAddress, "error": err.Error(),
		})
		symbol = ""
	}

	if e.cfg.DryRun {
		e.logDryRun(ctx, domain.Buy, chainID, tokenAddress, baseAmount, quote, feeTier)
		return e.receipt("dry-run", tokenAddress, symbol, domain.Buy, baseAmount, quote), nil
	}

	result, err := client.Swap(ctx, client.BaseAsset(), tokenAddress, feeTier, baseAmount, minOut, true)
	if err != nil {
		return nil, fmt.Errorf("%s: swap failed: %w", op, err)
	}

	received := result.AmountOut
	if received.Sign() == 0 {
		// Some routers emit no direct transfer log to the recipient; fall
		// back to reading the wallet balance.
		received, err = e.readBalanceRetrying(ctx, client, tokenAddress)
		if err != nil {
			return nil, fmt.Errorf("%s: confirmed swap %s but could not read received amount: %w", op, result.TxHash, err)
		}
	}

	e.logger.Info(ctx, "Buy confirmed", map[string]interface{}{
		"chainId":  chainID,
		"token":    tokenAddress,
		"symbol":   symbol,
		"txHash":   result.TxHash,
		"explorer": e.cfg.Chains.ExplorerTxURL(chainID, result.TxHash),
		"gasUsed":  result.GasUsed,
	})
	return e.receipt(result.TxHash, tokenAddress, symbol, domain.Buy, baseAmount, received), nil
}

// Sell swaps token balance back into the base asset. A nil amount sells the
// wallet's full balance. The router allowance is topped up first when it does
// not cover the sale.
func (e *Engine) Sell(ctx context.Context, chainID int64, tokenAddress string, amount *big.Int) (*domain.TradeReceipt, error) {
	op := "sell"

	client, err := e.cfg.Chains.Resolve(chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if amount == nil {
		amount, err = e.readBalanceRetrying(ctx, client, tokenAddress)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s: nothing to sell for %s: %w", op, tokenAddress, ports.ErrZeroBalance)
	}

	quote, feeTier, err := e.bestQuote(ctx, client, tokenAddress, client.BaseAsset(), amount)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	minOut := e.applySlippage(quote)

	symbol, err := client.TokenSymbol(ctx, tokenAddress)
	if err != nil {
		symbol = ""
	}

	if e.cfg.DryRun {
		e.logDryRun(ctx, domain.Sell, chainID, tokenAddress, amount, quote, feeTier)
		return e.receipt("dry-run", tokenAddress, symbol, domain.Sell, quote, amount), nil
	}

	// Snapshot the base-asset balance so a missing transfer log can be
	// resolved from the wallet delta instead of trusting the quote.
	baseBefore, baseBeforeErr := client.TokenBalance(ctx, client.BaseAsset())

	if err := e.ensureAllowance(ctx, client, tokenAddress, amount); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := client.Swap(ctx, tokenAddress, client.BaseAsset(), feeTier, amount, minOut, false)
	if err != nil {
		return nil, fmt.Errorf("%s: swap failed: %w", op, err)
	}

	received := result.AmountOut
	if received.Sign() == 0 {
		if baseBeforeErr != nil {
			return nil, fmt.Errorf("%s: confirmed swap %s but could not read received amount: %w", op, result.TxHash, baseBeforeErr)
		}
		received, err = e.baseDeltaRetrying(ctx, client, baseBefore)
		if err != nil {
			return nil, fmt.Errorf("%s: confirmed swap %s but could not read received amount: %w", op, result.TxHash, err)
		}
	}

	e.logger.Info(ctx, "Sell confirmed", map[string]interface{}{
		"chainId":  chainID,
		"token":    tokenAddress,
		"symbol":   symbol,
		"txHash":   result.TxHash,
		"explorer": e.cfg.Chains.ExplorerTxURL(chainID, result.TxHash),
		"gasUsed":  result.GasUsed,
	})
	return e.receipt(result.TxHash, tokenAddress, symbol, domain.Sell, received, amount), nil
}

// bestQuote probes every fee tier and returns the highest non-zero quote and
// its tier. All-zero quotes mean no pool holds the pair.
func (e *Engine) bestQuote(ctx context.Context, client ports.ChainClient, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, int64, error) {
	best := big.NewInt(0)
	bestTier := int64(0)
	for _, tier := range feeTiers {
		quote, err := client.Quote(ctx, tokenIn, tokenOut, tier, amountIn)
		if err != nil {
			return nil, 0, fmt.Errorf("quote at tier %d failed: %w", tier, err)
		}
		if quote.Cmp(best) > 0 {
			best = quote
			bestTier = tier
		}
	}
	if best.Sign() == 0 {
		return nil, 0, fmt.Errorf("no pool quotes %s -> %s: %w", tokenIn, tokenOut, ports.ErrNoLiquidity)
	}
	return best, bestTier, nil
}

// applySlippage lowers the quote by the configured tolerance:
// quote * (10000 - slippageBps) / 10000.
func (e *Engine) applySlippage(quote *big.Int) *big.Int {
	minOut := new(big.Int).Mul(quote, big.NewInt(10000-e.cfg.SlippageBps))
	return minOut.Div(minOut, big.NewInt(10000))
}

// ensureAllowance approves the router for the sale amount when the current
// allowance does not cover it.
func (e *Engine) ensureAllowance(ctx context.Context, client ports.ChainClient, tokenAddress string, amount *big.Int) error {
	allowance, err := client.RouterAllowance(ctx, tokenAddress)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	txHash, err := client.ApproveRouter(ctx, tokenAddress, amount)
	if err != nil {
		return fmt.Errorf("failed to approve router: %w", err)
	}
	e.logger.Info(ctx, "Router approval confirmed", map[string]interface{}{
		"token":  tokenAddress,
		"txHash": txHash,
	})
	return nil
}

// readBalanceRetrying reads the wallet's token balance, retrying with backoff
// because freshly minted balances can lag on some RPC endpoints.
func (e *Engine) readBalanceRetrying(ctx context.Context, client ports.ChainClient, tokenAddress string) (*big.Int, error) {
	b := &backoff.Backoff{
		Min:    e.cfg.BalanceRetryBaseWait,
		Max:    e.cfg.BalanceRetryBaseWait * 8,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.BalanceReadRetries; attempt++ {
		balance, err := client.TokenBalance(ctx, tokenAddress)
		if err == nil && balance.Sign() > 0 {
			return balance, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("balance read canceled: %w", ports.ErrContextCanceled)
		case <-time.After(b.Duration()):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("balance read failed after %d attempts: %w", e.cfg.BalanceReadRetries, lastErr)
	}
	return nil, fmt.Errorf("balance still zero after %d reads: %w", e.cfg.BalanceReadRetries, ports.ErrZeroBalance)
}

// baseDeltaRetrying reads the wallet's base-asset balance until it exceeds
// the pre-swap floor and returns the difference. Mirrors readBalanceRetrying
// for sells whose swap emitted no transfer log to the recipient.
func (e *Engine) baseDeltaRetrying(ctx context.Context, client ports.ChainClient, floor *big.Int) (*big.Int, error) {
	b := &backoff.Backoff{
		Min:    e.cfg.BalanceRetryBaseWait,
		Max:    e.cfg.BalanceRetryBaseWait * 8,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.BalanceReadRetries; attempt++ {
		balance, err := client.TokenBalance(ctx, client.BaseAsset())
		if err == nil && balance.Cmp(floor) > 0 {
			return new(big.Int).Sub(balance, floor), nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("balance read canceled: %w", ports.ErrContextCanceled)
		case <-time.After(b.Duration()):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("balance read failed after %d attempts: %w", e.cfg.BalanceReadRetries, lastErr)
	}
	return nil, fmt.Errorf("base balance unchanged after %d reads: %w", e.cfg.BalanceReadRetries, ports.ErrZeroBalance)
}

// receipt converts wei amounts into the realized fill price. Price is base
// spent (or received) per token, both sides treated as 18-decimal.
func (e *Engine) receipt(txHash, tokenAddress, symbol string, action domain.TradeAction, baseAmount, tokenAmount *big.Int) *domain.TradeReceipt {
	tokens := decimal.NewFromBigInt(tokenAmount, tokenDecimals)
	base := decimal.NewFromBigInt(baseAmount, tokenDecimals)

	price := 0.0
	if !tokens.IsZero() {
		price, _ = base.Div(tokens).Float64()
	}
	amount, _ := tokens.Float64()

	return &domain.TradeReceipt{
		TradeID:      txHash,
		TokenAddress: tokenAddress,
		Symbol:       symbol,
		Action:       action,
		Price:        price,
		Amount:       amount,
		Timestamp:    time.Now().UTC(),
	}
}

func (e *Engine) logDryRun(ctx context.Context, action domain.TradeAction, chainID int64, token string, amountIn, quote *big.Int, feeTier int64) {
	e.logger.Info(ctx, "Dry run, swap not submitted", map[string]interface{}{
		"action":   string(action),
		"chainId":  chainID,
		"token":    token,
		"amountIn": amountIn.String(),
		"quote":    quote.String(),
		"feeTier":  feeTier,
	})
}
