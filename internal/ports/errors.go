package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the core can branch on failure class without knowing the provider.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// External data provider errors
	ErrProviderUnavailable = errors.New("data provider is unavailable")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrNoPairData          = errors.New("no trading pair data for token")
	ErrMalformedResponse   = errors.New("malformed provider response")

	// On-chain execution errors
	ErrNoLiquidity        = errors.New("no liquidity route for token pair")
	ErrZeroBalance        = errors.New("zero token balance")
	ErrTxReverted         = errors.New("transaction reverted on chain")
	ErrTxTimeout          = errors.New("timed out waiting for transaction confirmation")
	ErrApprovalFailed     = errors.New("token approval failed")
	ErrChainUnavailable   = errors.New("blockchain RPC endpoint unavailable")
	ErrChainNotConfigured = errors.New("chain is not configured for trading")

	// Database errors
	ErrOpenPositionExists = errors.New("open position already exists for token and chain")
	ErrDBConnection       = errors.New("database connection error")
	ErrQueryFailed        = errors.New("database query failed")
	ErrUpdateFailed       = errors.New("database update failed")
)
