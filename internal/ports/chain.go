package ports

import (
	"context"
	"math/big"
)

// SwapResult describes a confirmed swap transaction with the realized output
// amount recovered from the receipt's transfer events, not the quote.
type SwapResult struct {
	TxHash    string
	AmountIn  *big.Int // Amount of tokenIn spent, in its smallest unit
	AmountOut *big.Int // Amount of tokenOut actually received, from transfer logs
	GasUsed   uint64
}

// ChainClient abstracts one network's router and token operations. The engine
// resolves fee conventions and addresses through this interface instead of
// hard-coding a single network's ABI.
type ChainClient interface {
	// ChainID returns the numeric chain identifier.
	ChainID() int64
	// BaseAsset returns the wrapped-native token address prices are
	// denominated in.
	BaseAsset() string
	// WalletAddress returns the signing wallet's address.
	WalletAddress() string

	// TokenSymbol reads the ERC-20 symbol for display purposes.
	TokenSymbol(ctx context.Context, tokenAddress string) (string, error)
	// TokenBalance reads the wallet's balance of the given token.
	TokenBalance(ctx context.Context, tokenAddress string) (*big.Int, error)
	// RouterAllowance reads the router's spending allowance for the token.
	RouterAllowance(ctx context.Context, tokenAddress string) (*big.Int, error)
	// ApproveRouter submits an approval for the router and blocks until the
	// approval transaction is confirmed. Returns the transaction hash.
	ApproveRouter(ctx context.Context, tokenAddress string, amount *big.Int) (string, error)

	// Quote asks the router's quoter for the output of swapping amountIn of
	// tokenIn into tokenOut at the given fee tier. A missing pool yields a
	// zero quote, not an error.
	Quote(ctx context.Context, tokenIn, tokenOut string, feeTier int64, amountIn *big.Int) (*big.Int, error)

	// Swap submits an exact-input swap with the given minimum output bound,
	// blocks until confirmation, and parses the realized output from the
	// receipt. payWithNative attaches the input amount as transaction value
	// for base-asset buys.
	Swap(ctx context.Context, tokenIn, tokenOut string, feeTier int64, amountIn, minOut *big.Int, payWithNative bool) (*SwapResult, error)
}

// ChainRegistry resolves configured chain adapters. Resolution fails for
// chains with missing RPC endpoint, signing key or router configuration so a
// cycle never attempts such a chain at all.
type ChainRegistry interface {
	Resolve(chainID int64) (ChainClient, error)
	// Configured lists the chain IDs that resolved successfully at startup.
	Configured() []int64
	// ExplorerTxURL renders a human-readable link for a transaction hash.
	ExplorerTxURL(chainID int64, txHash string) string
}
