package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"mindshareTrader/config"
	"mindshareTrader/internal/ports"
)

const (
	// Fallback gas limits when estimation fails on quirky RPC endpoints.
	approveGasLimit = uint64(120000)
	swapGasLimit    = uint64(500000)

	// Swap transactions carry a deadline this far in the future.
	swapDeadline = 300 * time.Second
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Client implements ports.ChainClient for one EVM network using a V3-style
// swap router and its quoter.
type Client struct {
	chainID    *big.Int
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	wallet     common.Address
	router     common.Address
	quoter     common.Address
	baseAsset  common.Address
	confirmFor time.Duration
	logger     ports.Logger

	erc20ABI  abi.ABI
	quoterABI abi.ABI
	routerABI abi.ABI
}

// NewClient dials the chain's RPC endpoint and prepares the signing wallet.
func NewClient(settings config.ChainSettings, confirmFor time.Duration, logger ports.Logger) (*Client, error) {
	rpc, err := ethclient.Dial(settings.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s RPC: %w", settings.Name, ports.ErrChainUnavailable)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(settings.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key for %s: %w", settings.Name, ports.ErrConfigurationError)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}
	quoter, err := abi.JSON(strings.NewReader(quoterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &Client{
		chainID:    big.NewInt(settings.ChainID),
		rpc:        rpc,
		privateKey: key,
		wallet:     crypto.PubkeyToAddress(key.PublicKey),
		router:     common.HexToAddress(settings.RouterAddress),
		quoter:     common.HexToAddress(settings.QuoterAddress),
		baseAsset:  common.HexToAddress(settings.BaseAsset),
		confirmFor: confirmFor,
		logger:     logger,
		erc20ABI:   erc20,
		quoterABI:  quoter,
		routerABI:  router,
	}, nil
}

func (c *Client) ChainID() int64 {
	return c.chainID.Int64()
}

func (c *Client) BaseAsset() string {
	return c.baseAsset.Hex()
}

func (c *Client) WalletAddress() string {
	return c.wallet.Hex()
}

// TokenSymbol reads the ERC-20 symbol for display purposes.
func (c *Client) TokenSymbol(ctx context.Context, tokenAddress string) (string, error) {
	raw, err := c.viewCall(ctx, common.HexToAddress(tokenAddress), c.erc20ABI, "symbol")
	if err != nil {
		return "", fmt.Errorf("failed to read token symbol: %w", err)
	}
	out, err := c.erc20ABI.Unpack("symbol", raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode token symbol: %w", err)
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected symbol return type: %w", ports.ErrUnknown)
	}
	return symbol, nil
}

// TokenBalance reads the wallet's balance of the given token.
func (c *Client) TokenBalance(ctx context.Context, tokenAddress string) (*big.Int, error) {
	raw, err := c.viewCall(ctx, common.HexToAddress(tokenAddress), c.erc20ABI, "balanceOf", c.wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read token balance: %w", err)
	}
	return c.unpackUint(c.erc20ABI, "balanceOf", raw)
}

// RouterAllowance reads the router's spending allowance for the token.
func (c *Client) RouterAllowance(ctx context.Context, tokenAddress string) (*big.Int, error) {
	raw, err := c.viewCall(ctx, common.HexToAddress(tokenAddress), c.erc20ABI, "allowance", c.wallet, c.router)
	if err != nil {
		return nil, fmt.Errorf("failed to read router allowance: %w", err)
	}
	return c.unpackUint(c.erc20ABI, "allowance", raw)
}

// ApproveRouter grants the router a spending allowance and waits for the
// approval to confirm.
func (c *Client) ApproveRouter(ctx context.Context, tokenAddress string, amount *big.Int) (string, error) {
	data, err := c.erc20ABI.Pack("approve", c.router, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve call: %w", err)
	}

	tx, err := c.sendSignedTx(ctx, common.HexToAddress(tokenAddress), big.NewInt(0), data, approveGasLimit)
	if err != nil {
		return "", fmt.Errorf("failed to send approval: %w", err)
	}

	receipt, err := c.waitConfirmed(ctx, tx)
	if err != nil {
		return tx.Hash().Hex(), err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), fmt.Errorf("approval reverted on chain: %w", ports.ErrApprovalFailed)
	}
	return tx.Hash().Hex(), nil
}

// Quote asks the quoter for the output of an exact-input single-hop swap.
// A reverting call means no pool exists at that fee tier, which is reported
// as a zero quote rather than an error.
func (c *Client) Quote(ctx context.Context, tokenIn, tokenOut string, feeTier int64, amountIn *big.Int) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           common.HexToAddress(tokenIn),
		TokenOut:          common.HexToAddress(tokenOut),
		AmountIn:          amountIn,
		Fee:               big.NewInt(feeTier),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := c.quoterABI.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack quote call: %w", err)
	}

	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.quoter, Data: data}, nil)
	if err != nil {
		c.logger.Debug(ctx, "Quote call reverted, treating as missing pool", map[string]interface{}{
			"chainId": c.chainID.Int64(),
			"tokenIn": tokenIn,
			"feeTier": feeTier,
			"error":   err.Error(),
		})
		return big.NewInt(0), nil
	}

	out, err := c.quoterABI.Unpack("quoteExactInputSingle", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote return type: %w", ports.ErrUnknown)
	}
	return amountOut, nil
}

// Swap submits an exact-input swap and blocks until the transaction is mined,
// then recovers the realized output amount from the receipt's transfer logs.
func (c *Client) Swap(ctx context.Context, tokenIn, tokenOut string, feeTier int64, amountIn, minOut *big.Int, payWithNative bool) (*ports.SwapResult, error) {
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           common.HexToAddress(tokenIn),
		TokenOut:          common.HexToAddress(tokenOut),
		Fee:               big.NewInt(feeTier),
		Recipient:         c.wallet,
		Deadline:          deadline,
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := c.routerABI.Pack("exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap call: %w", err)
	}

	value := big.NewInt(0)
	if payWithNative {
		value = amountIn
	}

	tx, err := c.sendSignedTx(ctx, c.router, value, data, swapGasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to send swap: %w", err)
	}

	c.logger.Info(ctx, "Swap submitted", map[string]interface{}{
		"chainId":  c.chainID.Int64(),
		"txHash":   tx.Hash().Hex(),
		"tokenIn":  tokenIn,
		"tokenOut": tokenOut,
		"feeTier":  feeTier,
	})

	receipt, err := c.waitConfirmed(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("swap %s reverted on chain: %w", tx.Hash().Hex(), ports.ErrTxReverted)
	}

	amountOut := c.receivedFromLogs(receipt, common.HexToAddress(tokenOut))

	return &ports.SwapResult{
		TxHash:    tx.Hash().Hex(),
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: amountOut,
		GasUsed:   receipt.GasUsed,
	}, nil
}

// receivedFromLogs sums the token's Transfer events paying the wallet. The
// sum, not the last event, covers routers that split fills across pools.
func (c *Client) receivedFromLogs(receipt *ethtypes.Receipt, token common.Address) *big.Int {
	total := big.NewInt(0)
	for _, entry := range receipt.Logs {
		if entry.Address != token || len(entry.Topics) != 3 {
			continue
		}
		if entry.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(entry.Topics[2].Bytes()) != c.wallet {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(entry.Data))
	}
	return total
}

func (c *Client) viewCall(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, ports.ErrChainUnavailable)
	}
	return raw, nil
}

func (c *Client) unpackUint(contractABI abi.ABI, method string, raw []byte) (*big.Int, error) {
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s return: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s return type: %w", method, ports.ErrUnknown)
	}
	return value, nil
}

// sendSignedTx builds, signs and broadcasts a legacy transaction. Gas is
// estimated against the node with a static fallback when estimation fails,
// which some L2 endpoints do for payable router calls.
func (c *Client) sendSignedTx(ctx context.Context, to common.Address, value *big.Int, data []byte, fallbackGas uint64) (*ethtypes.Transaction, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", ports.ErrChainUnavailable)
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", ports.ErrChainUnavailable)
	}

	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.wallet,
		To:       &to,
		Value:    value,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		c.logger.Warn(ctx, "Gas estimation failed, using fallback limit", map[string]interface{}{
			"chainId":  c.chainID.Int64(),
			"to":       to.Hex(),
			"fallback": fallbackGas,
			"error":    err.Error(),
		})
		gasLimit = fallbackGas
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to broadcast transaction: %w", ports.ErrChainUnavailable)
	}
	return signedTx, nil
}

// waitConfirmed blocks until the transaction is mined or the confirmation
// window elapses. A timed-out wait does not mean the transaction failed, so
// the caller gets the hash alongside ErrTxTimeout for manual follow-up.
func (c *Client) waitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmFor)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.rpc, tx)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, fmt.Errorf("confirmation wait for %s elapsed: %w", tx.Hash().Hex(), ports.ErrTxTimeout)
		}
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), ports.ErrChainUnavailable)
	}
	return receipt, nil
}
