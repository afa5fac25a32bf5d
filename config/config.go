package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"mindshareTrader/internal/domain"
)

// ChainSettings holds the per-network configuration required to execute
// trades. RPC endpoint and signing key are supplied via environment, never
// embedded in code.
type ChainSettings struct {
	ChainID       int64
	Name          string
	RPCURL        string
	PrivateKey    string
	RouterAddress string
	QuoterAddress string
	BaseAsset     string // Wrapped-native token address
	ExplorerTxURL string // Template, transaction hash is appended
}

// ScoreWeights are the fixed, auditable weights of the composite score. They
// must sum to 1.
type ScoreWeights struct {
	Price     float64
	Volume    float64
	Mindshare float64
	Liquidity float64
	Holders   float64
}

// Sum returns the total of all weights.
func (w ScoreWeights) Sum() float64 {
	return w.Price + w.Volume + w.Mindshare + w.Liquidity + w.Holders
}

// Config holds all application configuration.
type Config struct {
	// Chains enabled for trading, keyed by chain ID.
	Chains map[int64]ChainSettings

	// Data providers
	CookieAPIKey     string
	CookieBaseURL    string
	DexScreenerURL   string
	TrendingPageSize int
	SocialInterval   string // e.g. "_7Days"

	// Trading parameters
	TradeAmountWei       *big.Int // Base-asset amount spent per buy
	BuyThreshold         float64  // Composite score floor for a buy signal
	ProfitTargetPercent  float64  // e.g. 30
	StopLossPercent      float64  // e.g. -20
	TrailingTrigger      float64  // Unrealized P/L that tightens the stop, e.g. 20
	TrailingStopPercent  float64  // Tightened stop level, e.g. -10
	VolumeCollapseDrop   float64  // Percent 24h-volume decline vs entry, e.g. 50
	PriceZScoreFloor     float64  // Severe-negative price z-score, e.g. -2.0
	Weights              ScoreWeights
	SnapshotLookback     int // History points for z-scores
	SlippageBps          int64
	ConfirmationTimeout  time.Duration
	BalanceReadRetries   int
	BalanceRetryBaseWait time.Duration

	// Scheduler
	CycleInterval time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel string

	// Explicit debug switches replacing inline hacks.
	DryRun       bool
	ForceSellAll bool
}

// defaultExplorers maps chain names to their transaction explorer templates.
var defaultExplorers = map[string]string{
	"arbitrum":  "https://arbiscan.io/tx/",
	"base":      "https://basescan.org/tx/",
	"mode":      "https://explorer.mode.network/tx/",
	"avalanche": "https://snowtrace.io/tx/",
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Chains: comma-separated names, each with its own env block.
	chainNames := strings.Split(getEnv("TRADING_CHAINS", "arbitrum,base"), ",")
	cfg.Chains = make(map[int64]ChainSettings, len(chainNames))
	for _, raw := range chainNames {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		chainID := domain.ChainIDByName(name)
		if chainID == 0 {
			errs = append(errs, fmt.Sprintf("unknown chain %q in TRADING_CHAINS", name))
			continue
		}
		settings, chainErrs := loadChainSettings(name, chainID)
		if len(chainErrs) > 0 {
			errs = append(errs, chainErrs...)
			continue
		}
		cfg.Chains[chainID] = settings
	}
	if len(cfg.Chains) == 0 && len(errs) == 0 {
		errs = append(errs, "at least one chain must be configured via TRADING_CHAINS")
	}

	// Data providers
	cfg.CookieAPIKey = getEnv("COOKIE_API_KEY", "")
	if cfg.CookieAPIKey == "" {
		errs = append(errs, "COOKIE_API_KEY must be set")
	}
	cfg.CookieBaseURL = getEnv("COOKIE_API_URL", "https://api.cookie.fun/v2")
	cfg.DexScreenerURL = getEnv("DEXSCREENER_API_URL", "https://api.dexscreener.com/latest")
	cfg.TrendingPageSize = getEnvAsInt("TRENDING_PAGE_SIZE", 10)
	if cfg.TrendingPageSize <= 0 {
		errs = append(errs, "TRENDING_PAGE_SIZE must be positive")
	}
	cfg.SocialInterval = getEnv("SOCIAL_INTERVAL", "_7Days")

	// Trading parameters
	tradeAmountEth := getEnv("TRADE_AMOUNT", "0.0001")
	wei, err := ethToWei(tradeAmountEth)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TRADE_AMOUNT: %v", err))
	} else if wei.Sign() <= 0 {
		errs = append(errs, "TRADE_AMOUNT must be positive")
	} else {
		cfg.TradeAmountWei = wei
	}

	cfg.BuyThreshold = getEnvAsFloat("BUY_THRESHOLD", 0.5)
	cfg.ProfitTargetPercent = getEnvAsFloat("PROFIT_TARGET", 30)
	if cfg.ProfitTargetPercent <= 0 {
		errs = append(errs, "PROFIT_TARGET must be positive")
	}
	cfg.StopLossPercent = getEnvAsFloat("STOP_LOSS", -20)
	if cfg.StopLossPercent >= 0 {
		errs = append(errs, "STOP_LOSS must be negative")
	}
	cfg.TrailingTrigger = getEnvAsFloat("TRAILING_TRIGGER", 20)
	cfg.TrailingStopPercent = getEnvAsFloat("TRAILING_STOP", -10)
	if cfg.TrailingStopPercent <= cfg.StopLossPercent {
		errs = append(errs, "TRAILING_STOP must be tighter (greater) than STOP_LOSS")
	}
	cfg.VolumeCollapseDrop = getEnvAsFloat("VOLUME_COLLAPSE_DROP", 50)
	if cfg.VolumeCollapseDrop <= 0 || cfg.VolumeCollapseDrop > 100 {
		errs = append(errs, "VOLUME_COLLAPSE_DROP must be between 0 and 100")
	}
	cfg.PriceZScoreFloor = getEnvAsFloat("PRICE_ZSCORE_FLOOR", -2.0)

	cfg.Weights = ScoreWeights{
		Price:     getEnvAsFloat("WEIGHT_PRICE", 0.40),
		Volume:    getEnvAsFloat("WEIGHT_VOLUME", 0.25),
		Mindshare: getEnvAsFloat("WEIGHT_MINDSHARE", 0.15),
		Liquidity: getEnvAsFloat("WEIGHT_LIQUIDITY", 0.10),
		Holders:   getEnvAsFloat("WEIGHT_HOLDERS", 0.10),
	}
	if sum := cfg.Weights.Sum(); sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Sprintf("score weights must sum to 1, got %.3f", sum))
	}

	cfg.SnapshotLookback = getEnvAsInt("SNAPSHOT_LOOKBACK", 10)
	if cfg.SnapshotLookback < 3 {
		errs = append(errs, "SNAPSHOT_LOOKBACK must be at least 3")
	}
	cfg.SlippageBps = int64(getEnvAsInt("SLIPPAGE_BPS", 50))
	// The executor refuses a zero tolerance, so reject it here too rather
	// than failing at the first swap.
	if cfg.SlippageBps <= 0 || cfg.SlippageBps >= 10000 {
		errs = append(errs, "SLIPPAGE_BPS must be between 1 and 9999")
	}

	confirmationSeconds := getEnvAsInt("CONFIRMATION_TIMEOUT_SECONDS", 120)
	if confirmationSeconds <= 0 {
		errs = append(errs, "CONFIRMATION_TIMEOUT_SECONDS must be positive")
	}
	cfg.ConfirmationTimeout = time.Duration(confirmationSeconds) * time.Second

	cfg.BalanceReadRetries = getEnvAsInt("BALANCE_READ_RETRIES", 3)
	if cfg.BalanceReadRetries < 0 {
		errs = append(errs, "BALANCE_READ_RETRIES cannot be negative")
	}
	cfg.BalanceRetryBaseWait = time.Duration(getEnvAsInt("BALANCE_RETRY_BASE_MS", 1000)) * time.Millisecond

	// Scheduler
	intervalMinutes := getEnvAsInt("HOUSEKEEPING_MINUTES", 5)
	if intervalMinutes <= 0 {
		errs = append(errs, "HOUSEKEEPING_MINUTES must be positive")
	}
	cfg.CycleInterval = time.Duration(intervalMinutes) * time.Minute

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/mindshare_trader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")

	// Debug switches
	cfg.DryRun = getEnvAsBool("DRY_RUN", false)
	cfg.ForceSellAll = getEnvAsBool("FORCE_SELL_ALL", false)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// AllowedChain reports whether the given chain ID is configured for trading.
func (c *Config) AllowedChain(chainID int64) bool {
	_, ok := c.Chains[chainID]
	return ok
}

// loadChainSettings reads one chain's env block, e.g. ARBITRUM_RPC_URL.
func loadChainSettings(name string, chainID int64) (ChainSettings, []string) {
	prefix := strings.ToUpper(name)
	var errs []string

	s := ChainSettings{
		ChainID:       chainID,
		Name:          name,
		RPCURL:        getEnv(prefix+"_RPC_URL", ""),
		PrivateKey:    getEnv(prefix+"_WALLET_PRIVATE_KEY", ""),
		RouterAddress: getEnv(prefix+"_ROUTER", ""),
		QuoterAddress: getEnv(prefix+"_QUOTER", ""),
		BaseAsset:     getEnv(prefix+"_WETH", ""),
		ExplorerTxURL: getEnv(prefix+"_EXPLORER_TX_URL", defaultExplorers[name]),
	}
	if s.RPCURL == "" {
		errs = append(errs, prefix+"_RPC_URL must be set")
	}
	if s.PrivateKey == "" {
		errs = append(errs, prefix+"_WALLET_PRIVATE_KEY must be set")
	}
	if s.RouterAddress == "" {
		errs = append(errs, prefix+"_ROUTER must be set")
	}
	if s.QuoterAddress == "" {
		errs = append(errs, prefix+"_QUOTER must be set")
	}
	if s.BaseAsset == "" {
		errs = append(errs, prefix+"_WETH must be set")
	}
	return s, errs
}

// ethToWei converts a decimal base-asset amount ("0.0001") into wei without
// floating-point drift.
func ethToWei(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", amount)
	}
	return d.Shift(18).BigInt(), nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
