package evm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mindshareTrader/config"
	"mindshareTrader/internal/ports"
)

// Registry holds the chain clients that connected successfully at startup.
// Chains that fail to initialize are skipped with a warning instead of
// aborting the whole process, so one bad RPC endpoint does not take down
// trading on the remaining networks.
type Registry struct {
	clients   map[int64]ports.ChainClient
	explorers map[int64]string
	logger    ports.Logger
}

// NewRegistry dials every configured chain and registers the ones that come
// up. Returns an error only when no chain at all could be initialized.
func NewRegistry(chains map[int64]config.ChainSettings, confirmFor time.Duration, logger ports.Logger) (*Registry, error) {
	r := &Registry{
		clients:   make(map[int64]ports.ChainClient),
		explorers: make(map[int64]string),
		logger:    logger,
	}

	for chainID, settings := range chains {
		client, err := NewClient(settings, confirmFor, logger)
		if err != nil {
			logger.Warn(context.Background(), "Skipping chain, initialization failed", map[string]interface{}{
				"chainId": chainID,
				"chain":   settings.Name,
				"error":   err.Error(),
			})
			continue
		}
		r.clients[chainID] = client
		r.explorers[chainID] = settings.ExplorerTxURL
		logger.Info(context.Background(), "Chain registered", map[string]interface{}{
			"chainId": chainID,
			"chain":   settings.Name,
			"wallet":  client.WalletAddress(),
		})
	}

	if len(r.clients) == 0 {
		return nil, fmt.Errorf("no tradable chain could be initialized: %w", ports.ErrConfigurationError)
	}
	return r, nil
}

// Resolve returns the client for a chain, or ErrChainNotConfigured when the
// chain is absent from configuration or failed to initialize.
func (r *Registry) Resolve(chainID int64) (ports.ChainClient, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ports.ErrChainNotConfigured)
	}
	return client, nil
}

// Configured lists registered chain IDs in stable order.
func (r *Registry) Configured() []int64 {
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ExplorerTxURL renders a block explorer link for a transaction. Falls back
// to the bare hash when the chain has no explorer template configured.
func (r *Registry) ExplorerTxURL(chainID int64, txHash string) string {
	template, ok := r.explorers[chainID]
	if !ok || template == "" {
		return txHash
	}
	return strings.TrimSuffix(template, "/") + "/" + txHash
}
