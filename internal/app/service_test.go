package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"
	"mindshareTrader/internal/signals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// memStore is an in-memory PositionStore/SnapshotHistory tracking lifecycle
// transitions for assertions.
type memStore struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	history   map[string][]*domain.TokenSnapshot
	closed    int
}

func newMemStore() *memStore {
	return &memStore{
		positions: make(map[string]*domain.Position),
		history:   make(map[string][]*domain.TokenSnapshot),
	}
}

func key(token string, chainID int64) string {
	return token + ":" + string(rune(chainID))
}

func (m *memStore) put(pos *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[key(pos.TokenAddress, pos.ChainID)] = pos
}

func (m *memStore) UpsertCandidate(ctx context.Context, snap *domain.TokenSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(snap.TokenAddress, snap.ChainID)
	if pos, ok := m.positions[k]; ok {
		pos.Price = snap.Price
		if pos.EntryPrice == nil {
			pos.BuySignal = true
		}
		return nil
	}
	m.positions[k] = &domain.Position{
		TokenAddress: snap.TokenAddress,
		ChainID:      snap.ChainID,
		Symbol:       snap.Symbol,
		Volume24h:    snap.Volume24h,
		Price:        snap.Price,
		BuySignal:    true,
		Timestamp:    snap.Timestamp,
	}
	return nil
}

func (m *memStore) MarkBought(ctx context.Context, token string, chainID int64, entryPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key(token, chainID)]
	if !ok || pos.EntryPrice != nil {
		return ports.ErrNotFound
	}
	entry := entryPrice
	pos.EntryPrice = &entry
	pos.BuySignal = false
	return nil
}

func (m *memStore) MarkSellSignal(ctx context.Context, token string, chainID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key(token, chainID)]
	if !ok || pos.EntryPrice == nil {
		return ports.ErrNotFound
	}
	pos.SellSignal = true
	return nil
}

func (m *memStore) UpdateStopLoss(ctx context.Context, token string, chainID int64, level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key(token, chainID)]
	if !ok {
		return ports.ErrNotFound
	}
	if pos.StopLossLevel == nil || *pos.StopLossLevel < level {
		l := level
		pos.StopLossLevel = &l
	}
	return nil
}

func (m *memStore) FinalizeSold(ctx context.Context, token string, chainID int64, exitPrice, pnlPercent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key(token, chainID)]
	if !ok || pos.EntryPrice == nil || pos.Finalized {
		return ports.ErrNotFound
	}
	exit := exitPrice
	pnl := pnlPercent
	pos.ExitPrice = &exit
	pos.ProfitLossPercent = &pnl
	pos.Finalized = true
	m.closed++
	return nil
}

func (m *memStore) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, pos := range m.positions {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memStore) GetBuyCandidates(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, pos := range m.positions {
		if pos.BuySignal && !pos.Finalized && pos.EntryPrice == nil {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memStore) GetSellCandidates(ctx context.Context) ([]*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, pos := range m.positions {
		if pos.SellSignal && pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memStore) FindPosition(ctx context.Context, token string, chainID int64) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[key(token, chainID)]
	if !ok || pos.Finalized {
		return nil, nil
	}
	return pos, nil
}

func (m *memStore) CountClosed(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, nil
}

func (m *memStore) TotalProfit(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, pos := range m.positions {
		if pos.Finalized && pos.ProfitLossPercent != nil {
			total += *pos.ProfitLossPercent
		}
	}
	return total, nil
}

func (m *memStore) AppendSnapshot(ctx context.Context, snap *domain.TokenSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(snap.TokenAddress, snap.ChainID)
	m.history[k] = append([]*domain.TokenSnapshot{snap}, m.history[k]...)
	return nil
}

func (m *memStore) RecentSnapshots(ctx context.Context, token string, chainID int64, limit int) ([]*domain.TokenSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.history[key(token, chainID)]
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func (m *memStore) LatestSnapshots(ctx context.Context, limit int) ([]*domain.TokenSnapshot, error) {
	return nil, nil
}

type mockScorer struct {
	snaps   []*domain.TokenSnapshot
	err     error
	panics  bool
	started chan struct{}
	release chan struct{}
	calls   int
}

func (m *mockScorer) RunCycle(ctx context.Context) ([]*domain.TokenSnapshot, error) {
	m.calls++
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	if m.panics {
		panic("scorer exploded")
	}
	return m.snaps, m.err
}

type mockEvaluator struct {
	sellReason  domain.SellReason
	trailTo     float64
	shouldTrail bool
}

func (m *mockEvaluator) EvaluateBuy(ctx context.Context, snap *domain.TokenSnapshot, hasOpen bool) bool {
	return !hasOpen
}

func (m *mockEvaluator) EvaluateSell(ctx context.Context, pos *domain.Position, quote *ports.PairData, history []*domain.TokenSnapshot) (bool, domain.SellReason) {
	if pos.SellSignal {
		return false, domain.SellReasonNone
	}
	if m.sellReason != domain.SellReasonNone {
		return true, m.sellReason
	}
	return false, domain.SellReasonNone
}

func (m *mockEvaluator) AdjustStopLoss(pos *domain.Position, pnlPercent float64) (float64, bool) {
	return m.trailTo, m.shouldTrail
}

type mockExecutor struct {
	mu        sync.Mutex
	buyPrice  float64
	buyErr    error
	sellPrice float64
	sellErr   error
	bought    []string
	sold      []string
}

func (m *mockExecutor) Buy(ctx context.Context, chainID int64, token string, baseAmount *big.Int) (*domain.TradeReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buyErr != nil {
		return nil, m.buyErr
	}
	m.bought = append(m.bought, token)
	return &domain.TradeReceipt{TradeID: "0xbuy", TokenAddress: token, Action: domain.Buy, Price: m.buyPrice}, nil
}

func (m *mockExecutor) Sell(ctx context.Context, chainID int64, token string, amount *big.Int) (*domain.TradeReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sellErr != nil {
		return nil, m.sellErr
	}
	m.sold = append(m.sold, token)
	return &domain.TradeReceipt{TradeID: "0xsell", TokenAddress: token, Action: domain.Sell, Price: m.sellPrice}, nil
}

type mockMarket struct {
	price  float64
	volume float64
	err    error
}

func (m *mockMarket) FetchPair(ctx context.Context, token string) (*ports.PairData, error) {
	if m.err != nil {
		return nil, m.err
	}
	volume := m.volume
	if volume == 0 {
		volume = 1000
	}
	return &ports.PairData{Symbol: "TEST", PriceNative: m.price, PriceUSD: m.price, Volume24h: volume}, nil
}

type mockRegistry struct{}

func (m *mockRegistry) Resolve(chainID int64) (ports.ChainClient, error) {
	return nil, ports.ErrChainNotConfigured
}
func (m *mockRegistry) Configured() []int64                           { return []int64{42161} }
func (m *mockRegistry) ExplorerTxURL(chainID int64, tx string) string { return tx }

type harness struct {
	store    *memStore
	scorer   *mockScorer
	eval     *mockEvaluator
	executor *mockExecutor
	market   *mockMarket
}

func newTestService(t *testing.T, h *harness, forceSellAll bool) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Store:          h.store,
		History:        h.store,
		Scorer:         h.scorer,
		Evaluator:      h.eval,
		Executor:       h.executor,
		Market:         h.market,
		Chains:         &mockRegistry{},
		Logger:         &mockLogger{},
		TradeAmountWei: big.NewInt(100000000000000),
		CycleInterval:  time.Minute,
		Lookback:       10,
		ForceSellAll:   forceSellAll,
	})
	require.NoError(t, err)
	return svc
}

func candidateRow(token string) *domain.Position {
	return &domain.Position{
		TokenAddress: token,
		ChainID:      42161,
		Symbol:       "TEST",
		BuySignal:    true,
		Volume24h:    1000,
		Timestamp:    time.Now().UTC(),
	}
}

func openRow(token string, entry float64) *domain.Position {
	e := entry
	return &domain.Position{
		TokenAddress: token,
		ChainID:      42161,
		Symbol:       "TEST",
		Volume24h:    1000,
		EntryPrice:   &e,
		Timestamp:    time.Now().UTC(),
	}
}

func TestRunCycle_BuysPendingCandidates(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{snaps: []*domain.TokenSnapshot{{TokenAddress: "0xaaa", ChainID: 42161}}},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{buyPrice: 0.0004},
		market:   &mockMarket{price: 0.0004},
	}
	h.store.put(candidateRow("0xaaa"))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Scored)
	assert.Equal(t, 1, result.BoughtTokens)
	assert.Equal(t, []string{"0xaaa"}, h.executor.bought)

	pos, err := h.store.FindPosition(context.Background(), "0xaaa", 42161)
	require.NoError(t, err)
	require.NotNil(t, pos.EntryPrice)
	assert.Equal(t, 0.0004, *pos.EntryPrice)
	assert.False(t, pos.BuySignal)
	assert.Equal(t, 1, result.OpenPositions)
}

func TestRunCycle_BuyFailureLeavesCandidatePending(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{buyErr: ports.ErrNoLiquidity},
		market:   &mockMarket{price: 0.0004},
	}
	h.store.put(candidateRow("0xaaa"))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success, "a failed buy is not a failed cycle")
	assert.Zero(t, result.BoughtTokens)

	candidates, err := h.store.GetBuyCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestRunCycle_FlagsAndSellsInOneCycle(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{sellReason: domain.SellReasonProfitTarget},
		executor: &mockExecutor{sellPrice: 0.00052},
		market:   &mockMarket{price: 0.00052},
	}
	h.store.put(openRow("0xbbb", 0.0004))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 1, result.SoldTokens)
	assert.Equal(t, []string{"0xbbb"}, h.executor.sold)
	assert.Equal(t, 1, result.ClosedTotal)
	assert.Zero(t, result.OpenPositions)

	// RoundedPnL(0.0004, 0.00052) = +30
	pos := h.store.positions[key("0xbbb", 42161)]
	require.NotNil(t, pos.ProfitLossPercent)
	assert.Equal(t, 30.0, *pos.ProfitLossPercent)
	assert.True(t, pos.Finalized)
}

func TestRunCycle_SellsOnLiveVolumeCollapseWithoutSnapshots(t *testing.T) {
	// Wires the real evaluator: the position's token has no stored snapshots
	// because it fell out of the scoring universe after entry, and the collapse
	// is only visible on the live pair quote.
	ev, err := signals.NewEvaluator(signals.Config{
		BuyThreshold:        0.5,
		ProfitTargetPercent: 30,
		StopLossPercent:     -20,
		TrailingTrigger:     20,
		TrailingStopPercent: -10,
		VolumeCollapseDrop:  50,
		PriceZScoreFloor:    -2.0,
		Logger:              &mockLogger{},
	})
	require.NoError(t, err)

	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		executor: &mockExecutor{sellPrice: 0.0004},
		market:   &mockMarket{price: 0.0004, volume: 100},
	}
	h.store.put(openRow("0xfff", 0.0004)) // entry volume 1000, live volume 100

	svc, err := NewService(Config{
		Store:          h.store,
		History:        h.store,
		Scorer:         h.scorer,
		Evaluator:      ev,
		Executor:       h.executor,
		Market:         h.market,
		Chains:         &mockRegistry{},
		Logger:         &mockLogger{},
		TradeAmountWei: big.NewInt(100000000000000),
		CycleInterval:  time.Minute,
		Lookback:       10,
	})
	require.NoError(t, err)

	result := svc.RunCycle(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.SoldTokens)
	assert.Equal(t, []string{"0xfff"}, h.executor.sold)
	pos := h.store.positions[key("0xfff", 42161)]
	assert.True(t, pos.Finalized)
}

func TestRunCycle_TightensTrailingStop(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{shouldTrail: true, trailTo: -10},
		executor: &mockExecutor{},
		market:   &mockMarket{price: 0.0005},
	}
	h.store.put(openRow("0xccc", 0.0004))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	pos := h.store.positions[key("0xccc", 42161)]
	require.NotNil(t, pos.StopLossLevel)
	assert.Equal(t, -10.0, *pos.StopLossLevel)
	assert.False(t, pos.SellSignal)
}

func TestRunCycle_ScorerFailureStillChecksSells(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{err: errors.New("provider down")},
		eval:     &mockEvaluator{sellReason: domain.SellReasonStopLoss},
		executor: &mockExecutor{sellPrice: 0.0003},
		market:   &mockMarket{price: 0.0003},
	}
	h.store.put(openRow("0xddd", 0.0004))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Zero(t, result.Scored)
	assert.Equal(t, 1, result.SoldTokens)
}

func TestRunCycle_PriceCheckFailureLeavesPositionUntouched(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{sellReason: domain.SellReasonStopLoss},
		executor: &mockExecutor{},
		market:   &mockMarket{err: ports.ErrProviderUnavailable},
	}
	h.store.put(openRow("0xeee", 0.0004))

	svc := newTestService(t, h, false)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Zero(t, result.SoldTokens)
	pos := h.store.positions[key("0xeee", 42161)]
	assert.False(t, pos.SellSignal)
	assert.Equal(t, 1, result.OpenPositions)
}

func TestRunCycle_PanicIsContained(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{panics: true},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{},
		market:   &mockMarket{price: 1},
	}

	svc := newTestService(t, h, false)

	var result *domain.CycleResult
	require.NotPanics(t, func() {
		result = svc.RunCycle(context.Background())
	})
	require.NotNil(t, result)
	assert.False(t, result.Success)

	// The loop must still be usable afterwards.
	h.scorer.panics = false
	result = svc.RunCycle(context.Background())
	assert.True(t, result.Success)
}

func TestRunCycle_OverlapIsSkipped(t *testing.T) {
	h := &harness{
		store: newMemStore(),
		scorer: &mockScorer{
			started: make(chan struct{}),
			release: make(chan struct{}),
		},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{},
		market:   &mockMarket{price: 1},
	}

	svc := newTestService(t, h, false)

	done := make(chan *domain.CycleResult, 1)
	go func() {
		done <- svc.RunCycle(context.Background())
	}()
	<-h.scorer.started

	// Second invocation while the first still runs must bail out immediately.
	overlapped := svc.RunCycle(context.Background())
	assert.False(t, overlapped.Success)
	assert.Contains(t, overlapped.Summary, "skipped")

	close(h.scorer.release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, 1, h.scorer.calls)
}

func TestRunCycle_ForceSellAll(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{sellPrice: 0.0005},
		market:   &mockMarket{price: 0.0005},
	}
	h.store.put(openRow("0xaaa", 0.0004))
	h.store.put(openRow("0xbbb", 0.0004))
	h.store.put(candidateRow("0xccc"))

	svc := newTestService(t, h, true)
	result := svc.RunCycle(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, 2, result.SoldTokens)
	// No scoring, no buys in force-sell mode.
	assert.Zero(t, h.scorer.calls)
	assert.Empty(t, h.executor.bought)
	assert.Equal(t, 2, result.ClosedTotal)
}

func TestManualBuy(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{buyPrice: 0.0004},
		market:   &mockMarket{price: 0.0004},
	}
	svc := newTestService(t, h, false)

	receipt, err := svc.ManualBuy(context.Background(), 42161, "0xAAA")
	require.NoError(t, err)
	assert.Equal(t, "0xbuy", receipt.TradeID)

	// Address is normalized to lowercase.
	pos, err := h.store.FindPosition(context.Background(), "0xaaa", 42161)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.IsOpen())

	// A second manual buy for the same pair must be rejected.
	_, err = svc.ManualBuy(context.Background(), 42161, "0xaaa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrOpenPositionExists))
}

func TestManualBuy_FailedSwapLeavesNoRow(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{buyErr: ports.ErrNoLiquidity},
		market:   &mockMarket{price: 0.0004},
	}
	svc := newTestService(t, h, false)

	_, err := svc.ManualBuy(context.Background(), 42161, "0xaaa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNoLiquidity))

	// The failed swap must not leave a candidate row behind for the
	// unattended loop to pick up.
	candidates, err := h.store.GetBuyCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)

	pos, err := h.store.FindPosition(context.Background(), "0xaaa", 42161)
	require.NoError(t, err)
	assert.Nil(t, pos)

	result := svc.RunCycle(context.Background())
	require.True(t, result.Success)
	assert.Zero(t, result.BoughtTokens)
}

func TestManualSell(t *testing.T) {
	h := &harness{
		store:    newMemStore(),
		scorer:   &mockScorer{},
		eval:     &mockEvaluator{},
		executor: &mockExecutor{sellPrice: 0.0005},
		market:   &mockMarket{price: 0.0005},
	}
	h.store.put(openRow("0xaaa", 0.0004))
	svc := newTestService(t, h, false)

	receipt, err := svc.ManualSell(context.Background(), 42161, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, "0xsell", receipt.TradeID)

	pos := h.store.positions[key("0xaaa", 42161)]
	assert.True(t, pos.Finalized)
	require.NotNil(t, pos.ProfitLossPercent)
	assert.Equal(t, 25.0, *pos.ProfitLossPercent)

	// Selling again must fail, the position is closed.
	_, err = svc.ManualSell(context.Background(), 42161, "0xaaa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}
