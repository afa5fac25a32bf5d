package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mindshareTrader/internal/domain"
	"mindshareTrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements the ports.PositionStore and ports.SnapshotHistory
// interfaces using SQLite. The at-most-one-open-position invariant is
// enforced by a partial unique index on (token_address, chain_id) scoped to
// finalized = 0, so concurrent upserts cannot create duplicate open rows even
// across process instances.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore creates a new SQLite store instance.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/mindshare_trader.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified", map[string]interface{}{"path": dbPath})

	return store, nil
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_address TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		chain_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		mindshare REAL NOT NULL DEFAULT 0,
		liquidity REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		holders_count INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		price_score REAL NOT NULL DEFAULT 0,
		volume_score REAL NOT NULL DEFAULT 0,
		mindshare_score REAL NOT NULL DEFAULT 0,
		liquidity_score REAL NOT NULL DEFAULT 0,
		holders_score REAL NOT NULL DEFAULT 0,
		social_score REAL NOT NULL DEFAULT 0,
		composite_score REAL NOT NULL DEFAULT 0,
		buy_signal INTEGER NOT NULL DEFAULT 0,
		sell_signal INTEGER NOT NULL DEFAULT 0,
		entry_price REAL DEFAULT NULL,
		exit_price REAL DEFAULT NULL,
		profit_loss_percent REAL DEFAULT NULL,
		stop_loss_level REAL DEFAULT NULL,
		finalized INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL
	);

	-- One open position per (token, chain): enforced here, not in app logic.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_unique
		ON positions (token_address, chain_id)
		WHERE finalized = 0;

	CREATE TABLE IF NOT EXISTS snapshot_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_address TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		chain_name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		mindshare REAL NOT NULL DEFAULT 0,
		liquidity REAL NOT NULL DEFAULT 0,
		volume_24h REAL NOT NULL DEFAULT 0,
		holders_count INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		price_score REAL NOT NULL DEFAULT 0,
		volume_score REAL NOT NULL DEFAULT 0,
		mindshare_score REAL NOT NULL DEFAULT 0,
		liquidity_score REAL NOT NULL DEFAULT 0,
		holders_score REAL NOT NULL DEFAULT 0,
		social_score REAL NOT NULL DEFAULT 0,
		composite_score REAL NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_history_token_ts
		ON snapshot_history (token_address, chain_id, timestamp DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// --- PositionStore Implementation ---

// UpsertCandidate inserts a fresh candidate row or merges into the existing
// non-finalized row for the (token, chain) pair. Trade economics set by the
// execution engine (entry_price, exit_price, profit_loss_percent,
// stop_loss_level) and a raised sell_signal are never overwritten, and the
// buy flag is not re-raised on a row that already has an entry price.
func (s *Store) UpsertCandidate(ctx context.Context, snap *domain.TokenSnapshot) error {
	const query = `
	INSERT INTO positions (
		token_address, chain_id, chain_name, symbol, mindshare, liquidity,
		volume_24h, holders_count, price, price_score, volume_score,
		mindshare_score, liquidity_score, holders_score, social_score,
		composite_score, buy_signal, sell_signal, finalized, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 0, ?)
	ON CONFLICT (token_address, chain_id) WHERE finalized = 0
	DO UPDATE SET
		chain_name = excluded.chain_name,
		symbol = excluded.symbol,
		mindshare = excluded.mindshare,
		liquidity = excluded.liquidity,
		volume_24h = excluded.volume_24h,
		holders_count = excluded.holders_count,
		price = excluded.price,
		price_score = excluded.price_score,
		volume_score = excluded.volume_score,
		mindshare_score = excluded.mindshare_score,
		liquidity_score = excluded.liquidity_score,
		holders_score = excluded.holders_score,
		social_score = excluded.social_score,
		composite_score = excluded.composite_score,
		buy_signal = CASE WHEN positions.entry_price IS NULL THEN 1 ELSE positions.buy_signal END,
		timestamp = excluded.timestamp`

	_, err := s.db.ExecContext(ctx, query,
		snap.TokenAddress, snap.ChainID, snap.ChainName, snap.Symbol,
		snap.Mindshare, snap.Liquidity, snap.Volume24h, snap.HoldersCount, snap.Price,
		snap.PriceScore, snap.VolumeScore, snap.MindshareScore, snap.LiquidityScore,
		snap.HoldersScore, snap.SocialScore, snap.CompositeScore, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate %s on chain %d: %w", snap.TokenAddress, snap.ChainID, err)
	}
	s.logger.Debug(ctx, "Candidate upserted", map[string]interface{}{"token": snap.TokenAddress, "chainID": snap.ChainID, "score": snap.CompositeScore})
	return nil
}

// MarkBought records the realized entry price and clears the buy signal.
func (s *Store) MarkBought(ctx context.Context, tokenAddress string, chainID int64, entryPrice float64) error {
	const query = `
	UPDATE positions
	SET entry_price = ?, buy_signal = 0, timestamp = ?
	WHERE token_address = ? AND chain_id = ? AND finalized = 0 AND entry_price IS NULL`

	result, err := s.db.ExecContext(ctx, query, entryPrice, time.Now().UTC(), tokenAddress, chainID)
	if err != nil {
		return fmt.Errorf("failed to mark position bought for %s on chain %d: %w", tokenAddress, chainID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for mark bought %s: %w", tokenAddress, err)
	}
	if rows == 0 {
		return fmt.Errorf("no candidate row for %s on chain %d: %w", tokenAddress, chainID, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "Position marked bought", map[string]interface{}{"token": tokenAddress, "chainID": chainID, "entryPrice": entryPrice})
	return nil
}

// MarkSellSignal flags an open position for exit. Setting the flag twice is
// harmless; the row keeps sell_signal = 1.
func (s *Store) MarkSellSignal(ctx context.Context, tokenAddress string, chainID int64) error {
	const query = `
	UPDATE positions
	SET sell_signal = 1
	WHERE token_address = ? AND chain_id = ? AND finalized = 0 AND entry_price IS NOT NULL`

	result, err := s.db.ExecContext(ctx, query, tokenAddress, chainID)
	if err != nil {
		return fmt.Errorf("failed to mark sell signal for %s on chain %d: %w", tokenAddress, chainID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for mark sell %s: %w", tokenAddress, err)
	}
	if rows == 0 {
		return fmt.Errorf("no open position for %s on chain %d: %w", tokenAddress, chainID, ports.ErrNotFound)
	}
	return nil
}

// UpdateStopLoss raises the trailing stop level. The WHERE clause refuses to
// lower an existing level, so a stale evaluator can never loosen the stop.
func (s *Store) UpdateStopLoss(ctx context.Context, tokenAddress string, chainID int64, level float64) error {
	const query = `
	UPDATE positions
	SET stop_loss_level = ?
	WHERE token_address = ? AND chain_id = ? AND finalized = 0
	  AND (stop_loss_level IS NULL OR stop_loss_level < ?)`

	_, err := s.db.ExecContext(ctx, query, level, tokenAddress, chainID, level)
	if err != nil {
		return fmt.Errorf("failed to update stop loss for %s on chain %d: %w", tokenAddress, chainID, err)
	}
	return nil
}

// FinalizeSold records exit economics and marks the row terminal.
func (s *Store) FinalizeSold(ctx context.Context, tokenAddress string, chainID int64, exitPrice, pnlPercent float64) error {
	const query = `
	UPDATE positions
	SET exit_price = ?, profit_loss_percent = ?, finalized = 1, timestamp = ?
	WHERE token_address = ? AND chain_id = ? AND finalized = 0 AND entry_price IS NOT NULL`

	result, err := s.db.ExecContext(ctx, query, exitPrice, pnlPercent, time.Now().UTC(), tokenAddress, chainID)
	if err != nil {
		return fmt.Errorf("failed to finalize position %s on chain %d: %w", tokenAddress, chainID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for finalize %s: %w", tokenAddress, err)
	}
	if rows == 0 {
		return fmt.Errorf("no open position to finalize for %s on chain %d: %w", tokenAddress, chainID, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "Position finalized", map[string]interface{}{"token": tokenAddress, "chainID": chainID, "exitPrice": exitPrice, "pnl": pnlPercent})
	return nil
}

const positionColumns = `
	id, token_address, chain_id, chain_name, symbol, mindshare, liquidity,
	volume_24h, holders_count, price, price_score, volume_score,
	mindshare_score, liquidity_score, holders_score, social_score,
	composite_score, buy_signal, sell_signal, entry_price, exit_price,
	profit_loss_percent, stop_loss_level, finalized, timestamp`

// GetOpenPositions returns non-finalized positions with a confirmed entry.
func (s *Store) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE entry_price IS NOT NULL AND finalized = 0
	ORDER BY timestamp DESC`
	return s.queryPositions(ctx, query)
}

// GetBuyCandidates returns rows flagged for buying without an entry yet.
func (s *Store) GetBuyCandidates(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE buy_signal = 1 AND finalized = 0 AND entry_price IS NULL
	ORDER BY composite_score DESC`
	return s.queryPositions(ctx, query)
}

// GetSellCandidates returns open rows flagged for selling.
func (s *Store) GetSellCandidates(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE sell_signal = 1 AND finalized = 0 AND entry_price IS NOT NULL
	ORDER BY timestamp ASC`
	return s.queryPositions(ctx, query)
}

// FindPosition retrieves the non-finalized row for the pair, if any.
// Returns nil, nil if no such row exists.
func (s *Store) FindPosition(ctx context.Context, tokenAddress string, chainID int64) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE token_address = ? AND chain_id = ? AND finalized = 0`

	row := s.db.QueryRowContext(ctx, query, tokenAddress, chainID)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %s on chain %d: %w", tokenAddress, chainID, err)
	}
	return pos, nil
}

// CountClosed returns the number of finalized positions.
func (s *Store) CountClosed(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE finalized = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count closed positions: %w", err)
	}
	return count, nil
}

// TotalProfit sums the stored P/L percent over all finalized positions.
func (s *Store) TotalProfit(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(profit_loss_percent), 0) FROM positions WHERE finalized = 1`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return total, nil
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...interface{}) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// --- SnapshotHistory Implementation ---

// AppendSnapshot writes one scored snapshot to the append-only history.
func (s *Store) AppendSnapshot(ctx context.Context, snap *domain.TokenSnapshot) error {
	const query = `
	INSERT INTO snapshot_history (
		token_address, chain_id, chain_name, symbol, mindshare, liquidity,
		volume_24h, holders_count, price, price_score, volume_score,
		mindshare_score, liquidity_score, holders_score, social_score,
		composite_score, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		snap.TokenAddress, snap.ChainID, snap.ChainName, snap.Symbol,
		snap.Mindshare, snap.Liquidity, snap.Volume24h, snap.HoldersCount, snap.Price,
		snap.PriceScore, snap.VolumeScore, snap.MindshareScore, snap.LiquidityScore,
		snap.HoldersScore, snap.SocialScore, snap.CompositeScore, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append snapshot for %s on chain %d: %w", snap.TokenAddress, snap.ChainID, err)
	}
	id, err := result.LastInsertId()
	if err == nil {
		snap.ID = id
	}
	return nil
}

// RecentSnapshots returns up to limit snapshots for the pair, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, tokenAddress string, chainID int64, limit int) ([]*domain.TokenSnapshot, error) {
	const query = `
	SELECT id, token_address, chain_id, chain_name, symbol, mindshare, liquidity,
	       volume_24h, holders_count, price, price_score, volume_score,
	       mindshare_score, liquidity_score, holders_score, social_score,
	       composite_score, timestamp
	FROM snapshot_history
	WHERE token_address = ? AND chain_id = ?
	ORDER BY timestamp DESC LIMIT ?`
	return s.querySnapshots(ctx, query, tokenAddress, chainID, limit)
}

// LatestSnapshots returns the most recent snapshots across all tokens.
func (s *Store) LatestSnapshots(ctx context.Context, limit int) ([]*domain.TokenSnapshot, error) {
	const query = `
	SELECT id, token_address, chain_id, chain_name, symbol, mindshare, liquidity,
	       volume_24h, holders_count, price, price_score, volume_score,
	       mindshare_score, liquidity_score, holders_score, social_score,
	       composite_score, timestamp
	FROM snapshot_history
	ORDER BY timestamp DESC LIMIT ?`
	return s.querySnapshots(ctx, query, limit)
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]*domain.TokenSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*domain.TokenSnapshot, 0)
	for rows.Next() {
		snap := &domain.TokenSnapshot{}
		err := rows.Scan(
			&snap.ID, &snap.TokenAddress, &snap.ChainID, &snap.ChainName, &snap.Symbol,
			&snap.Mindshare, &snap.Liquidity, &snap.Volume24h, &snap.HoldersCount, &snap.Price,
			&snap.PriceScore, &snap.VolumeScore, &snap.MindshareScore, &snap.LiquidityScore,
			&snap.HoldersScore, &snap.SocialScore, &snap.CompositeScore, &snap.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return snapshots, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(sc scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var entryPrice, exitPrice, pnl, stopLevel sql.NullFloat64
	var buySignal, sellSignal, finalized int
	err := sc.Scan(
		&p.ID, &p.TokenAddress, &p.ChainID, &p.ChainName, &p.Symbol,
		&p.Mindshare, &p.Liquidity, &p.Volume24h, &p.HoldersCount, &p.Price,
		&p.PriceScore, &p.VolumeScore, &p.MindshareScore, &p.LiquidityScore,
		&p.HoldersScore, &p.SocialScore, &p.CompositeScore,
		&buySignal, &sellSignal, &entryPrice, &exitPrice, &pnl, &stopLevel,
		&finalized, &p.Timestamp)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.BuySignal = buySignal != 0
	p.SellSignal = sellSignal != 0
	p.Finalized = finalized != 0
	if entryPrice.Valid {
		p.EntryPrice = &entryPrice.Float64
	}
	if exitPrice.Valid {
		p.ExitPrice = &exitPrice.Float64
	}
	if pnl.Valid {
		p.ProfitLossPercent = &pnl.Float64
	}
	if stopLevel.Valid {
		p.StopLossLevel = &stopLevel.Float64
	}
	return p, nil
}
