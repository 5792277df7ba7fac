// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"soar-trader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- News events written by the ingestion pipeline
	CREATE TABLE IF NOT EXISTS news_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		title TEXT,
		bullish_score REAL NOT NULL DEFAULT 0,
		impact_score REAL NOT NULL DEFAULT 0,
		observed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_news_observed ON news_events(observed_at);

	-- Orders deferred because the market was closed
	CREATE TABLE IF NOT EXISTS pending_orders (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		account_key TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price_mode TEXT NOT NULL,
		limit_price REAL,
		take_profit REAL,
		stop_loss REAL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		reason TEXT,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_pending_account_status ON pending_orders(account_key, status);

	-- Open positions tracked for exit management
	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT NOT NULL,
		account_key TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		buy_price REAL NOT NULL,
		current_price REAL,
		take_profit_enabled INTEGER NOT NULL DEFAULT 0,
		take_profit_percent REAL,
		stop_loss_enabled INTEGER NOT NULL DEFAULT 0,
		stop_loss_percent REAL,
		opened_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (symbol, account_key)
	);

	-- Append-only trade audit log
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		amount REAL NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		executed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveNewsEvent inserts a news event. The engine itself never writes news;
// this exists for the ingestion side and for tests.
func (s *SQLiteStore) SaveNewsEvent(ctx context.Context, event *models.NewsEvent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO news_events (symbol, title, bullish_score, impact_score, observed_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.Symbol, event.Title, event.BullishScore, event.ImpactScore, event.ObservedAt)
	if err != nil {
		return fmt.Errorf("inserting news event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetRecentNews returns events observed at or after since whose bullish OR
// impact score clears its threshold.
func (s *SQLiteStore) GetRecentNews(ctx context.Context, since time.Time, bullishThreshold, impactThreshold float64) ([]models.NewsEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, title, bullish_score, impact_score, observed_at
		FROM news_events
		WHERE observed_at >= ?
		  AND (bullish_score >= ? OR impact_score >= ?)
		ORDER BY observed_at DESC`,
		since, bullishThreshold, impactThreshold)
	if err != nil {
		return nil, fmt.Errorf("querying recent news: %w", err)
	}
	defer rows.Close()

	var events []models.NewsEvent
	for rows.Next() {
		var e models.NewsEvent
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Title, &e.BullishScore, &e.ImpactScore, &e.ObservedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertPendingOrder persists a deferred order.
func (s *SQLiteStore) InsertPendingOrder(ctx context.Context, order *models.PendingOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_orders
		(id, symbol, account_key, side, quantity, price_mode, limit_price, take_profit, stop_loss, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Symbol, order.AccountKey, order.Side, order.Quantity,
		order.PriceMode, order.LimitPrice, order.TakeProfit, order.StopLoss,
		order.Status, order.Reason, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting pending order: %w", err)
	}
	return nil
}

// GetPendingOrders returns all orders still in PENDING for an account,
// oldest first so flush preserves submission order.
func (s *SQLiteStore) GetPendingOrders(ctx context.Context, accountKey string) ([]models.PendingOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, account_key, side, quantity, price_mode, limit_price, take_profit, stop_loss, status, reason, created_at, resolved_at
		FROM pending_orders
		WHERE account_key = ? AND status = ?
		ORDER BY created_at ASC`,
		accountKey, models.PendingOrderPending)
	if err != nil {
		return nil, fmt.Errorf("querying pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.PendingOrder
	for rows.Next() {
		o, err := scanPendingOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// GetPendingOrder returns one order by id.
func (s *SQLiteStore) GetPendingOrder(ctx context.Context, id string) (*models.PendingOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, account_key, side, quantity, price_mode, limit_price, take_profit, stop_loss, status, reason, created_at, resolved_at
		FROM pending_orders WHERE id = ?`, id)
	o, err := scanPendingOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pending order not found: %s", id)
	}
	return o, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingOrder(row rowScanner) (*models.PendingOrder, error) {
	var o models.PendingOrder
	var resolvedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Symbol, &o.AccountKey, &o.Side, &o.Quantity,
		&o.PriceMode, &o.LimitPrice, &o.TakeProfit, &o.StopLoss,
		&o.Status, &o.Reason, &o.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		o.ResolvedAt = &resolvedAt.Time
	}
	return &o, nil
}

// UpdatePendingOrderStatus moves a pending order to a terminal state.
// The WHERE clause guards the one-way transition: an order already out of
// PENDING is never touched and ErrOrderNotPending is returned.
func (s *SQLiteStore) UpdatePendingOrderStatus(ctx context.Context, id string, status models.PendingOrderStatus, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_orders
		SET status = ?, reason = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		status, reason, time.Now(), id, models.PendingOrderPending)
	if err != nil {
		return fmt.Errorf("updating pending order %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// UpsertPosition creates a position or folds a new buy into an existing one
// with a volume-weighted average buy price. At most one position exists per
// (symbol, account).
func (s *SQLiteStore) UpsertPosition(ctx context.Context, pos *models.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingQty int
	var existingPrice float64
	err = tx.QueryRowContext(ctx, `
		SELECT quantity, buy_price FROM positions WHERE symbol = ? AND account_key = ?`,
		pos.Symbol, pos.AccountKey).Scan(&existingQty, &existingPrice)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO positions
			(symbol, account_key, quantity, buy_price, current_price, take_profit_enabled, take_profit_percent, stop_loss_enabled, stop_loss_percent, opened_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pos.Symbol, pos.AccountKey, pos.Quantity, pos.BuyPrice, pos.CurrentPrice,
			pos.TakeProfitEnabled, pos.TakeProfitPercent, pos.StopLossEnabled, pos.StopLossPercent,
			time.Now(), time.Now())
		if err != nil {
			return fmt.Errorf("inserting position: %w", err)
		}
	case err != nil:
		return fmt.Errorf("querying position: %w", err)
	default:
		newQty := existingQty + pos.Quantity
		vwap := (float64(existingQty)*existingPrice + float64(pos.Quantity)*pos.BuyPrice) / float64(newQty)
		_, err = tx.ExecContext(ctx, `
			UPDATE positions
			SET quantity = ?, buy_price = ?, current_price = ?, updated_at = ?
			WHERE symbol = ? AND account_key = ?`,
			newQty, vwap, pos.CurrentPrice, time.Now(), pos.Symbol, pos.AccountKey)
		if err != nil {
			return fmt.Errorf("updating position: %w", err)
		}
	}

	return tx.Commit()
}

// GetPosition returns one position, or nil if none exists.
func (s *SQLiteStore) GetPosition(ctx context.Context, symbol, accountKey string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, account_key, quantity, buy_price, current_price, take_profit_enabled, take_profit_percent, stop_loss_enabled, stop_loss_percent, opened_at, updated_at
		FROM positions WHERE symbol = ? AND account_key = ?`,
		symbol, accountKey)

	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying position: %w", err)
	}
	return p, nil
}

// GetMonitoredPositions returns positions with take-profit or stop-loss
// enabled for an account.
func (s *SQLiteStore) GetMonitoredPositions(ctx context.Context, accountKey string) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, account_key, quantity, buy_price, current_price, take_profit_enabled, take_profit_percent, stop_loss_enabled, stop_loss_percent, opened_at, updated_at
		FROM positions
		WHERE account_key = ? AND (take_profit_enabled = 1 OR stop_loss_enabled = 1)`,
		accountKey)
	if err != nil {
		return nil, fmt.Errorf("querying monitored positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.Symbol, &p.AccountKey, &p.Quantity, &p.BuyPrice, &p.CurrentPrice,
		&p.TakeProfitEnabled, &p.TakeProfitPercent, &p.StopLossEnabled, &p.StopLossPercent,
		&p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReducePosition subtracts quantity after a partial sell, deleting the row
// when it reaches zero.
func (s *SQLiteStore) ReducePosition(ctx context.Context, symbol, accountKey string, quantity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM positions WHERE symbol = ? AND account_key = ?`,
		symbol, accountKey).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying position for reduce: %w", err)
	}

	remaining := existing - quantity
	if remaining <= 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ? AND account_key = ?`, symbol, accountKey)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE positions SET quantity = ?, updated_at = ? WHERE symbol = ? AND account_key = ?`,
			remaining, time.Now(), symbol, accountKey)
	}
	if err != nil {
		return fmt.Errorf("reducing position: %w", err)
	}

	return tx.Commit()
}

// DeletePosition removes a position record.
func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol, accountKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ? AND account_key = ?`, symbol, accountKey)
	if err != nil {
		return fmt.Errorf("deleting position: %w", err)
	}
	return nil
}

// InsertTrade appends one trade record to the audit log.
func (s *SQLiteStore) InsertTrade(ctx context.Context, trade *models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, symbol, side, price, quantity, amount, status, reason, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Symbol, trade.Side, trade.Price, trade.Quantity,
		trade.Amount, trade.Status, trade.Reason, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// GetRecentTrades returns the most recent trade records.
func (s *SQLiteStore) GetRecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, price, quantity, amount, status, reason, executed_at
		FROM trades ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Side, &t.Price, &t.Quantity, &t.Amount, &t.Status, &t.Reason, &t.ExecutedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
