package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3" // SQLite driver

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// Repository implements ports.Ledger using SQLite and offers read queries over it.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_ledger.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, err)
	}

	// Ledger writes come from a small pool of background tasks; one connection serializes them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TIMESTAMP NOT NULL,
		event TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		labels TEXT NOT NULL,
		vol_text TEXT NOT NULL,
		entry_price REAL NOT NULL,
		leg TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		close_price REAL DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		run_id TEXT NOT NULL DEFAULT ''
	);
	-- One creation row per trade and one closure row per leg
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trade_ledger_event ON trade_ledger (trade_id, event, leg);
	CREATE INDEX IF NOT EXISTS idx_trade_ledger_symbol_time ON trade_ledger (symbol, recorded_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Record appends a ledger row. A repeated row for the same trade, event and leg
// yields ports.ErrDuplicateEntry.
func (r *Repository) Record(ctx context.Context, rec domain.LedgerRecord) error {
	const query = `
	INSERT INTO trade_ledger (recorded_at, event, trade_id, symbol, side, labels, vol_text,
	                          entry_price, leg, status, close_price, pnl, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var closePrice, pnl sql.NullFloat64
	if rec.Event == domain.LedgerClose {
		closePrice = sql.NullFloat64{Float64: rec.ClosePrice, Valid: true}
		pnl = sql.NullFloat64{Float64: rec.PnLPct, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.Time.UTC(), rec.Event, rec.TradeID, rec.Symbol, rec.Side, rec.Labels, rec.VolumeText,
		rec.EntryPrice, rec.Leg, rec.Status, closePrice, pnl, rec.RunID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("ledger row for trade %s %s %s: %w", rec.TradeID, rec.Event, rec.Leg, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("%w: insert ledger row for trade %s: %w", ports.ErrQueryFailed, rec.TradeID, err)
	}
	r.logger.Debug(ctx, "Ledger row recorded", map[string]interface{}{
		"tradeID": rec.TradeID,
		"event":   string(rec.Event),
		"leg":     rec.Leg,
	})
	return nil
}

const selectColumns = `
	SELECT recorded_at, event, trade_id, symbol, side, labels, vol_text,
	       entry_price, leg, status, COALESCE(close_price, 0), COALESCE(pnl, 0), run_id
	FROM trade_ledger`

// FindByTrade returns every row of a trade in insertion order.
func (r *Repository) FindByTrade(ctx context.Context, tradeID string) ([]domain.LedgerRecord, error) {
	return r.query(ctx, selectColumns+` WHERE trade_id = ? ORDER BY id`, tradeID)
}

// FindClosedSince returns leg closure rows recorded at or after since.
func (r *Repository) FindClosedSince(ctx context.Context, since time.Time) ([]domain.LedgerRecord, error) {
	return r.query(ctx, selectColumns+` WHERE event = ? AND recorded_at >= ? ORDER BY id`, domain.LedgerClose, since.UTC())
}

// CountOpenedBySymbol counts trade creations per instrument.
func (r *Repository) CountOpenedBySymbol(ctx context.Context) (map[string]int, error) {
	const query = `SELECT symbol, COUNT(*) FROM trade_ledger WHERE event = ? GROUP BY symbol`
	rows, err := r.db.QueryContext(ctx, query, domain.LedgerOpen)
	if err != nil {
		return nil, fmt.Errorf("%w: count opened trades: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var symbol string
		var n int
		if err := rows.Scan(&symbol, &n); err != nil {
			return nil, fmt.Errorf("failed to scan trade count: %w", err)
		}
		counts[symbol] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade count rows: %w", err)
	}
	return counts, nil
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.LedgerRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]domain.LedgerRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return records, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a domain.LedgerRecord.
func scanRecord(s scanner) (domain.LedgerRecord, error) {
	var rec domain.LedgerRecord
	var event, side, status string
	err := s.Scan(
		&rec.Time, &event, &rec.TradeID, &rec.Symbol, &side, &rec.Labels, &rec.VolumeText,
		&rec.EntryPrice, &rec.Leg, &status, &rec.ClosePrice, &rec.PnLPct, &rec.RunID)
	if err != nil {
		return rec, err
	}
	rec.Event = domain.LedgerEvent(event)
	rec.Side = domain.OrderSide(side)
	rec.Status = domain.LegStatus(status)
	return rec, nil
}
