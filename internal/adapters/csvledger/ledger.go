package csvledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// LedgerHeader lists the ledger columns in file order.
var LedgerHeader = []string{
	"date", "time", "symbol", "trade_id", "event", "signals", "vol_text",
	"side", "entry", "strategy", "status", "close_price", "pnl_pct", "run_id",
}

// Ledger appends trade rows to a CSV file. The header is written when the file is new.
type Ledger struct {
	path   string
	logger ports.Logger
	mu     sync.Mutex
}

// NewLedger prepares the ledger file at path.
func NewLedger(path string, logger ports.Logger) (*Ledger, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for CSV ledger")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: ledger path is empty", ports.ErrConfigurationError)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrPersistence, err)
	}
	return &Ledger{path: path, logger: logger}, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Record appends one row.
func (l *Ledger) Record(ctx context.Context, rec domain.LedgerRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open ledger: %w", ports.ErrPersistence, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat ledger: %w", ports.ErrPersistence, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(LedgerHeader); err != nil {
			return fmt.Errorf("%w: write ledger header: %w", ports.ErrPersistence, err)
		}
	}
	if err := writer.Write(ledgerRow(rec)); err != nil {
		return fmt.Errorf("%w: write ledger row: %w", ports.ErrPersistence, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("%w: flush ledger: %w", ports.ErrPersistence, err)
	}
	l.logger.Debug(ctx, "CSV ledger row appended", map[string]interface{}{"tradeID": rec.TradeID, "event": string(rec.Event)})
	return nil
}

func ledgerRow(rec domain.LedgerRecord) []string {
	t := rec.Time.UTC()
	closePrice, pnl := "", ""
	if rec.Event == domain.LedgerClose {
		closePrice = formatFloat(rec.ClosePrice)
		pnl = strconv.FormatFloat(rec.PnLPct, 'f', 2, 64)
	}
	return []string{
		t.Format("2006-01-02"),
		t.Format("15:04:05"),
		rec.Symbol,
		rec.TradeID,
		string(rec.Event),
		rec.Labels,
		rec.VolumeText,
		string(rec.Side),
		formatFloat(rec.EntryPrice),
		rec.Leg,
		string(rec.Status),
		closePrice,
		pnl,
		rec.RunID,
	}
}
