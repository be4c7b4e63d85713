package ports

import (
	"context"

	"volumeSpikeBot/internal/domain"
)

// TradeStore persists the active trade registry and the trade id counter.
type TradeStore interface {
	// NextTradeID durably increments the counter and returns the new value.
	// The value is only returned after it has been persisted.
	NextTradeID(ctx context.Context) (int64, error)
	// LastTradeID returns the last allocated value, 0 if none.
	LastTradeID(ctx context.Context) (int64, error)
	// SaveActive replaces the stored registry with the given trades.
	SaveActive(ctx context.Context, trades map[string]*domain.Trade) error
	// LoadActive returns the stored registry. A missing registry is empty, not an error.
	LoadActive(ctx context.Context) (map[string]*domain.Trade, error)
}

// Ledger is an append-only sink of trade rows.
type Ledger interface {
	Record(ctx context.Context, rec domain.LedgerRecord) error
}

// Notifier delivers plain text alerts.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
