package ports

import (
	"context"

	"volumeSpikeBot/internal/domain"
)

// MarketData defines the REST side of the exchange used by the bot.
// This abstraction allows decoupling the core bot logic from specific exchange implementations.
type MarketData interface {
	// GetKlines retrieves the most recent klines for the given symbol, oldest first.
	// The last element may still be forming.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// GetTickers24h retrieves the 24h statistics for every listed instrument.
	GetTickers24h(ctx context.Context) ([]domain.Ticker24h, error)

	// GetTicker24h retrieves the 24h statistics for a single instrument.
	GetTicker24h(ctx context.Context, symbol string) (*domain.Ticker24h, error)
}

// KlineHandler receives decoded kline events from a stream.
type KlineHandler func(kline *domain.Kline)

// KlineStream opens multiplexed kline subscriptions.
type KlineStream interface {
	// Run subscribes to the kline channel of every symbol and blocks until ctx is done.
	// Symbols are spread across physical connections; each connection reconnects
	// on its own after a failure.
	Run(ctx context.Context, symbols []string, interval string, handler KlineHandler) error
}
