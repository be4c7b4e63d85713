// Package binancefeed streams closed klines from the Binance futures combined
// websocket endpoint, spreading subscriptions over several connections.
package binancefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/ports"
)

const (
	DefaultBaseURL              = "wss://fstream.binance.com"
	DefaultStreamsPerConnection = 30
	DefaultBackoff              = 30 * time.Second

	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
	// Binance pings every three minutes; a silent connection past this is dead.
	readTimeout = 5 * time.Minute
	readLimit   = 1 << 20
)

// Config configures the feed.
type Config struct {
	BaseURL              string
	StreamsPerConnection int
	Backoff              time.Duration
	Dialer               *websocket.Dialer
	Logger               ports.Logger
	Metrics              *metrics.Metrics
	// OnStateChange, when set, observes every state transition of every connection.
	OnStateChange func(conn int, state State)
}

// Feed implements ports.KlineStream.
type Feed struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for binance feed")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.StreamsPerConnection <= 0 {
		cfg.StreamsPerConnection = DefaultStreamsPerConnection
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}
	return &Feed{cfg: cfg}, nil
}

// StreamName returns the kline channel name of a symbol.
func StreamName(symbol, interval string) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
}

// Batches groups the kline channels of symbols into batches of at most size.
func Batches(symbols []string, interval string, size int) [][]string {
	if size <= 0 {
		size = DefaultStreamsPerConnection
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := min(start+size, len(symbols))
		batch := make([]string, 0, end-start)
		for _, s := range symbols[start:end] {
			batch = append(batch, StreamName(s, interval))
		}
		out = append(out, batch)
	}
	return out
}

// Run opens one connection per batch and blocks until ctx is done.
func (f *Feed) Run(ctx context.Context, symbols []string, interval string, handler ports.KlineHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil kline handler", ports.ErrInvalidRequest)
	}
	batches := Batches(symbols, interval, f.cfg.StreamsPerConnection)
	if len(batches) == 0 {
		f.cfg.Logger.Warn(ctx, "Feed started without symbols, idling until restart")
		<-ctx.Done()
		return nil
	}

	f.cfg.Logger.Info(ctx, "Starting kline feed", map[string]interface{}{
		"symbols":     len(symbols),
		"connections": len(batches),
		"interval":    interval,
	})

	var wg sync.WaitGroup
	for i, streams := range batches {
		c := newConn(i, f.cfg, streams, handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
	}
	wg.Wait()

	f.cfg.Logger.Info(ctx, "Kline feed stopped")
	return nil
}
