package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// UniverseConfig holds the liquidity filter rules.
type UniverseConfig struct {
	QuoteSuffix    string   // e.g., "USDT"
	Blacklist      []string // Always excluded, e.g., "BTCUSDT"
	MinQuoteVolume float64  // 24h quote volume floor
}

// FilterTickers applies the universe rules to a 24h ticker snapshot and returns
// the eligible symbols sorted by name.
func FilterTickers(tickers []domain.Ticker24h, cfg UniverseConfig) []string {
	blocked := make(map[string]struct{}, len(cfg.Blacklist))
	for _, s := range cfg.Blacklist {
		blocked[strings.ToUpper(s)] = struct{}{}
	}
	var out []string
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, cfg.QuoteSuffix) {
			continue
		}
		if _, ok := blocked[t.Symbol]; ok {
			continue
		}
		if t.QuoteVolume < cfg.MinQuoteVolume {
			continue
		}
		out = append(out, t.Symbol)
	}
	sort.Strings(out)
	return out
}

// Universe is the current set of instruments the bot evaluates.
type Universe struct {
	cfg     UniverseConfig
	market  ports.MarketData
	logger  ports.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	symbols     map[string]struct{}
	refreshedAt time.Time
}

// NewUniverse creates an empty universe. Call Refresh to populate it.
func NewUniverse(cfg UniverseConfig, market ports.MarketData, logger ports.Logger, m *metrics.Metrics) (*Universe, error) {
	if market == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for universe")
	}
	if cfg.QuoteSuffix == "" {
		return nil, fmt.Errorf("%w: quote suffix is required", ports.ErrConfigurationError)
	}
	return &Universe{
		cfg:     cfg,
		market:  market,
		logger:  logger,
		metrics: m,
		symbols: make(map[string]struct{}),
	}, nil
}

// Refresh recomputes the universe from the 24h tickers. On failure the
// previous set is kept and the error is returned for logging.
func (u *Universe) Refresh(ctx context.Context) error {
	tickers, err := u.market.GetTickers24h(ctx)
	if err != nil {
		u.logger.Error(ctx, err, "Universe refresh failed, keeping previous symbols", map[string]interface{}{"symbols": u.Len()})
		return fmt.Errorf("universe refresh failed: %w", err)
	}

	eligible := FilterTickers(tickers, u.cfg)
	next := make(map[string]struct{}, len(eligible))
	for _, s := range eligible {
		next[s] = struct{}{}
	}

	u.mu.Lock()
	prev := len(u.symbols)
	u.symbols = next
	u.refreshedAt = time.Now().UTC()
	u.mu.Unlock()

	u.metrics.SetUniverseSize(len(next))
	u.logger.Info(ctx, "Universe refreshed", map[string]interface{}{
		"symbols":  len(next),
		"previous": prev,
		"tickers":  len(tickers),
	})
	return nil
}

// Run refreshes the universe every interval until ctx is done.
func (u *Universe) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = u.Refresh(ctx)
		}
	}
}

// Contains reports whether symbol is currently eligible.
func (u *Universe) Contains(symbol string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.symbols[symbol]
	return ok
}

// Symbols returns the eligible symbols sorted by name.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	out := make([]string, 0, len(u.symbols))
	for s := range u.symbols {
		out = append(out, s)
	}
	u.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of eligible symbols.
func (u *Universe) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.symbols)
}

// RefreshedAt returns the time of the last successful refresh.
func (u *Universe) RefreshedAt() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.refreshedAt
}
