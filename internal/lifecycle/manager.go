// Package lifecycle tracks simulated multi-leg trades from signal to closure.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// Config holds the static trade parameters.
type Config struct {
	Legs         []domain.StrategyLeg
	CooldownBars int           // 0 disables the per-instrument cooldown
	BarDuration  time.Duration // e.g., 5m
}

// Validate checks the leg table and cooldown settings.
func (c Config) Validate() error {
	if len(c.Legs) == 0 {
		return fmt.Errorf("at least one strategy leg is required")
	}
	seen := make(map[string]struct{}, len(c.Legs))
	for _, l := range c.Legs {
		if l.Name == "" {
			return fmt.Errorf("strategy leg name must not be empty")
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("duplicate strategy leg %q", l.Name)
		}
		seen[l.Name] = struct{}{}
		if l.TakeProfitPct <= 0 || l.StopLossPct == 0 {
			return fmt.Errorf("strategy leg %q needs a positive take profit and a non-zero stop loss", l.Name)
		}
		if l.TakeProfitPct >= 1 || l.StopLossPct <= -1 || l.StopLossPct >= 1 {
			return fmt.Errorf("strategy leg %q percentages must be fractions below 1", l.Name)
		}
	}
	if c.CooldownBars < 0 {
		return fmt.Errorf("cooldown bars must not be negative")
	}
	if c.CooldownBars > 0 && c.BarDuration <= 0 {
		return fmt.Errorf("bar duration is required when cooldown is enabled")
	}
	return nil
}

// Cooldown is the minimum time between two trades on the same instrument.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownBars) * c.BarDuration
}

// Listener receives copies of trades as they open and as legs close.
// It is called with the manager lock held and must not call back into the manager.
type Listener interface {
	TradeOpened(ctx context.Context, trade *domain.Trade, ev *domain.SignalEvent)
	LegClosed(ctx context.Context, trade *domain.Trade, leg domain.Leg)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the wall clock used for cooldowns and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithListener registers a Listener for trade events.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listener = l }
}

// Manager owns the active trade registry and the per-instrument last signal times.
type Manager struct {
	cfg      Config
	store    ports.TradeStore
	logger   ports.Logger
	listener Listener
	now      func() time.Time

	mu         sync.Mutex // Protects the fields below
	active     map[string]*domain.Trade
	lastSignal map[string]time.Time
}

// NewManager creates a Manager with an empty registry. Call Load to recover persisted state.
func NewManager(cfg Config, store ports.TradeStore, logger ports.Logger, opts ...Option) (*Manager, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for lifecycle manager")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	m := &Manager{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		active:     make(map[string]*domain.Trade),
		lastSignal: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Load replaces the in-memory registry with the persisted one.
// Trades with no open leg are dropped, and the cooldown clock of each
// instrument resumes from its most recent active trade.
func (m *Manager) Load(ctx context.Context) error {
	trades, err := m.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load active trades failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]*domain.Trade, len(trades))
	for id, t := range trades {
		if t == nil || !t.IsActive() {
			continue
		}
		if t.ID == "" {
			t.ID = id
		}
		m.active[t.ID] = t
		if t.OpenTime.After(m.lastSignal[t.Symbol]) {
			m.lastSignal[t.Symbol] = t.OpenTime
		}
	}
	m.logger.Info(ctx, "Active trades loaded", map[string]interface{}{"count": len(m.active)})
	return nil
}

// Create opens a trade for the signal unless the instrument is within its cooldown.
// It returns ports.ErrCooldown when suppressed. A failure to allocate an id aborts
// the creation; a failure to persist the registry is logged only.
func (m *Manager) Create(ctx context.Context, ev *domain.SignalEvent) (*domain.Trade, error) {
	if ev == nil || len(ev.Labels) == 0 {
		return nil, fmt.Errorf("%w: signal without labels", ports.ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.lastSignal[ev.Symbol]; ok && m.cfg.CooldownBars > 0 && now.Sub(last) < m.cfg.Cooldown() {
		m.logger.Debug(ctx, "Signal suppressed by cooldown", map[string]interface{}{
			"symbol":    ev.Symbol,
			"lastTrade": last,
			"cooldown":  m.cfg.Cooldown().String(),
		})
		return nil, ports.ErrCooldown
	}

	seq, err := m.store.NextTradeID(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to allocate trade id", map[string]interface{}{"symbol": ev.Symbol})
		return nil, fmt.Errorf("allocate trade id failed: %w", err)
	}

	side := ev.Side()
	entry := ev.Bar.Close
	trade := &domain.Trade{
		ID:         domain.FormatTradeID(seq),
		Symbol:     ev.Symbol,
		Side:       side,
		EntryPrice: entry,
		OpenTime:   now,
		Labels:     append([]domain.SignalLabel(nil), ev.Labels...),
		VolumeText: ev.VolumeText,
		Legs:       make([]domain.Leg, 0, len(m.cfg.Legs)),
	}
	for _, s := range m.cfg.Legs {
		trade.Legs = append(trade.Legs, domain.NewLeg(s, side, entry))
	}

	m.active[trade.ID] = trade
	m.lastSignal[ev.Symbol] = now
	m.persistLocked(ctx)

	m.logger.Info(ctx, "Trade opened", map[string]interface{}{
		"id":     trade.ID,
		"symbol": trade.Symbol,
		"side":   string(trade.Side),
		"entry":  trade.EntryPrice,
		"labels": domain.JoinLabels(trade.Labels),
	})
	if m.listener != nil {
		m.listener.TradeOpened(ctx, trade.Clone(), ev)
	}
	return trade.Clone(), nil
}

// OnBarClosed evaluates every open leg of the bar's instrument against its range.
// Stop loss is checked before take profit; a leg closes at its level, not the
// touch price. It returns the legs closed by this bar.
func (m *Manager) OnBarClosed(ctx context.Context, bar *domain.Kline) []domain.Leg {
	if bar == nil || bar.Symbol == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var closed []domain.Leg
	for _, id := range m.sortedIDsLocked() {
		trade := m.active[id]
		if trade.Symbol != bar.Symbol {
			continue
		}
		for i := range trade.Legs {
			leg := &trade.Legs[i]
			if !leg.IsOpen() {
				continue
			}
			status, level, hit := touch(trade.Side, leg, bar.High, bar.Low)
			if !hit {
				continue
			}
			leg.Status = status
			leg.ClosePrice = level
			leg.PnLPct = domain.PnLPercent(trade.Side, trade.EntryPrice, level)
			leg.ClosedAt = m.now()
			closed = append(closed, *leg)

			m.logger.Info(ctx, "Trade leg closed", map[string]interface{}{
				"id":     trade.ID,
				"symbol": trade.Symbol,
				"leg":    leg.Name,
				"status": string(leg.Status),
				"price":  leg.ClosePrice,
				"pnl":    fmt.Sprintf("%.2f", leg.PnLPct),
			})
			if m.listener != nil {
				m.listener.LegClosed(ctx, trade.Clone(), *leg)
			}
		}
		if !trade.IsActive() {
			delete(m.active, id)
			m.logger.Info(ctx, "Trade fully closed", map[string]interface{}{"id": trade.ID, "symbol": trade.Symbol})
		}
	}

	if len(closed) > 0 {
		m.persistLocked(ctx)
	}
	return closed
}

// touch reports whether the bar range reaches a leg level, checking stop loss first.
func touch(side domain.OrderSide, leg *domain.Leg, high, low float64) (domain.LegStatus, float64, bool) {
	if side == domain.Buy {
		if low <= leg.StopLossPrice {
			return domain.LegStopLoss, leg.StopLossPrice, true
		}
		if high >= leg.TakeProfitPrice {
			return domain.LegTakeProfit, leg.TakeProfitPrice, true
		}
		return "", 0, false
	}
	if high >= leg.StopLossPrice {
		return domain.LegStopLoss, leg.StopLossPrice, true
	}
	if low <= leg.TakeProfitPrice {
		return domain.LegTakeProfit, leg.TakeProfitPrice, true
	}
	return "", 0, false
}

// Active returns copies of all active trades ordered by id.
func (m *Manager) Active() []*domain.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Trade, 0, len(m.active))
	for _, id := range m.sortedIDsLocked() {
		out = append(out, m.active[id].Clone())
	}
	return out
}

// ActiveCount returns the number of active trades.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// HasActive reports whether the instrument has at least one active trade.
func (m *Manager) HasActive(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.active {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

func (m *Manager) sortedIDsLocked() []string {
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persistLocked writes a snapshot of the registry. Failures leave the in-memory
// registry authoritative; the next mutation writes it again.
func (m *Manager) persistLocked(ctx context.Context) {
	snapshot := make(map[string]*domain.Trade, len(m.active))
	for id, t := range m.active {
		snapshot[id] = t.Clone()
	}
	if err := m.store.SaveActive(ctx, snapshot); err != nil {
		m.logger.Error(ctx, err, "Failed to persist active trades", map[string]interface{}{"count": len(snapshot)})
	}
}
