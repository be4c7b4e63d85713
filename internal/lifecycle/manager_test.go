package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockStore struct {
	mu      sync.Mutex
	lastID  int64
	nextErr error
	saveErr error
	saves   int
	saved   map[string]*domain.Trade
	loaded  map[string]*domain.Trade
	loadErr error
}

func (m *mockStore) NextTradeID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return 0, m.nextErr
	}
	m.lastID++
	return m.lastID, nil
}

func (m *mockStore) LastTradeID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID, nil
}

func (m *mockStore) SaveActive(ctx context.Context, trades map[string]*domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = trades
	return nil
}

func (m *mockStore) LoadActive(ctx context.Context) (map[string]*domain.Trade, error) {
	return m.loaded, m.loadErr
}

type recordingListener struct {
	opened []*domain.Trade
	closed []domain.Leg
}

func (r *recordingListener) TradeOpened(ctx context.Context, trade *domain.Trade, ev *domain.SignalEvent) {
	r.opened = append(r.opened, trade)
}

func (r *recordingListener) LegClosed(ctx context.Context, trade *domain.Trade, leg domain.Leg) {
	r.closed = append(r.closed, leg)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testConfig() Config {
	return Config{
		Legs: []domain.StrategyLeg{
			{Name: "3:1", TakeProfitPct: 0.03, StopLossPct: 0.01},
			{Name: "6:2", TakeProfitPct: 0.06, StopLossPct: -0.02},
		},
		CooldownBars: 3,
		BarDuration:  5 * time.Minute,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *mockStore, *recordingListener, *fakeClock) {
	t.Helper()
	store := &mockStore{}
	listener := &recordingListener{}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(cfg, store, &mockLogger{}, WithClock(clock.Now), WithListener(listener))
	require.NoError(t, err)
	return m, store, listener, clock
}

func signal(symbol string, close float64, labels ...domain.SignalLabel) *domain.SignalEvent {
	return &domain.SignalEvent{
		Symbol:     symbol,
		Labels:     labels,
		Bar:        domain.Kline{Symbol: symbol, Close: close},
		VolumeText: "x3.50",
	}
}

func bar(symbol string, high, low float64) *domain.Kline {
	return &domain.Kline{Symbol: symbol, High: high, Low: low, IsFinal: true}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no legs", mutate: func(c *Config) { c.Legs = nil }, wantErr: true},
		{name: "duplicate leg", mutate: func(c *Config) { c.Legs[1].Name = "3:1" }, wantErr: true},
		{name: "zero take profit", mutate: func(c *Config) { c.Legs[0].TakeProfitPct = 0 }, wantErr: true},
		{name: "percent instead of fraction", mutate: func(c *Config) { c.Legs[0].TakeProfitPct = 6 }, wantErr: true},
		{name: "cooldown without bar duration", mutate: func(c *Config) { c.BarDuration = 0 }, wantErr: true},
		{name: "cooldown disabled", mutate: func(c *Config) { c.CooldownBars = 0; c.BarDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreate_BuyLegs(t *testing.T) {
	m, store, listener, _ := newTestManager(t, testConfig())

	trade, err := m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	assert.Equal(t, "000001", trade.ID)
	assert.Equal(t, domain.Buy, trade.Side)
	assert.Equal(t, 100.0, trade.EntryPrice)
	require.Len(t, trade.Legs, 2)
	assert.InDelta(t, 103.0, trade.Legs[0].TakeProfitPrice, 1e-9)
	assert.InDelta(t, 99.0, trade.Legs[0].StopLossPrice, 1e-9)
	assert.InDelta(t, 106.0, trade.Legs[1].TakeProfitPrice, 1e-9)
	assert.InDelta(t, 98.0, trade.Legs[1].StopLossPrice, 1e-9) // sign of stop loss ignored
	for _, l := range trade.Legs {
		assert.Equal(t, domain.LegOpen, l.Status)
	}

	assert.Equal(t, 1, store.saves)
	assert.Contains(t, store.saved, "000001")
	require.Len(t, listener.opened, 1)
	assert.Equal(t, 1, m.ActiveCount())
	assert.True(t, m.HasActive("ETHUSDT"))
}

func TestCreate_SellLegsMirrored(t *testing.T) {
	m, _, _, _ := newTestManager(t, testConfig())

	trade, err := m.Create(context.Background(), signal("SOLUSDT", 200, domain.SellCounter))
	require.NoError(t, err)
	assert.Equal(t, domain.Sell, trade.Side)
	assert.InDelta(t, 194.0, trade.Legs[0].TakeProfitPrice, 1e-9)
	assert.InDelta(t, 202.0, trade.Legs[0].StopLossPrice, 1e-9)
}

func TestCreate_Cooldown(t *testing.T) {
	m, store, _, clock := newTestManager(t, testConfig())
	ctx := context.Background()

	_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute) // two bars later
	_, err = m.Create(ctx, signal("ETHUSDT", 101, domain.BuyTrend))
	assert.ErrorIs(t, err, ports.ErrCooldown)

	// another instrument is unaffected
	_, err = m.Create(ctx, signal("SOLUSDT", 50, domain.SellTrend))
	require.NoError(t, err)

	assert.Equal(t, 2, m.ActiveCount())
	assert.Equal(t, int64(2), store.lastID, "suppressed signals must not consume ids")

	clock.Advance(5 * time.Minute) // three bars after the first trade
	trade, err := m.Create(ctx, signal("ETHUSDT", 102, domain.BuyTrend))
	require.NoError(t, err)
	assert.Equal(t, "000003", trade.ID)
}

func TestCreate_CooldownDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownBars = 0
	m, _, _, _ := newTestManager(t, cfg)
	ctx := context.Background()

	_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	_, err = m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	assert.Equal(t, 2, m.ActiveCount())
}

func TestCreate_IDAllocationFailureAborts(t *testing.T) {
	m, store, listener, _ := newTestManager(t, testConfig())
	store.nextErr = errors.New("disk full")

	_, err := m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	require.Error(t, err)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, listener.opened)

	// the failed attempt does not start a cooldown
	store.nextErr = nil
	_, err = m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	assert.NoError(t, err)
}

func TestCreate_PersistFailureKeepsTrade(t *testing.T) {
	logger := &mockLogger{}
	store := &mockStore{saveErr: errors.New("read-only")}
	m, err := NewManager(testConfig(), store, logger)
	require.NoError(t, err)

	_, err = m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	assert.Equal(t, 1, m.ActiveCount())
	assert.Contains(t, logger.errorMsgs, "Failed to persist active trades")
}

func TestCreate_RejectsEmptySignal(t *testing.T) {
	m, _, _, _ := newTestManager(t, testConfig())
	_, err := m.Create(context.Background(), signal("ETHUSDT", 100))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	_, err = m.Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestOnBarClosed_PnL(t *testing.T) {
	cfg := testConfig()
	cfg.Legs = []domain.StrategyLeg{{Name: "3:1", TakeProfitPct: 0.03, StopLossPct: 0.01}}

	tests := []struct {
		name       string
		high, low  float64
		wantStatus domain.LegStatus
		wantPrice  float64
		wantPnL    float64
	}{
		{name: "take profit", high: 104, low: 101, wantStatus: domain.LegTakeProfit, wantPrice: 103, wantPnL: 3},
		{name: "stop loss", high: 99.5, low: 98, wantStatus: domain.LegStopLoss, wantPrice: 99, wantPnL: -1},
		{name: "both touched resolves to stop loss", high: 104, low: 98, wantStatus: domain.LegStopLoss, wantPrice: 99, wantPnL: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, listener, _ := newTestManager(t, cfg)
			ctx := context.Background()
			_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
			require.NoError(t, err)

			closed := m.OnBarClosed(ctx, bar("ETHUSDT", tt.high, tt.low))
			require.Len(t, closed, 1)
			assert.Equal(t, tt.wantStatus, closed[0].Status)
			assert.InDelta(t, tt.wantPrice, closed[0].ClosePrice, 1e-9)
			assert.InDelta(t, tt.wantPnL, closed[0].PnLPct, 1e-9)
			assert.Equal(t, 0, m.ActiveCount())
			require.Len(t, listener.closed, 1)
		})
	}
}

func TestOnBarClosed_SellPnLNegated(t *testing.T) {
	cfg := testConfig()
	cfg.Legs = []domain.StrategyLeg{{Name: "3:1", TakeProfitPct: 0.03, StopLossPct: 0.01}}
	m, _, _, _ := newTestManager(t, cfg)
	ctx := context.Background()
	_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.SellTrend))
	require.NoError(t, err)

	// sell stop loss is checked against the high first
	closed := m.OnBarClosed(ctx, bar("ETHUSDT", 101.5, 96))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.LegStopLoss, closed[0].Status)
	assert.InDelta(t, 101.0, closed[0].ClosePrice, 1e-9)
	assert.InDelta(t, -1.0, closed[0].PnLPct, 1e-9)

	_, err = m.Create(ctx, signal("BNBUSDT", 100, domain.SellTrend))
	require.NoError(t, err)
	closed = m.OnBarClosed(ctx, bar("BNBUSDT", 100.5, 96.5))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.LegTakeProfit, closed[0].Status)
	assert.InDelta(t, 3.0, closed[0].PnLPct, 1e-9)
}

func TestOnBarClosed_LegsAreIndependentAndMonotonic(t *testing.T) {
	m, store, listener, _ := newTestManager(t, testConfig())
	ctx := context.Background()
	_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	savesAfterCreate := store.saves

	// first leg takes profit, second stays open
	closed := m.OnBarClosed(ctx, bar("ETHUSDT", 104, 99.5))
	require.Len(t, closed, 1)
	assert.Equal(t, "3:1", closed[0].Name)
	assert.Equal(t, savesAfterCreate+1, store.saves)

	// a later bar crossing the first leg's stop never reopens or flips it
	closed = m.OnBarClosed(ctx, bar("ETHUSDT", 100, 98.5))
	assert.Empty(t, closed)
	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, domain.LegTakeProfit, active[0].Legs[0].Status)
	assert.Equal(t, domain.LegOpen, active[0].Legs[1].Status)
	assert.Equal(t, savesAfterCreate+1, store.saves, "no mutation, no write")

	// second leg stops out and the trade is evicted
	closed = m.OnBarClosed(ctx, bar("ETHUSDT", 100, 97))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.LegStopLoss, closed[0].Status)
	assert.Equal(t, 0, m.ActiveCount())
	assert.Empty(t, store.saved)
	assert.Len(t, listener.closed, 2)
}

func TestOnBarClosed_IgnoresOtherInstruments(t *testing.T) {
	m, store, _, _ := newTestManager(t, testConfig())
	ctx := context.Background()
	_, err := m.Create(ctx, signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)
	saves := store.saves

	assert.Empty(t, m.OnBarClosed(ctx, bar("XRPUSDT", 1000, 0)))
	assert.Empty(t, m.OnBarClosed(ctx, nil))
	assert.Equal(t, saves, store.saves)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestActive_ReturnsCopies(t *testing.T) {
	m, _, _, _ := newTestManager(t, testConfig())
	_, err := m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	require.NoError(t, err)

	active := m.Active()
	active[0].Legs[0].Status = domain.LegStopLoss
	assert.Equal(t, domain.LegOpen, m.Active()[0].Legs[0].Status)
}

func TestLoad_RecoversRegistryAndCooldown(t *testing.T) {
	opened := time.Date(2024, 3, 1, 11, 55, 0, 0, time.UTC)
	store := &mockStore{lastID: 7, loaded: map[string]*domain.Trade{
		"000007": {
			ID: "000007", Symbol: "ETHUSDT", Side: domain.Buy, EntryPrice: 100, OpenTime: opened,
			Legs: []domain.Leg{{Name: "3:1", TakeProfitPrice: 103, StopLossPrice: 99, Status: domain.LegOpen}},
		},
		"000005": {
			ID: "000005", Symbol: "SOLUSDT", Side: domain.Sell, EntryPrice: 50, OpenTime: opened,
			Legs: []domain.Leg{{Name: "3:1", Status: domain.LegTakeProfit}},
		},
	}}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(testConfig(), store, &mockLogger{}, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, m.Load(context.Background()))

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "000007", active[0].ID)

	_, err = m.Create(context.Background(), signal("ETHUSDT", 100, domain.BuyTrend))
	assert.ErrorIs(t, err, ports.ErrCooldown)

	trade, err := m.Create(context.Background(), signal("SOLUSDT", 50, domain.BuyTrend))
	require.NoError(t, err)
	assert.Equal(t, "000008", trade.ID)
}

func TestLoad_Error(t *testing.T) {
	store := &mockStore{loadErr: ports.ErrPersistence}
	m, err := NewManager(testConfig(), store, &mockLogger{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Load(context.Background()), ports.ErrPersistence)
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(testConfig(), nil, &mockLogger{})
	assert.Error(t, err)
	_, err = NewManager(Config{}, &mockStore{}, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
