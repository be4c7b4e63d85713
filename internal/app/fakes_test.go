package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/strategy"
	"volumeSpikeBot/internal/strategy/indicators"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func (m *mockLogger) errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errorMsgs...)
}

func (m *mockLogger) infos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.infoMsgs...)
}

type mockMarket struct {
	mu         sync.Mutex
	klines     map[string][]*domain.Kline
	klinesErr  error
	tickers    []domain.Ticker24h
	tickersErr error
	panicOn    string
	klineCalls int
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klineCalls++
	if symbol == m.panicOn {
		panic("boom")
	}
	if m.klinesErr != nil {
		return nil, m.klinesErr
	}
	src := m.klines[symbol]
	if len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]*domain.Kline, len(src))
	for i, k := range src {
		c := *k
		out[i] = &c
	}
	return out, nil
}

func (m *mockMarket) GetTickers24h(ctx context.Context) ([]domain.Ticker24h, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickersErr != nil {
		return nil, m.tickersErr
	}
	return append([]domain.Ticker24h(nil), m.tickers...), nil
}

func (m *mockMarket) GetTicker24h(ctx context.Context, symbol string) (*domain.Ticker24h, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickers {
		if t.Symbol == symbol {
			t := t
			return &t, nil
		}
	}
	return nil, errors.New("unknown symbol")
}

func (m *mockMarket) setTickers(tickers []domain.Ticker24h, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers = tickers
	m.tickersErr = err
}

type mockStore struct {
	mu      sync.Mutex
	lastID  int64
	saved   map[string]*domain.Trade
	loaded  map[string]*domain.Trade
	loadErr error
}

func (m *mockStore) NextTradeID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.saved = trades
	return nil
}

func (m *mockStore) LoadActive(ctx context.Context) (map[string]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.loaded == nil {
		return map[string]*domain.Trade{}, nil
	}
	return m.loaded, nil
}

type mockLedger struct {
	mu      sync.Mutex
	records []domain.LedgerRecord
	err     error
}

func (m *mockLedger) Record(ctx context.Context, rec domain.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *mockLedger) all() []domain.LedgerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LedgerRecord(nil), m.records...)
}

type mockNotifier struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (m *mockNotifier) Send(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return m.err
}

func (m *mockNotifier) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type staticFilter map[string]bool

func (f staticFilter) Contains(symbol string) bool { return f[symbol] }

func testClassifierConfig() strategy.Config {
	return strategy.Config{
		Indicators: indicators.Config{
			EMAFastSpan:    20,
			EMASlowSpan:    200,
			ATRPeriod:      14,
			VolumeLookback: 20,
		},
		VolMultTrend:         3,
		VolMultCounter:       5,
		MinBodyTrend:         60,
		MinBodyCounter:       50,
		ATRGapMult:           1,
		EMAFastProximityMult: 0.5,
		EMASlowProximityMult: 0.5,
		CooldownBars:         5,
	}
}

var fixtureStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// spikeKlines is a 110-bar series whose bar 108 (close 128) is a BUY_TREND
// spike; bar 109 is still forming.
func spikeKlines(symbol string) []*domain.Kline {
	type row struct{ o, h, l, c, v float64 }
	var rows []row
	for i := 0; i < 100; i++ {
		c := 100 + float64(i)
		rows = append(rows, row{c - 0.5, c + 0.5, c - 1, c, 1})
	}
	p := 199.0
	for i := 0; i < 8; i++ {
		c := p - 9
		rows = append(rows, row{p, p + 0.5, c - 0.5, c, 1})
		p = c
	}
	rows = append(rows, row{p - 4, p + 1.2, p - 4.2, p + 1, 40})
	rows = append(rows, row{p + 1, p + 1.5, p, p + 1.2, 1})

	out := make([]*domain.Kline, len(rows))
	for i, r := range rows {
		open := fixtureStart.Add(time.Duration(i) * 5 * time.Minute)
		out[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(5*time.Minute - time.Millisecond),
			Symbol:    symbol,
			Interval:  "5m",
			Open:      r.o, High: r.h, Low: r.l, Close: r.c, Volume: r.v,
			IsFinal: i < len(rows)-1,
		}
	}
	return out
}
