package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/history"
	"volumeSpikeBot/internal/lifecycle"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
)

// SymbolFilter decides which instruments are evaluated for new signals.
type SymbolFilter interface {
	Contains(symbol string) bool
}

// DispatcherConfig holds the worker settings.
type DispatcherConfig struct {
	Interval        string // Kline interval used for REST refreshes
	LookbackCandles int    // Bars fetched per evaluation
	QueueSize       int
}

// Dispatcher queues closed-bar events from the feed and processes them on a
// single worker goroutine.
type Dispatcher struct {
	cfg        DispatcherConfig
	market     ports.MarketData
	history    *history.Store
	classifier *strategy.Classifier
	manager    *lifecycle.Manager
	universe   SymbolFilter
	logger     ports.Logger
	metrics    *metrics.Metrics

	queue chan *domain.Kline

	benchMu   sync.RWMutex
	benchmark []float64 // BTC close-to-close returns
}

// NewDispatcher wires the worker to its collaborators.
func NewDispatcher(
	cfg DispatcherConfig,
	market ports.MarketData,
	store *history.Store,
	classifier *strategy.Classifier,
	manager *lifecycle.Manager,
	universe SymbolFilter,
	logger ports.Logger,
	m *metrics.Metrics,
) (*Dispatcher, error) {
	if market == nil || store == nil || classifier == nil || manager == nil || universe == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for dispatcher")
	}
	if cfg.Interval == "" {
		return nil, fmt.Errorf("%w: dispatcher interval is required", ports.ErrConfigurationError)
	}
	if cfg.LookbackCandles < classifier.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: lookback candles (%d) below classifier requirement (%d)",
			ports.ErrConfigurationError, cfg.LookbackCandles, classifier.RequiredDataPoints())
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Dispatcher{
		cfg:        cfg,
		market:     market,
		history:    store,
		classifier: classifier,
		manager:    manager,
		universe:   universe,
		logger:     logger,
		metrics:    m,
		queue:      make(chan *domain.Kline, cfg.QueueSize),
	}, nil
}

// SetBenchmark replaces the benchmark return series used for correlation.
func (d *Dispatcher) SetBenchmark(returns []float64) {
	d.benchMu.Lock()
	d.benchmark = returns
	d.benchMu.Unlock()
}

func (d *Dispatcher) benchmarkReturns() []float64 {
	d.benchMu.RLock()
	defer d.benchMu.RUnlock()
	return d.benchmark
}

// Enqueue is the feed callback. It never blocks: forming bars, bars of
// instruments that are neither eligible nor carrying an open trade, and bars
// arriving while the queue is full are dropped.
func (d *Dispatcher) Enqueue(k *domain.Kline) {
	if k == nil {
		return
	}
	d.metrics.BarReceived()
	if !k.IsFinal {
		return
	}
	if !d.universe.Contains(k.Symbol) && !d.manager.HasActive(k.Symbol) {
		d.metrics.BarDropped("universe")
		return
	}
	select {
	case d.queue <- k:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.metrics.BarDropped("queue_full")
		d.logger.Warn(context.Background(), "Dispatcher queue full, dropping bar", map[string]interface{}{
			"symbol":   k.Symbol,
			"openTime": k.OpenTime,
		})
	}
}

// Run drains the queue until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info(ctx, "Dispatcher worker started", map[string]interface{}{"queueSize": cap(d.queue)})
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "Dispatcher worker stopped", map[string]interface{}{"pending": len(d.queue)})
			return
		case k := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.Process(ctx, k)
		}
	}
}

// Process handles one closed bar: it settles open legs first, then evaluates
// the instrument for a new signal. A panic is recovered and logged.
func (d *Dispatcher) Process(ctx context.Context, k *domain.Kline) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Recovered from panic while processing bar", map[string]interface{}{
				"symbol":   k.Symbol,
				"openTime": k.OpenTime,
			})
		}
		d.metrics.ObserveProcess(time.Since(start))
	}()

	d.history.Append(k)

	// A bar that opens a trade at its close must not also settle it.
	if closed := d.manager.OnBarClosed(ctx, k); len(closed) > 0 {
		for _, leg := range closed {
			d.metrics.LegClosed(leg.Name, string(leg.Status))
		}
		d.metrics.SetActiveTrades(d.manager.ActiveCount())
	}

	if !d.universe.Contains(k.Symbol) {
		return
	}

	w := d.window(ctx, k)
	ev := d.classifier.Classify(ctx, k.Symbol, w)
	if ev == nil {
		return
	}
	for _, l := range ev.Labels {
		d.metrics.SignalEmitted(string(l))
	}

	d.enrich(ctx, ev, w)

	trade, err := d.manager.Create(ctx, ev)
	switch {
	case errors.Is(err, ports.ErrCooldown):
		d.logger.Info(ctx, "Signal within cooldown, no trade opened", map[string]interface{}{
			"symbol": ev.Symbol,
			"labels": domain.JoinLabels(ev.Labels),
		})
		return
	case err != nil:
		d.logger.Error(ctx, err, "Failed to open trade", map[string]interface{}{"symbol": ev.Symbol})
		return
	}
	d.metrics.TradeOpened(string(trade.Side))
	d.metrics.SetActiveTrades(d.manager.ActiveCount())
}

// window refreshes the instrument's history from REST and returns a window whose
// last closed bar is k. If the fetch fails the feed-built cache is used instead.
func (d *Dispatcher) window(ctx context.Context, k *domain.Kline) history.Window {
	klines, err := d.market.GetKlines(ctx, k.Symbol, d.cfg.Interval, d.cfg.LookbackCandles)
	if err != nil {
		d.logger.Warn(ctx, "Kline refresh failed, using cached history", map[string]interface{}{
			"symbol": k.Symbol,
			"cached": d.history.Len(k.Symbol),
			"error":  err.Error(),
		})
		return d.closedWindow(k)
	}
	d.history.Replace(k.Symbol, klines)
	d.history.Append(k)

	w := d.history.Window(k.Symbol)
	if last := w.LastClosed(); last != nil && last.OpenTime.Equal(k.OpenTime) {
		return w
	}
	// The batch ends at the event bar itself, or is stale.
	return d.closedWindow(k)
}

func (d *Dispatcher) closedWindow(k *domain.Kline) history.Window {
	bars := d.history.Window(k.Symbol).Bars()
	for len(bars) > 0 && bars[len(bars)-1].OpenTime.After(k.OpenTime) {
		bars = bars[:len(bars)-1]
	}
	return history.Closed(bars)
}

// enrich adds the alert-only context: 24h quote volume and BTC correlation.
func (d *Dispatcher) enrich(ctx context.Context, ev *domain.SignalEvent, w history.Window) {
	if t, err := d.market.GetTicker24h(ctx, ev.Symbol); err != nil {
		d.logger.Warn(ctx, "24h ticker unavailable for alert", map[string]interface{}{"symbol": ev.Symbol, "error": err.Error()})
	} else {
		ev.Volume24h = t.QuoteVolume
	}

	bench := d.benchmarkReturns()
	if len(bench) == 0 {
		return
	}
	bars := w.Bars()
	if len(bars) > strategy.CorrelationBars {
		bars = bars[len(bars)-strategy.CorrelationBars:]
	}
	if corr, ok := strategy.Correlation(bench, strategy.Returns(bars)); ok {
		ev.Correlation = &corr
	}
}
