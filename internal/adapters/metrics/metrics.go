// Package metrics exposes Prometheus metrics for the signal bot.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "volume_spike_bot"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BarsReceived   prometheus.Counter
	BarsDropped    *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	ProcessLatency prometheus.Histogram

	Signals      *prometheus.CounterVec
	TradesOpened *prometheus.CounterVec
	LegsClosed   *prometheus.CounterVec
	ActiveTrades prometheus.Gauge

	UniverseSize   prometheus.Gauge
	FeedReconnects prometheus.Counter
	FeedConnected  prometheus.Gauge

	Notifications *prometheus.CounterVec
	TasksDropped  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every metric with reg. Passing nil uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		BarsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "bars_received_total",
			Help: "Closed bars received from the feed",
		}),
		BarsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "bars_dropped_total",
			Help: "Bar events dropped before evaluation",
		}, []string{"reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "queue_depth",
			Help: "Bar events waiting for the worker",
		}),
		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "dispatcher", Name: "process_seconds",
			Help:    "Time spent evaluating one bar event",
			Buckets: prometheus.DefBuckets,
		}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "classifier", Name: "signals_total",
			Help: "Signal labels emitted",
		}, []string{"label"}),
		TradesOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "trades_opened_total",
			Help: "Trades opened",
		}, []string{"side"}),
		LegsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "legs_closed_total",
			Help: "Trade legs closed",
		}, []string{"leg", "status"}),
		ActiveTrades: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "active_trades",
			Help: "Trades with at least one open leg",
		}),
		UniverseSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "universe", Name: "symbols",
			Help: "Instruments currently accepted by the dispatcher",
		}),
		FeedReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "reconnects_total",
			Help: "Feed connection attempts after a failure",
		}),
		FeedConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "connections",
			Help: "Feed connections currently established",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notifier", Name: "messages_total",
			Help: "Alert deliveries by result",
		}, []string{"result"}),
		TasksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tasks", Name: "dropped_total",
			Help: "Background side effects dropped because the pool was full",
		}),
		gatherer: reg,
	}
}

// Gatherer returns the registry the metrics were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) BarReceived() {
	if m != nil {
		m.BarsReceived.Inc()
	}
}

func (m *Metrics) BarDropped(reason string) {
	if m != nil {
		m.BarsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) ObserveProcess(d time.Duration) {
	if m != nil {
		m.ProcessLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) SignalEmitted(label string) {
	if m != nil {
		m.Signals.WithLabelValues(label).Inc()
	}
}

func (m *Metrics) TradeOpened(side string) {
	if m != nil {
		m.TradesOpened.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) LegClosed(leg, status string) {
	if m != nil {
		m.LegsClosed.WithLabelValues(leg, status).Inc()
	}
}

func (m *Metrics) SetActiveTrades(n int) {
	if m != nil {
		m.ActiveTrades.Set(float64(n))
	}
}

func (m *Metrics) SetUniverseSize(n int) {
	if m != nil {
		m.UniverseSize.Set(float64(n))
	}
}

func (m *Metrics) FeedReconnect() {
	if m != nil {
		m.FeedReconnects.Inc()
	}
}

func (m *Metrics) FeedConnectionUp() {
	if m != nil {
		m.FeedConnected.Inc()
	}
}

func (m *Metrics) FeedConnectionDown() {
	if m != nil {
		m.FeedConnected.Dec()
	}
}

func (m *Metrics) Notification(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) TaskDropped() {
	if m != nil {
		m.TasksDropped.Inc()
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
