package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"volumeSpikeBot/internal/analytics"
	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/history"
	"volumeSpikeBot/internal/lifecycle"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
)

// ReplayConfig configures an offline run over recorded klines.
type ReplayConfig struct {
	Symbol          string
	LookbackCandles int
	RunID           string
	Lifecycle       lifecycle.Config
	Benchmark       []*domain.Kline // Optional, enables the correlation figure
}

// ReplayResult is the outcome of a replay.
type ReplayResult struct {
	Signals int
	Trades  int
	Records []domain.LedgerRecord
	Report  *analytics.Report
}

// replayRecorder collects ledger rows synchronously.
type replayRecorder struct {
	runID   string
	sink    ports.Ledger
	logger  ports.Logger
	records []domain.LedgerRecord
}

func (r *replayRecorder) TradeOpened(ctx context.Context, trade *domain.Trade, ev *domain.SignalEvent) {
	r.add(ctx, OpenRecord(trade, r.runID))
}

func (r *replayRecorder) LegClosed(ctx context.Context, trade *domain.Trade, leg domain.Leg) {
	r.add(ctx, CloseRecord(trade, leg, r.runID))
}

func (r *replayRecorder) add(ctx context.Context, rec domain.LedgerRecord) {
	r.records = append(r.records, rec)
	if r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, rec); err != nil {
		r.logger.Error(ctx, err, "Failed to write ledger row", map[string]interface{}{"tradeID": rec.TradeID})
	}
}

// Replay feeds closed klines through the same classify and settle steps as the
// live dispatcher, with the trade clock following bar close times. sink may be nil.
func Replay(
	ctx context.Context,
	cfg ReplayConfig,
	klines []*domain.Kline,
	classifier *strategy.Classifier,
	store ports.TradeStore,
	sink ports.Ledger,
	logger ports.Logger,
) (*ReplayResult, error) {
	if classifier == nil || store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for replay")
	}
	if cfg.LookbackCandles < classifier.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: lookback candles (%d) below classifier requirement (%d)",
			ports.ErrConfigurationError, cfg.LookbackCandles, classifier.RequiredDataPoints())
	}
	bars := sortedBars(klines)
	if len(bars) < classifier.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ports.ErrInsufficientHistory, len(bars), classifier.RequiredDataPoints())
	}

	var clock time.Time
	recorder := &replayRecorder{runID: cfg.RunID, sink: sink, logger: logger}
	manager, err := lifecycle.NewManager(cfg.Lifecycle, store, logger,
		lifecycle.WithClock(func() time.Time { return clock }),
		lifecycle.WithListener(recorder),
	)
	if err != nil {
		return nil, err
	}

	bench := sortedBars(cfg.Benchmark)
	result := &ReplayResult{}
	closed := cfg.LookbackCandles - 1 // the window adds a forming bar

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay failed: %w: %w", ports.ErrContextCanceled, err)
		}
		clock = bar.CloseTime
		manager.OnBarClosed(ctx, bar)

		lo := i + 1 - closed
		if lo < 0 {
			lo = 0
		}
		w := history.Closed(bars[lo : i+1])
		ev := classifier.Classify(ctx, cfg.Symbol, w)
		if ev == nil {
			continue
		}
		result.Signals++
		ev.Correlation = benchmarkCorrelation(bench, bars[:i+1])

		if _, err := manager.Create(ctx, ev); err != nil {
			if errors.Is(err, ports.ErrCooldown) {
				continue
			}
			return nil, err
		}
		result.Trades++
	}

	result.Records = recorder.records
	result.Report = analytics.AnalyzePerformance(result.Records)
	logger.Info(ctx, "Replay finished", map[string]interface{}{
		"symbol":  cfg.Symbol,
		"bars":    len(bars),
		"signals": result.Signals,
		"trades":  result.Trades,
		"open":    manager.ActiveCount(),
	})
	return result, nil
}

// benchmarkCorrelation correlates the benchmark returns up to the last bar with
// the symbol's returns over the same span.
func benchmarkCorrelation(bench, bars []*domain.Kline) *float64 {
	if len(bench) == 0 {
		return nil
	}
	last := bars[len(bars)-1].OpenTime
	end := sort.Search(len(bench), func(i int) bool { return bench[i].OpenTime.After(last) })
	lo := end - strategy.CorrelationBars
	if lo < 0 {
		lo = 0
	}
	if len(bars) > strategy.CorrelationBars {
		bars = bars[len(bars)-strategy.CorrelationBars:]
	}
	corr, ok := strategy.Correlation(strategy.Returns(bench[lo:end]), strategy.Returns(bars))
	if !ok {
		return nil
	}
	return &corr
}

func sortedBars(klines []*domain.Kline) []*domain.Kline {
	out := make([]*domain.Kline, 0, len(klines))
	for _, k := range klines {
		if k != nil {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}
