package app

import (
	"context"
	"fmt"

	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// Reporter turns lifecycle events into ledger rows and alerts. Every side
// effect runs on the task pool, so callbacks return immediately.
type Reporter struct {
	runID    string
	ledger   ports.Ledger   // optional
	notifier ports.Notifier // optional
	alerts   Alerts
	pool     *TaskPool
	logger   ports.Logger
	metrics  *metrics.Metrics
}

// NewReporter creates a Reporter. ledger and notifier may be nil.
func NewReporter(runID string, ledger ports.Ledger, notifier ports.Notifier, alerts Alerts, pool *TaskPool, logger ports.Logger, m *metrics.Metrics) (*Reporter, error) {
	if pool == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for reporter")
	}
	return &Reporter{
		runID:    runID,
		ledger:   ledger,
		notifier: notifier,
		alerts:   alerts,
		pool:     pool,
		logger:   logger,
		metrics:  m,
	}, nil
}

// TradeOpened implements lifecycle.Listener.
func (r *Reporter) TradeOpened(ctx context.Context, trade *domain.Trade, ev *domain.SignalEvent) {
	rec := OpenRecord(trade, r.runID)
	r.record(rec)
	r.notify(trade, r.alerts.TradeOpened(trade, ev))
}

// LegClosed implements lifecycle.Listener.
func (r *Reporter) LegClosed(ctx context.Context, trade *domain.Trade, leg domain.Leg) {
	rec := CloseRecord(trade, leg, r.runID)
	r.record(rec)
	r.notify(trade, r.alerts.LegClosed(trade, leg))
}

func (r *Reporter) record(rec domain.LedgerRecord) {
	if r.ledger == nil {
		return
	}
	r.pool.Submit("ledger", func(ctx context.Context) {
		if err := r.ledger.Record(ctx, rec); err != nil {
			r.logger.Error(ctx, err, "Failed to write ledger row", map[string]interface{}{
				"tradeID": rec.TradeID,
				"event":   string(rec.Event),
				"leg":     rec.Leg,
			})
		}
	})
}

func (r *Reporter) notify(trade *domain.Trade, text string) {
	if r.notifier == nil {
		return
	}
	r.pool.Submit("alert", func(ctx context.Context) {
		err := r.notifier.Send(ctx, text)
		r.metrics.Notification(err == nil)
		if err != nil {
			r.logger.Warn(ctx, "Alert delivery failed", map[string]interface{}{
				"tradeID": trade.ID,
				"symbol":  trade.Symbol,
				"error":   err.Error(),
			})
		}
	})
}

// OpenRecord is the ledger row written when a trade opens.
func OpenRecord(trade *domain.Trade, runID string) domain.LedgerRecord {
	return domain.LedgerRecord{
		Time:       trade.OpenTime,
		Event:      domain.LedgerOpen,
		TradeID:    trade.ID,
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		Labels:     domain.JoinLabels(trade.Labels),
		VolumeText: trade.VolumeText,
		EntryPrice: trade.EntryPrice,
		Status:     domain.LegOpen,
		RunID:      runID,
	}
}

// CloseRecord is the ledger row written when a leg closes.
func CloseRecord(trade *domain.Trade, leg domain.Leg, runID string) domain.LedgerRecord {
	rec := OpenRecord(trade, runID)
	rec.Time = leg.ClosedAt
	rec.Event = domain.LedgerClose
	rec.Leg = leg.Name
	rec.Status = leg.Status
	rec.ClosePrice = leg.ClosePrice
	rec.PnLPct = leg.PnLPct
	return rec
}
