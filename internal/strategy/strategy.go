// Package strategy classifies the last closed bar of an instrument into
// volume-spike signal labels.
package strategy

import (
	"context"
	"fmt"
	"math"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/history"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy/indicators"
)

// prevVolumeBars is how many bars before the classified bar are compared by quote volume.
const prevVolumeBars = 3

// Config holds parameters for the signal classifier.
type Config struct {
	Indicators indicators.Config

	VolMultTrend   float64 // e.g., 3.0
	VolMultCounter float64 // e.g., 5.0, above VolMultTrend
	MinBodyTrend   float64 // body % of range
	MinBodyCounter float64 // 0 disables the check

	ATRGapMult           float64
	EMAFastProximityMult float64
	EMASlowProximityMult float64

	CooldownBars int // 0 disables recent-spike suppression
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if err := c.Indicators.Validate(); err != nil {
		return err
	}
	if c.VolMultTrend <= 0 || c.VolMultCounter <= 0 {
		return fmt.Errorf("volume multipliers must be positive")
	}
	if c.VolMultCounter < c.VolMultTrend {
		return fmt.Errorf("counter volume multiplier (%.2f) must not be below trend multiplier (%.2f)", c.VolMultCounter, c.VolMultTrend)
	}
	if c.MinBodyTrend < 0 || c.MinBodyCounter < 0 || c.MinBodyTrend > 100 || c.MinBodyCounter > 100 {
		return fmt.Errorf("body thresholds must be within 0..100")
	}
	if c.ATRGapMult < 0 || c.EMAFastProximityMult < 0 || c.EMASlowProximityMult < 0 {
		return fmt.Errorf("ATR multipliers must not be negative")
	}
	if c.CooldownBars < 0 {
		return fmt.Errorf("cooldown bars must not be negative")
	}
	return nil
}

// Evaluation holds every derived gate for the classified bar.
type Evaluation struct {
	Bar              *domain.Kline
	Snapshot         domain.IndicatorSnapshot
	VolumeRatio      float64
	PrevHigherVolume int

	SpikeTrend   bool
	SpikeCounter bool
	RecentSpike  bool

	BodyPct           float64
	StrongBodyTrend   bool
	StrongBodyCounter bool

	BullTrend bool
	BearTrend bool

	BelowEMAFast  bool
	AboveEMAFast  bool
	BelowVWAP     bool
	AboveVWAP     bool
	LowBelowEMAs  bool
	HighAboveEMAs bool

	EMAGapOK       bool
	EMAFastFarVWAP bool
	EMASlowFarVWAP bool
	EMAFastFarSlow bool
}

// ClearZone reports whether the averages and VWAP are mutually separated.
func (e Evaluation) ClearZone() bool {
	return e.EMAFastFarVWAP && e.EMAFastFarSlow && e.EMASlowFarVWAP
}

// Labels applies the emission rules to the gates.
func (e Evaluation) Labels() []domain.SignalLabel {
	if e.RecentSpike {
		return nil
	}
	bullish := e.Bar.IsBullish()
	bearish := e.Bar.IsBearish()

	var labels []domain.SignalLabel
	if e.SpikeTrend && bullish && e.StrongBodyTrend && e.BelowEMAFast && e.BelowVWAP &&
		e.BullTrend && e.EMAGapOK && e.LowBelowEMAs && e.EMAFastFarVWAP {
		labels = append(labels, domain.BuyTrend)
	}
	if e.SpikeTrend && bearish && e.StrongBodyTrend && e.AboveEMAFast && e.AboveVWAP &&
		e.BearTrend && e.EMAGapOK && e.HighAboveEMAs && e.EMAFastFarVWAP {
		labels = append(labels, domain.SellTrend)
	}
	if e.SpikeCounter && bullish && e.StrongBodyCounter && e.BelowEMAFast && e.BelowVWAP &&
		e.BearTrend && e.EMAGapOK && e.ClearZone() {
		labels = append(labels, domain.BuyCounter)
	}
	if e.SpikeCounter && bearish && e.StrongBodyCounter && e.AboveEMAFast && e.AboveVWAP &&
		e.BullTrend && e.EMAGapOK && e.ClearZone() {
		labels = append(labels, domain.SellCounter)
	}
	return labels
}

// Classifier implements the volume-spike signal rules.
type Classifier struct {
	cfg      Config
	pipeline *indicators.Pipeline
	logger   ports.Logger
}

// New creates a new Classifier instance.
func New(cfg Config, logger ports.Logger) (*Classifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for classifier")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}
	pipeline, err := indicators.NewPipeline(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, pipeline: pipeline, logger: logger}, nil
}

// RequiredDataPoints returns the minimum window length the classifier evaluates.
// The window includes the forming bar after the classified one.
func (c *Classifier) RequiredDataPoints() int {
	n := c.cfg.Indicators.ATRPeriod + 1
	if v := c.cfg.Indicators.VolumeLookback + indicators.ExcludeRecent; v > n {
		n = v
	}
	return n
}

// Evaluate computes every gate for the last closed bar of the window.
func (c *Classifier) Evaluate(w history.Window) (*Evaluation, error) {
	if w.Len() < c.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ports.ErrInsufficientHistory, w.Len(), c.RequiredDataPoints())
	}
	bars := w.Bars()
	series := c.pipeline.Compute(bars)
	idx := w.LastClosedIndex()
	last := bars[idx]
	snap := series.Snapshot(idx)
	avg := snap.AvgQuoteVolume
	if !(avg > 0) {
		return nil, fmt.Errorf("%w: average quote volume is %v", ports.ErrInsufficientHistory, avg)
	}

	ev := &Evaluation{
		Bar:         last,
		Snapshot:    snap,
		VolumeRatio: snap.QuoteVolume / avg,
		BodyPct:     last.BodyPercent(),
	}

	ev.SpikeTrend = snap.QuoteVolume >= avg*c.cfg.VolMultTrend
	ev.SpikeCounter = snap.QuoteVolume >= avg*c.cfg.VolMultCounter
	ev.RecentSpike = c.recentSpike(series.QuoteVolume, avg)

	lo, hi := history.TrailingBounds(len(bars), prevVolumeBars, indicators.ExcludeRecent)
	for _, qv := range series.QuoteVolume[lo:hi] {
		if qv > snap.QuoteVolume {
			ev.PrevHigherVolume++
		}
	}

	ev.StrongBodyTrend = ev.BodyPct >= c.cfg.MinBodyTrend
	ev.StrongBodyCounter = ev.BodyPct >= c.cfg.MinBodyCounter

	fast, slow, vwap, atr := snap.EMAFast, snap.EMASlow, snap.VWAP, snap.ATR
	ev.BullTrend = fast > slow
	ev.BearTrend = fast < slow

	ev.BelowEMAFast = last.Open < fast && last.Close < fast
	ev.AboveEMAFast = last.Open > fast && last.Close > fast
	ev.BelowVWAP = last.Open < vwap && last.Close < vwap
	ev.AboveVWAP = last.Open > vwap && last.Close > vwap
	ev.LowBelowEMAs = last.Low < fast && last.Low < slow
	ev.HighAboveEMAs = last.High > fast && last.High > slow

	// NaN ATR fails every separation gate.
	ev.EMAGapOK = math.Abs(fast-slow) >= atr*c.cfg.ATRGapMult
	ev.EMAFastFarVWAP = math.Abs(fast-vwap) >= atr*c.cfg.EMAFastProximityMult
	ev.EMASlowFarVWAP = math.Abs(slow-vwap) >= atr*c.cfg.EMASlowProximityMult
	ev.EMAFastFarSlow = math.Abs(fast-slow) >= atr*c.cfg.EMAFastProximityMult

	return ev, nil
}

// recentSpike reports whether any of the CooldownBars bars before the classified
// one already crossed either spike multiplier.
func (c *Classifier) recentSpike(quoteVolume []float64, avg float64) bool {
	if c.cfg.CooldownBars == 0 {
		return false
	}
	lo, hi := history.TrailingBounds(len(quoteVolume), c.cfg.CooldownBars, indicators.ExcludeRecent)
	for _, qv := range quoteVolume[lo:hi] {
		if qv >= avg*c.cfg.VolMultTrend || qv >= avg*c.cfg.VolMultCounter {
			return true
		}
	}
	return false
}

// Classify evaluates the window and returns a SignalEvent, or nil when no label fires.
func (c *Classifier) Classify(ctx context.Context, symbol string, w history.Window) *domain.SignalEvent {
	ev, err := c.Evaluate(w)
	if err != nil {
		c.logger.Debug(ctx, "Skipping classification", map[string]interface{}{
			"symbol": symbol,
			"reason": err.Error(),
		})
		return nil
	}

	labels := ev.Labels()
	if len(labels) == 0 {
		if ev.SpikeTrend {
			c.logger.Debug(ctx, "Volume spike without signal", map[string]interface{}{
				"symbol":      symbol,
				"ratio":       ev.VolumeRatio,
				"recentSpike": ev.RecentSpike,
				"bullTrend":   ev.BullTrend,
				"bodyPct":     ev.BodyPct,
			})
		}
		return nil
	}

	c.logger.Info(ctx, "Signal conditions met", map[string]interface{}{
		"symbol": symbol,
		"labels": domain.JoinLabels(labels),
		"ratio":  ev.VolumeRatio,
		"close":  ev.Bar.Close,
		"emaF":   ev.Snapshot.EMAFast,
		"emaS":   ev.Snapshot.EMASlow,
		"vwap":   ev.Snapshot.VWAP,
		"atr":    ev.Snapshot.ATR,
	})

	return &domain.SignalEvent{
		Symbol:           symbol,
		Timestamp:        ev.Bar.OpenTime,
		Labels:           labels,
		Bar:              *ev.Bar,
		Snapshot:         ev.Snapshot,
		VolumeRatio:      ev.VolumeRatio,
		VolumeText:       FormatVolumeRatio(ev.VolumeRatio),
		PrevHigherVolume: ev.PrevHigherVolume,
	}
}

// FormatVolumeRatio renders a ratio as "x{ratio:.2f}".
func FormatVolumeRatio(ratio float64) string {
	return fmt.Sprintf("x%.2f", ratio)
}
