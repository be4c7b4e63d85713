package indicators

import (
	"fmt"
	"math"

	"volumeSpikeBot/internal/domain"
)

// ExcludeRecent is the number of most recent bars kept out of the volume average:
// the bar under evaluation and the one still forming after it.
const ExcludeRecent = 2

// Config holds the periods used by the pipeline.
type Config struct {
	EMAFastSpan    int
	EMASlowSpan    int
	ATRPeriod      int
	VolumeLookback int
}

// Validate checks the periods are usable.
func (c Config) Validate() error {
	if c.EMAFastSpan <= 0 || c.EMASlowSpan <= 0 || c.ATRPeriod <= 0 || c.VolumeLookback <= 0 {
		return fmt.Errorf("indicator periods must be positive: %+v", c)
	}
	return nil
}

// Series holds every derived series for a window of bars.
type Series struct {
	EMAFast        []float64
	EMASlow        []float64
	ATR            []float64
	VWAP           []float64
	QuoteVolume    []float64
	AvgQuoteVolume float64
}

// Pipeline computes indicator series for a bar window.
type Pipeline struct {
	cfg     Config
	emaFast *MovingAverage
	emaSlow *MovingAverage
	atr     *ATR
}

// NewPipeline creates a pipeline for the given configuration.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		emaFast: NewMovingAverage(MovingAverageConfig{
			IndicatorConfig: IndicatorConfig{Period: cfg.EMAFastSpan},
			Type:            ExponentialMovingAverage,
		}),
		emaSlow: NewMovingAverage(MovingAverageConfig{
			IndicatorConfig: IndicatorConfig{Period: cfg.EMASlowSpan},
			Type:            ExponentialMovingAverage,
		}),
		atr: NewATR(ATRConfig{IndicatorConfig: IndicatorConfig{Period: cfg.ATRPeriod}}),
	}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Compute recomputes every series over the full window.
func (p *Pipeline) Compute(klines []*domain.Kline) *Series {
	qv := QuoteVolume(klines)
	return &Series{
		EMAFast:        p.emaFast.Series(klines),
		EMASlow:        p.emaSlow.Series(klines),
		ATR:            p.atr.Series(klines),
		VWAP:           SessionVWAP(klines),
		QuoteVolume:    qv,
		AvgQuoteVolume: TrailingMean(qv, p.cfg.VolumeLookback, ExcludeRecent),
	}
}

// Snapshot returns the values at bar index i.
func (s *Series) Snapshot(i int) domain.IndicatorSnapshot {
	if i < 0 || i >= len(s.QuoteVolume) {
		nan := math.NaN()
		return domain.IndicatorSnapshot{EMAFast: nan, EMASlow: nan, ATR: nan, VWAP: nan, QuoteVolume: nan, AvgQuoteVolume: s.AvgQuoteVolume}
	}
	return domain.IndicatorSnapshot{
		EMAFast:        s.EMAFast[i],
		EMASlow:        s.EMASlow[i],
		ATR:            s.ATR[i],
		VWAP:           s.VWAP[i],
		QuoteVolume:    s.QuoteVolume[i],
		AvgQuoteVolume: s.AvgQuoteVolume,
	}
}
