package indicators

import (
	"context"
	"fmt"

	"volumeSpikeBot/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators.
// For EMA the Period is the span.
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s%d", m.config.Type, m.Config.Period)
}

// RequiredDataPoints returns 1 for EMA, which is seeded with the first close.
func (m *MovingAverage) RequiredDataPoints() int {
	if m.config.Type == ExponentialMovingAverage {
		return 1
	}
	return m.Config.Period
}

// Calculate returns the most recent value of the moving average.
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if m.config.Type != SimpleMovingAverage && m.config.Type != ExponentialMovingAverage {
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
	if len(klines) < m.RequiredDataPoints() || len(klines) == 0 {
		return 0, fmt.Errorf("not enough data (%d) to calculate %s", len(klines), m.Name())
	}
	return Last(m.Series(klines)), nil
}

// Series computes the moving average for every kline.
func (m *MovingAverage) Series(klines []*domain.Kline) []float64 {
	switch m.config.Type {
	case SimpleMovingAverage:
		return SMA(closes(klines), m.Config.Period)
	case ExponentialMovingAverage:
		return EMA(closes(klines), m.Config.Period)
	default:
		return nanSeries(len(klines))
	}
}

// EMA computes an exponential moving average with smoothing 2/(span+1),
// seeded with the first value and updated recursively.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema += alpha * (values[i] - ema)
		out[i] = ema
	}
	return out
}

// SMA computes a simple rolling mean; entries before the first full window are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func closes(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}
