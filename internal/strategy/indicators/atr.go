package indicators

import (
	"context"
	"fmt"
	"math"

	"volumeSpikeBot/internal/domain"
)

// ATRConfig holds configuration for the Average True Range indicator
type ATRConfig struct {
	IndicatorConfig
}

// ATR implements the Average True Range indicator as a simple rolling mean of true range
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(config ATRConfig) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: config.IndicatorConfig}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return fmt.Sprintf("ATR%d", a.Config.Period)
}

// Calculate computes the most recent Average True Range value for the given klines
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := a.Config.Period
	if period <= 0 || len(klines) < period {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period, len(klines))
	}
	return Last(a.Series(klines)), nil
}

// Series returns the rolling mean of true range; NaN until Period bars exist.
func (a *ATR) Series(klines []*domain.Kline) []float64 {
	return SMA(TrueRange(klines), a.Config.Period)
}

// TrueRange computes the true range of every bar.
// The first bar has no previous close, so only its high-low range is used.
func TrueRange(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		tr := k.High - k.Low
		if i > 0 {
			prevClose := klines[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		}
		out[i] = tr
	}
	return out
}
