package indicators

import (
	"math"

	"volumeSpikeBot/internal/domain"
)

// QuoteVolume returns close×volume for every bar.
func QuoteVolume(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.QuoteVolume()
	}
	return out
}

// TrailingMean averages up to lookback values that precede the excludeRecent most
// recent ones. It is NaN if the window is empty.
func TrailingMean(values []float64, lookback, excludeRecent int) float64 {
	hi := len(values) - excludeRecent
	if hi <= 0 || lookback <= 0 {
		return math.NaN()
	}
	lo := hi - lookback
	if lo < 0 {
		lo = 0
	}
	sum := 0.0
	for _, v := range values[lo:hi] {
		sum += v
	}
	return sum / float64(hi-lo)
}
