package strategy

import (
	"math"

	"volumeSpikeBot/internal/domain"
)

// CorrelationBars is the number of bars used for the BTC correlation.
const CorrelationBars = 108

// Returns computes bar-to-bar percentage changes of the close.
// The first entry is NaN.
func Returns(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i := range klines {
		if i == 0 || klines[i-1].Close == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = klines[i].Close/klines[i-1].Close - 1
	}
	return out
}

// Correlation returns the Pearson correlation of two return series aligned on
// their most recent values. Pairs with a NaN are skipped. ok is false when fewer
// than two pairs remain or either side has zero variance.
func Correlation(a, b []float64) (corr float64, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	var xs, ys []float64
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[i])
	}
	if len(xs) < 2 {
		return 0, false
	}

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= float64(len(xs))
	meanY /= float64(len(ys))

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}
