package indicators

import (
	"math"

	"volumeSpikeBot/internal/domain"
)

// SessionVWAP computes the volume weighted average of the typical price
// (high+low+close)/3, accumulated from the first bar of each UTC calendar day.
// Entries where the session has seen no volume yet are NaN.
func SessionVWAP(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	var cumPV, cumVol float64
	var session string
	for i, k := range klines {
		day := k.OpenTime.UTC().Format("2006-01-02")
		if i == 0 || day != session {
			session = day
			cumPV, cumVol = 0, 0
		}
		typical := (k.High + k.Low + k.Close) / 3
		cumPV += typical * k.Volume
		cumVol += k.Volume
		if cumVol == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumVol
	}
	return out
}
