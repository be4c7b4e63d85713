package domain

import (
	"math"
	"time"
)

// IndicatorSnapshot holds the derived indicator values for a single bar.
// Values that are not yet defined for the bar are NaN.
type IndicatorSnapshot struct {
	EMAFast        float64
	EMASlow        float64
	ATR            float64
	VWAP           float64
	QuoteVolume    float64 // close × volume
	AvgQuoteVolume float64 // trailing mean, excluding the two most recent bars
}

// ATRReady reports whether the average true range is defined.
func (s IndicatorSnapshot) ATRReady() bool {
	return !math.IsNaN(s.ATR)
}

// SignalEvent is the result of classifying the last closed bar of an instrument.
type SignalEvent struct {
	Symbol           string
	Timestamp        time.Time // Open time of the classified bar
	Labels           []SignalLabel
	Bar              Kline
	Snapshot         IndicatorSnapshot
	VolumeRatio      float64
	VolumeText       string // "x{ratio:.2f}"
	PrevHigherVolume int    // bars among the previous three with higher quote volume

	// Enrichment filled by the service after classification.
	Volume24h   float64
	Correlation *float64 // nil when unavailable
}

// Side returns the trade side implied by the labels.
func (e *SignalEvent) Side() OrderSide {
	return SideForLabels(e.Labels)
}

// HasLabel reports whether the event carries the given label.
func (e *SignalEvent) HasLabel(label SignalLabel) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
