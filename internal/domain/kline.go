package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Kline interval (e.g., "5m")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Base asset volume
	IsFinal   bool      // Whether this kline is the final one for the interval
}

// QuoteVolume approximates the traded quote volume of the bar as close×volume.
func (k *Kline) QuoteVolume() float64 {
	return k.Close * k.Volume
}

// IsBullish reports whether the candle closed above its open.
func (k *Kline) IsBullish() bool {
	return k.Close > k.Open
}

// IsBearish reports whether the candle closed below its open.
func (k *Kline) IsBearish() bool {
	return k.Close < k.Open
}

// BodyPercent returns |close-open| as a percentage of the bar range.
// A zero-range bar has a body of 0.
func (k *Kline) BodyPercent() float64 {
	rng := k.High - k.Low
	if rng == 0 {
		return 0
	}
	body := k.Close - k.Open
	if body < 0 {
		body = -body
	}
	return body / rng * 100
}
