package domain

// Ticker24h is the rolling 24 hour statistics snapshot of one instrument.
type Ticker24h struct {
	Symbol      string
	LastPrice   float64
	Volume      float64 // Base asset volume
	QuoteVolume float64 // Quote asset volume, used for the liquidity floor
}
