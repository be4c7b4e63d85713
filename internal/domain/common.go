package domain

import "strings"

// OrderSide represents the direction of a simulated trade (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// LegStatus represents the status of a single take-profit/stop-loss leg.
type LegStatus string

const (
	LegOpen       LegStatus = "OPEN"
	LegTakeProfit LegStatus = "TP"
	LegStopLoss   LegStatus = "SL"
)

// IsClosed reports whether the status is terminal.
func (s LegStatus) IsClosed() bool {
	return s == LegTakeProfit || s == LegStopLoss
}

// SignalLabel names one classification outcome for a bar.
type SignalLabel string

const (
	BuyTrend    SignalLabel = "BUY_TREND"
	SellTrend   SignalLabel = "SELL_TREND"
	BuyCounter  SignalLabel = "BUY_COUNTER"
	SellCounter SignalLabel = "SELL_COUNTER"
)

// SideForLabels returns BUY if any label is a buy label, otherwise SELL.
func SideForLabels(labels []SignalLabel) OrderSide {
	for _, l := range labels {
		if strings.Contains(string(l), string(Buy)) {
			return Buy
		}
	}
	return Sell
}

// JoinLabels renders labels as a comma separated list.
func JoinLabels(labels []SignalLabel) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}
