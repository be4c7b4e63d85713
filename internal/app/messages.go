package app

import (
	"fmt"
	"strings"

	"volumeSpikeBot/internal/domain"
)

// Alerts renders alert texts.
type Alerts struct {
	BotName  string
	FastSpan int
	SlowSpan int
}

// TradeOpened renders the alert for a new trade and the signal that opened it.
func (a Alerts) TradeOpened(trade *domain.Trade, ev *domain.SignalEvent) string {
	corr := "N/A"
	if ev.Correlation != nil {
		corr = fmt.Sprintf("%.2f", *ev.Correlation)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 %s\n", a.BotName)
	fmt.Fprintf(&b, "🔥 %s\n", ev.Symbol)
	fmt.Fprintf(&b, "Type: %s\n", domain.JoinLabels(ev.Labels))
	fmt.Fprintf(&b, "Close: %.6f\n", ev.Bar.Close)
	fmt.Fprintf(&b, "EMA%d: %.6f\n", a.FastSpan, ev.Snapshot.EMAFast)
	fmt.Fprintf(&b, "EMA%d: %.6f\n", a.SlowSpan, ev.Snapshot.EMASlow)
	fmt.Fprintf(&b, "VWAP: %.6f\n", ev.Snapshot.VWAP)
	fmt.Fprintf(&b, "VOL %s\n", ev.VolumeText)
	fmt.Fprintf(&b, "Prev volume higher: %d/3\n", ev.PrevHigherVolume)
	fmt.Fprintf(&b, "VOL 24h: %.1fM USDT\n", ev.Volume24h/1_000_000)
	fmt.Fprintf(&b, "Corr BTC: %s\n", corr)
	fmt.Fprintf(&b, "Trade #%s %s @ %.6f\n", trade.ID, trade.Side, trade.EntryPrice)
	return b.String()
}

// LegClosed renders the alert for one closed leg.
func (a Alerts) LegClosed(trade *domain.Trade, leg domain.Leg) string {
	icon, result := "✅", "TAKE PROFIT"
	if leg.Status == domain.LegStopLoss {
		icon, result = "❌", "STOP LOSS"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 %s\n", a.BotName)
	fmt.Fprintf(&b, "%s %s #%s\n", icon, trade.Symbol, trade.ID)
	fmt.Fprintf(&b, "Strategy: %s\n", leg.Name)
	fmt.Fprintf(&b, "Result: %s\n", result)
	fmt.Fprintf(&b, "Side: %s\n", trade.Side)
	fmt.Fprintf(&b, "Entry: %.6f\n", trade.EntryPrice)
	fmt.Fprintf(&b, "Close: %.6f\n", leg.ClosePrice)
	fmt.Fprintf(&b, "PnL: %+.2f%%\n", leg.PnLPct)
	return b.String()
}
