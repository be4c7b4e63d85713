package domain

import (
	"fmt"
	"time"
)

// TradeIDWidth is the zero padded width of formatted trade ids.
const TradeIDWidth = 6

// FormatTradeID renders a numeric trade sequence as a zero padded id.
func FormatTradeID(seq int64) string {
	return fmt.Sprintf("%0*d", TradeIDWidth, seq)
}

// StrategyLeg is a named take-profit/stop-loss ratio applied to every trade.
// Percentages are fractions, e.g. 0.06 for +6%.
type StrategyLeg struct {
	Name          string  `yaml:"name" json:"name"`
	TakeProfitPct float64 `yaml:"take_profit" json:"take_profit"`
	StopLossPct   float64 `yaml:"stop_loss" json:"stop_loss"`
}

// Leg is the per-trade instance of a StrategyLeg.
type Leg struct {
	Name            string    `json:"name"`
	TakeProfitPrice float64   `json:"tp"`
	StopLossPrice   float64   `json:"sl"`
	Status          LegStatus `json:"status"`
	ClosePrice      float64   `json:"close_price,omitempty"`
	PnLPct          float64   `json:"pnl,omitempty"`
	ClosedAt        time.Time `json:"closed_at,omitempty"`
}

// IsOpen checks if the leg is still waiting for a level to be touched.
func (l *Leg) IsOpen() bool {
	return l.Status == LegOpen
}

// Trade represents a simulated multi-leg position.
type Trade struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Side       OrderSide     `json:"side"`
	EntryPrice float64       `json:"entry"`
	OpenTime   time.Time     `json:"time"`
	Labels     []SignalLabel `json:"signals"`
	VolumeText string        `json:"vol_text"`
	Legs       []Leg         `json:"strategies"`
}

// IsActive reports whether at least one leg is still open.
func (t *Trade) IsActive() bool {
	for i := range t.Legs {
		if t.Legs[i].IsOpen() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the trade.
func (t *Trade) Clone() *Trade {
	c := *t
	c.Labels = append([]SignalLabel(nil), t.Labels...)
	c.Legs = append([]Leg(nil), t.Legs...)
	return &c
}

// NewLeg computes absolute take-profit/stop-loss prices for a strategy leg.
// For BUY the take-profit sits above entry; for SELL the levels are mirrored.
func NewLeg(s StrategyLeg, side OrderSide, entry float64) Leg {
	sl := s.StopLossPct
	if sl < 0 {
		sl = -sl
	}
	leg := Leg{Name: s.Name, Status: LegOpen}
	if side == Buy {
		leg.TakeProfitPrice = entry * (1 + s.TakeProfitPct)
		leg.StopLossPrice = entry * (1 - sl)
	} else {
		leg.TakeProfitPrice = entry * (1 - s.TakeProfitPct)
		leg.StopLossPrice = entry * (1 + sl)
	}
	return leg
}

// PnLPercent returns the percentage result of closing at price.
// The sign is flipped for SELL trades.
func PnLPercent(side OrderSide, entry, closePrice float64) float64 {
	pnl := (closePrice - entry) / entry * 100
	if side == Sell {
		return -pnl
	}
	return pnl
}

// LedgerEvent distinguishes ledger rows.
type LedgerEvent string

const (
	LedgerOpen  LedgerEvent = "OPEN"
	LedgerClose LedgerEvent = "CLOSE"
)

// LedgerRecord is one flat row in the trade ledger.
type LedgerRecord struct {
	Time       time.Time
	Event      LedgerEvent
	TradeID    string
	Symbol     string
	Side       OrderSide
	Labels     string
	VolumeText string
	EntryPrice float64
	Leg        string    // empty on OPEN rows
	Status     LegStatus // leg status, or OPEN for creation rows
	ClosePrice float64
	PnLPct     float64
	RunID      string
}
