// Package analytics summarizes closed trade legs from the ledger.
package analytics

import (
	"sort"
	"time"

	"volumeSpikeBot/internal/domain"
)

// PerformanceMetrics holds the results of one leg, or of every leg combined.
// PnL values are percentages of the entry price.
type PerformanceMetrics struct {
	Leg string

	// Basic Metrics
	Closed        int
	TakeProfits   int
	StopLosses    int
	WinRate       float64
	TotalPnLPct   float64
	AveragePnLPct float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64
	Expectancy    float64

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	MaxDrawdownPct       float64 // Largest peak-to-trough fall of cumulative PnL
	AverageHold          time.Duration
}

// Report is the per-leg breakdown plus the combined total.
type Report struct {
	Overall        PerformanceMetrics
	Legs           []PerformanceMetrics // Sorted by leg name
	MonthlyReturns map[string]float64   // "2006-01" -> summed PnL%
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

type closedLeg struct {
	rec    domain.LedgerRecord
	opened time.Time
}

// AnalyzePerformance builds a Report from ledger records. Only CLOSE rows count;
// OPEN rows supply the entry time used for the average hold.
func AnalyzePerformance(records []domain.LedgerRecord) *Report {
	report := &Report{MonthlyReturns: make(map[string]float64)}

	opened := make(map[string]time.Time)
	for _, r := range records {
		if r.Event == domain.LedgerOpen {
			opened[r.TradeID] = r.Time
		}
	}

	var closed []closedLeg
	for _, r := range records {
		if r.Event == domain.LedgerClose && r.Status.IsClosed() {
			closed = append(closed, closedLeg{rec: r, opened: opened[r.TradeID]})
		}
	}
	// Sort by close time
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].rec.Time.Before(closed[j].rec.Time)
	})

	byLeg := make(map[string][]closedLeg)
	for _, c := range closed {
		byLeg[c.rec.Leg] = append(byLeg[c.rec.Leg], c)
		report.MonthlyReturns[c.rec.Time.Format("2006-01")] += c.rec.PnLPct
	}

	report.Overall = summarize("ALL", closed)
	names := make([]string, 0, len(byLeg))
	for name := range byLeg {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Legs = append(report.Legs, summarize(name, byLeg[name]))
	}
	return report
}

func summarize(leg string, legs []closedLeg) PerformanceMetrics {
	m := PerformanceMetrics{Leg: leg}
	if len(legs) == 0 {
		return m
	}

	var grossWin, grossLoss, cumulative, peak float64
	var wins, losses int
	var consecutiveWins, consecutiveLosses int
	var held time.Duration
	var heldCount int

	for _, c := range legs {
		pnl := c.rec.PnLPct
		m.Closed++
		switch c.rec.Status {
		case domain.LegTakeProfit:
			m.TakeProfits++
		case domain.LegStopLoss:
			m.StopLosses++
		}

		if pnl > 0 {
			wins++
			grossWin += pnl
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			losses++
			grossLoss += pnl
			consecutiveLosses++
			consecutiveWins = 0
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, consecutiveWins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, consecutiveLosses)

		cumulative += pnl
		peak = max(peak, cumulative)
		m.MaxDrawdownPct = max(m.MaxDrawdownPct, peak-cumulative)

		if !c.opened.IsZero() && c.rec.Time.After(c.opened) {
			held += c.rec.Time.Sub(c.opened)
			heldCount++
		}
	}

	m.TotalPnLPct = grossWin + grossLoss
	m.AveragePnLPct = m.TotalPnLPct / float64(m.Closed)
	m.WinRate = float64(wins) / float64(m.Closed)
	if wins > 0 {
		m.AverageWin = grossWin / float64(wins)
	}
	if losses > 0 {
		m.AverageLoss = grossLoss / float64(losses)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossWin / -grossLoss
	}
	m.Expectancy = m.WinRate*m.AverageWin + (1-m.WinRate)*m.AverageLoss
	if heldCount > 0 {
		m.AverageHold = held / time.Duration(heldCount)
	}
	return m
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (r *Report) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(r.MonthlyReturns))
	for month, pnl := range r.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: pnl,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
