package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/analytics"
	"volumeSpikeBot/internal/app"
	"volumeSpikeBot/internal/domain"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"run", "fetch-klines", "replay"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestReplayCmd_RequiresFile(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"replay"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestPrintReport(t *testing.T) {
	open := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.LedgerRecord{
		{Time: open, Event: domain.LedgerOpen, TradeID: "000001", Status: domain.LegOpen},
		{Time: open.Add(time.Hour), Event: domain.LedgerClose, TradeID: "000001", Leg: "3:1", Status: domain.LegTakeProfit, PnLPct: 3},
	}
	result := &app.ReplayResult{Signals: 2, Trades: 1, Records: records, Report: analytics.AnalyzePerformance(records)}

	var out bytes.Buffer
	printReport(&out, "ETHUSDT", result)

	text := out.String()
	assert.Contains(t, text, "ETHUSDT: 2 signals, 1 trades")
	assert.Contains(t, text, "3:1")
	assert.Contains(t, text, "ALL")
	assert.Contains(t, text, "2025-03  +3.00")
}
