package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"volumeSpikeBot/internal/adapters/csvledger"
	"volumeSpikeBot/internal/adapters/filestore"
	"volumeSpikeBot/internal/analytics"
	"volumeSpikeBot/internal/app"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
)

func replayCmd() *cobra.Command {
	var (
		symbol        string
		benchmarkFile string
		ledgerOut     string
	)
	cmd := &cobra.Command{
		Use:   "replay <klines.csv>",
		Short: "Replay recorded klines through the classifier and print leg performance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, appLogger, err := loadConfig()
			if err != nil {
				return err
			}
			strat := cfg.Strategy

			klines, err := csvledger.ReadKlines(args[0])
			if err != nil {
				return fmt.Errorf("read klines: %w", err)
			}
			if symbol == "" && len(klines) > 0 {
				symbol = klines[0].Symbol
			}

			replayCfg := app.ReplayConfig{
				Symbol:          strings.ToUpper(symbol),
				LookbackCandles: strat.LookbackCandles,
				RunID:           "replay-" + uuid.NewString(),
			}
			if replayCfg.Lifecycle, err = strat.LifecycleConfig(); err != nil {
				return err
			}
			if benchmarkFile != "" {
				if replayCfg.Benchmark, err = csvledger.ReadKlines(benchmarkFile); err != nil {
					return fmt.Errorf("read benchmark klines: %w", err)
				}
			}

			classifier, err := strategy.New(strat.ClassifierConfig(), appLogger)
			if err != nil {
				return err
			}

			// Replays never touch the live trade registry.
			dir, err := os.MkdirTemp("", "volumebot-replay-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			store, err := filestore.New(filestore.Config{Dir: dir, Logger: appLogger})
			if err != nil {
				return err
			}

			var sink ports.Ledger
			if ledgerOut != "" {
				if sink, err = csvledger.NewLedger(ledgerOut, appLogger); err != nil {
					return err
				}
			}

			result, err := app.Replay(ctx, replayCfg, klines, classifier, store, sink, appLogger)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), replayCfg.Symbol, result)
			return nil
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Symbol name (defaults to the CSV symbol column)")
	cmd.Flags().StringVarP(&benchmarkFile, "benchmark", "b", "", "Benchmark klines CSV for the correlation figure")
	cmd.Flags().StringVarP(&ledgerOut, "ledger", "l", "", "Write the replay ledger to this CSV file")
	return cmd
}

func printReport(out io.Writer, symbol string, result *app.ReplayResult) {
	fmt.Fprintf(out, "%s: %d signals, %d trades\n\n", symbol, result.Signals, result.Trades)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Leg\tClosed\tTP\tSL\tWinRate\tTotalPnL%\tAvgPnL%\tPF\tMaxDD%\tAvgHold\t")
	row := func(m analytics.PerformanceMetrics) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t%+.2f\t%+.2f\t%.2f\t%.2f\t%s\t\n",
			m.Leg, m.Closed, m.TakeProfits, m.StopLosses, m.WinRate*100,
			m.TotalPnLPct, m.AveragePnLPct, m.ProfitFactor, m.MaxDrawdownPct, m.AverageHold)
	}
	for _, m := range result.Report.Legs {
		row(m)
	}
	overall := result.Report.Overall
	overall.Leg = "ALL"
	row(overall)
	w.Flush()

	months := result.Report.GetMonthlyReturns()
	if len(months) == 0 {
		return
	}
	fmt.Fprintln(out, "\nMonthly PnL%")
	for _, m := range months {
		fmt.Fprintf(out, "  %s  %+.2f\n", m.Month.Format("2006-01"), m.Return)
	}
}
