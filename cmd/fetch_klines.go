package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"volumeSpikeBot/internal/adapters/binanceclient"
	"volumeSpikeBot/internal/adapters/csvledger"
)

func fetchKlinesCmd() *cobra.Command {
	var (
		symbol   string
		interval string
		days     int
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "fetch-klines",
		Short: "Download historical klines to CSV for replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, appLogger, err := loadConfig()
			if err != nil {
				return err
			}
			if interval == "" {
				interval = cfg.Strategy.Interval
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			binanceClient, err := binanceclient.New(binanceclient.Config{
				APIKey:     cfg.APIKey,
				SecretKey:  cfg.SecretKey,
				UseTestnet: cfg.IsTestnet,
				Logger:     appLogger,
			})
			if err != nil {
				return err
			}

			symbol = strings.ToUpper(symbol)
			end := time.Now().UTC()
			start := end.AddDate(0, 0, -days)

			appLogger.Info(ctx, "Fetching klines", map[string]interface{}{
				"symbol": symbol, "interval": interval, "start": start, "end": end,
			})
			klines, err := binanceClient.GetKlinesRange(ctx, symbol, interval, start, end)
			if err != nil {
				appLogger.Error(ctx, err, "Error fetching klines")
				return err
			}

			filename := filepath.Join(outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", symbol, interval, start.Format("20060102"), end.Format("20060102")))
			if err := csvledger.WriteKlines(klines, filename); err != nil {
				appLogger.Error(ctx, err, "Error writing CSV")
				return err
			}
			appLogger.Info(ctx, "Saved klines", map[string]interface{}{"filename": filename, "count": len(klines)})
			fmt.Fprintln(cmd.OutOrStdout(), filename)
			return nil
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "ETHUSDT", "Futures symbol")
	cmd.Flags().StringVarP(&interval, "interval", "i", "", "Kline interval (defaults to the strategy interval)")
	cmd.Flags().IntVarP(&days, "days", "d", 30, "Days of history to fetch")
	cmd.Flags().StringVarP(&outDir, "out", "o", "data", "Output directory")
	return cmd
}
