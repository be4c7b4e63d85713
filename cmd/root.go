// Package cmd holds the volumebot command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"volumeSpikeBot/config"
	"volumeSpikeBot/internal/adapters/logger"
	"volumeSpikeBot/internal/ports"
)

var configPath string

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "volumebot",
		Short: "Volume spike signal bot for Binance USDⓈ-M futures",
		Long: `volumebot watches closed futures klines for volume spikes, classifies
them, opens paper trades with fixed take-profit/stop-loss legs and sends
Telegram alerts.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Strategy YAML file (defaults are used when empty)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(fetchKlinesCmd())
	rootCmd.AddCommand(replayCmd())
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and builds the logger it selects.
func loadConfig() (*config.Config, ports.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.New(cfg.LogFormat, cfg.LogLevel), nil
}
