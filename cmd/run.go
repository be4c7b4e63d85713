package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"volumeSpikeBot/config"
	"volumeSpikeBot/internal/adapters/binanceclient"
	"volumeSpikeBot/internal/adapters/binancefeed"
	"volumeSpikeBot/internal/adapters/csvledger"
	"volumeSpikeBot/internal/adapters/filestore"
	"volumeSpikeBot/internal/adapters/ledger"
	"volumeSpikeBot/internal/adapters/metrics"
	"volumeSpikeBot/internal/adapters/sqlite"
	"volumeSpikeBot/internal/adapters/telegram"
	"volumeSpikeBot/internal/app"
	"volumeSpikeBot/internal/history"
	"volumeSpikeBot/internal/lifecycle"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live signal bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}
}

func runBot(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load Configuration and Logger
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{
		"level":    cfg.LogLevel.String(),
		"strategy": cfg.Strategy.Name,
		"runId":    runID,
	})
	strat := cfg.Strategy

	// 2. Metrics
	m := metrics.New(prometheus.NewRegistry())
	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr, m.Gatherer())
		appLogger.Info(ctx, "Metrics endpoint started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 3. Trade store and ledger sinks
	store, err := filestore.New(filestore.Config{Dir: cfg.DataDir, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade store")
		return err
	}
	sinks, closeSinks, err := openLedgers(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeSinks()

	// 4. Alerts
	var notifier ports.Notifier
	if cfg.AlertsEnabled() {
		tg, err := telegram.New(telegram.Config{
			Token:     cfg.BotToken,
			ChatID:    cfg.ChatID,
			PerSecond: cfg.AlertsPerSecond,
			Logger:    appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			return err
		}
		notifier = tg
	} else {
		appLogger.Warn(ctx, "CHAT_ID/BOT_TOKEN not set, alerts disabled")
	}

	// 5. Exchange adapters
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		return err
	}
	feed, err := binancefeed.New(binancefeed.Config{
		StreamsPerConnection: strat.StreamsPerConnection,
		Backoff:              strat.ReconnectBackoff,
		Logger:               appLogger,
		Metrics:              m,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize kline feed")
		return err
	}

	// 6. Classifier and trade lifecycle
	classifier, err := strategy.New(strat.ClassifierConfig(), appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize classifier")
		return err
	}
	lifecycleCfg, err := strat.LifecycleConfig()
	if err != nil {
		return err
	}

	pool := app.NewTaskPool(ctx, 0, 0, appLogger, m)
	reporter, err := app.NewReporter(runID, ledger.NewMulti(sinks...), notifier, app.Alerts{
		BotName:  strat.Name,
		FastSpan: strat.EMAFast,
		SlowSpan: strat.EMASlow,
	}, pool, appLogger, m)
	if err != nil {
		return err
	}
	manager, err := lifecycle.NewManager(lifecycleCfg, store, appLogger, lifecycle.WithListener(reporter))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade manager")
		return err
	}

	// 7. Universe and dispatcher
	universe, err := app.NewUniverse(app.UniverseConfig{
		QuoteSuffix:    strat.QuoteSuffix,
		Blacklist:      strat.Blacklist,
		MinQuoteVolume: strat.Min24hVolume,
	}, binanceClient, appLogger, m)
	if err != nil {
		return err
	}
	dispatcher, err := app.NewDispatcher(app.DispatcherConfig{
		Interval:        strat.Interval,
		LookbackCandles: strat.LookbackCandles,
	}, binanceClient, history.NewStore(strat.LookbackCandles), classifier, manager, universe, appLogger, m)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize dispatcher")
		return err
	}

	// 8. Application Service
	service, err := app.NewSignalService(app.ServiceConfig{
		Interval:        strat.Interval,
		UniverseRefresh: strat.UniverseRefresh,
		RestartInterval: strat.RestartInterval,
		BenchmarkSymbol: strat.BenchmarkSymbol,
	}, appLogger, binanceClient, feed, universe, dispatcher, manager, pool)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal service")
		return err
	}
	appLogger.Info(ctx, "Signal service initialized")

	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Signal service exited with error")
		return err
	}
	appLogger.Info(ctx, "Application finished gracefully.")
	return nil
}

// openLedgers opens the enabled ledger sinks. The returned func closes them.
func openLedgers(cfg *config.Config, appLogger ports.Logger) ([]ports.Ledger, func(), error) {
	var sinks []ports.Ledger
	closeFn := func() {}

	if cfg.LedgerDBPath != config.Disabled {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.LedgerDBPath, Logger: appLogger})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		sinks = append(sinks, repo)
		closeFn = func() {
			if err := repo.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing database repository")
			}
		}
	}
	if cfg.LedgerCSVPath != config.Disabled {
		csvLedger, err := csvledger.NewLedger(cfg.LedgerCSVPath, appLogger)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("open csv ledger: %w", err)
		}
		sinks = append(sinks, csvLedger)
	}
	return sinks, closeFn, nil
}
