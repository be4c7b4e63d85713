package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"volumeSpikeBot/internal/lifecycle"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
)

// emptyUniverseRetry caps the feed cycle while there is nothing to subscribe.
const emptyUniverseRetry = time.Minute

// ServiceConfig holds the scheduling settings of the live service.
type ServiceConfig struct {
	Interval        string
	UniverseRefresh time.Duration // e.g., 1h
	RestartInterval time.Duration // Full feed restart, e.g., 24h
	BenchmarkSymbol string        // Correlation reference, e.g., "BTCUSDT"
}

// SignalService orchestrates the bot: universe, feed, dispatcher and side-effect pool.
type SignalService struct {
	cfg        ServiceConfig
	logger     ports.Logger
	market     ports.MarketData
	feed       ports.KlineStream
	universe   *Universe
	dispatcher *Dispatcher
	manager    *lifecycle.Manager
	pool       *TaskPool
}

// NewSignalService creates a new application service instance.
func NewSignalService(
	cfg ServiceConfig,
	logger ports.Logger,
	market ports.MarketData,
	feed ports.KlineStream,
	universe *Universe,
	dispatcher *Dispatcher,
	manager *lifecycle.Manager,
	pool *TaskPool,
) (*SignalService, error) {
	if logger == nil || market == nil || feed == nil || universe == nil || dispatcher == nil || manager == nil || pool == nil {
		return nil, fmt.Errorf("missing required dependencies for SignalService")
	}
	if cfg.Interval == "" {
		return nil, fmt.Errorf("%w: interval is required", ports.ErrConfigurationError)
	}
	if cfg.UniverseRefresh <= 0 || cfg.RestartInterval <= 0 {
		return nil, fmt.Errorf("%w: universe refresh and restart interval must be positive", ports.ErrConfigurationError)
	}
	return &SignalService{
		cfg:        cfg,
		logger:     logger,
		market:     market,
		feed:       feed,
		universe:   universe,
		dispatcher: dispatcher,
		manager:    manager,
		pool:       pool,
	}, nil
}

// Start runs the service until ctx is canceled or a shutdown signal arrives.
func (s *SignalService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Signal Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Recover persisted trades
	if err := s.manager.Load(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to load active trades")
		return fmt.Errorf("failed to load active trades: %w", err)
	}

	// 2. Initial universe; while it is empty the feed cycle is short so the
	// next successful refresh gets subscribed
	_ = s.universe.Refresh(ctx)

	// 3. Benchmark returns for the correlation field of alerts
	s.loadBenchmark(ctx)

	// --- Background workers ---
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.universe.Run(ctx, s.cfg.UniverseRefresh)
	}()

	// --- Feed loop, restarted every RestartInterval ---
	var runErr error
	for ctx.Err() == nil {
		symbols := s.subscriptions()
		cycle := s.cycleLength(len(symbols))
		s.logger.Info(ctx, "Starting feed cycle", map[string]interface{}{
			"symbols":      len(symbols),
			"activeTrades": s.manager.ActiveCount(),
			"restartIn":    cycle.String(),
		})

		feedCtx, feedCancel := context.WithTimeout(ctx, cycle)
		err := s.feed.Run(feedCtx, symbols, s.cfg.Interval, s.dispatcher.Enqueue)
		feedCancel()
		if err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, err, "Feed stopped with error")
			runErr = fmt.Errorf("feed stopped: %w", err)
			cancel()
			break
		}
		if ctx.Err() == nil && len(symbols) == 0 {
			s.logger.Warn(ctx, "No symbols to subscribe, retrying feed cycle")
		} else if ctx.Err() == nil {
			s.logger.Info(ctx, "Scheduled feed restart")
			s.loadBenchmark(ctx)
		}
	}

	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
	wg.Wait()
	s.pool.Close()
	s.logger.Info(ctx, "Signal Service stopped.")
	return runErr
}

// cycleLength bounds one feed cycle. With nothing subscribed the cycle ends at
// the next universe refresh or after a minute, whichever comes first.
func (s *SignalService) cycleLength(symbols int) time.Duration {
	if symbols > 0 {
		return s.cfg.RestartInterval
	}
	return min(s.cfg.UniverseRefresh, emptyUniverseRetry, s.cfg.RestartInterval)
}

// subscriptions is the universe plus every instrument that still has an open trade.
func (s *SignalService) subscriptions() []string {
	set := make(map[string]struct{})
	for _, sym := range s.universe.Symbols() {
		set[sym] = struct{}{}
	}
	for _, t := range s.manager.Active() {
		set[t.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *SignalService) loadBenchmark(ctx context.Context) {
	if s.cfg.BenchmarkSymbol == "" {
		return
	}
	klines, err := s.market.GetKlines(ctx, s.cfg.BenchmarkSymbol, s.cfg.Interval, strategy.CorrelationBars)
	if err != nil {
		s.logger.Warn(ctx, "Benchmark klines unavailable, correlation disabled", map[string]interface{}{
			"symbol": s.cfg.BenchmarkSymbol,
			"error":  err.Error(),
		})
		s.dispatcher.SetBenchmark(nil)
		return
	}
	s.dispatcher.SetBenchmark(strategy.Returns(klines))
	s.logger.Info(ctx, "Benchmark returns loaded", map[string]interface{}{"symbol": s.cfg.BenchmarkSymbol, "bars": len(klines)})
}
