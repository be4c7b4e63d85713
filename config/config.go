package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"volumeSpikeBot/internal/adapters/logger" // Import the logger package for LogLevel
	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/lifecycle"
	"volumeSpikeBot/internal/ports"
	"volumeSpikeBot/internal/strategy"
	"volumeSpikeBot/internal/strategy/indicators"
)

// Disabled turns off an optional ledger sink when used as its path.
const Disabled = "off"

// intervals maps Binance kline intervals to their duration.
var intervals = map[string]time.Duration{
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute, "15m": 15 * time.Minute, "30m": 30 * time.Minute,
	"1h": time.Hour, "2h": 2 * time.Hour, "4h": 4 * time.Hour, "6h": 6 * time.Hour, "8h": 8 * time.Hour, "12h": 12 * time.Hour,
	"1d": 24 * time.Hour,
}

// Config holds all application configuration.
type Config struct {
	// Alerts
	ChatID          string
	BotToken        string
	AlertsPerSecond float64

	// Binance API (optional, every endpoint used is public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Storage
	DataDir       string // Trade counter and active registry
	LedgerDBPath  string // SQLite ledger, "off" to disable
	LedgerCSVPath string // CSV ledger, "off" to disable

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "text" or "json"

	// Metrics
	MetricsAddr string // Empty disables the metrics endpoint

	Strategy StrategyFile
}

// StrategyFile is the YAML strategy configuration selected with --config.
type StrategyFile struct {
	Name            string  `yaml:"name"`
	Interval        string  `yaml:"interval"`
	Min24hVolume    float64 `yaml:"min_24h_volume"`
	LookbackCandles int     `yaml:"lookback_candles"`
	VolumeLookback  int     `yaml:"volume_lookback"`

	VolMultTrend   float64 `yaml:"vol_mult_trend"`
	VolMultCounter float64 `yaml:"vol_mult_counter"`

	EMAFast int `yaml:"ema_fast"`
	EMASlow int `yaml:"ema_slow"`

	MinBodyTrend   float64 `yaml:"min_body_trend"`
	MinBodyCounter float64 `yaml:"min_body_counter"`

	ATRLen               int     `yaml:"atr_len"`
	ATRGapMult           float64 `yaml:"atr_gap_mult"`
	EMAFastProximityMult float64 `yaml:"ema_fast_proximity_mult"`
	EMASlowProximityMult float64 `yaml:"ema_slow_proximity_mult"`

	CooldownBars int `yaml:"cooldown_bars"`

	Strategies []domain.StrategyLeg `yaml:"strategies"`

	// Universe
	QuoteSuffix     string   `yaml:"quote_suffix"`
	Blacklist       []string `yaml:"blacklist"`
	BenchmarkSymbol string   `yaml:"benchmark_symbol"` // Correlation reference

	// Feed and scheduling
	StreamsPerConnection int           `yaml:"streams_per_connection"`
	UniverseRefresh      time.Duration `yaml:"universe_refresh"`
	ReconnectBackoff     time.Duration `yaml:"reconnect_backoff"`
	RestartInterval      time.Duration `yaml:"restart_interval"`
}

// DefaultStrategy returns the settings used when the YAML file omits a field.
func DefaultStrategy() StrategyFile {
	return StrategyFile{
		Name:                 "volume-spike",
		Interval:             "5m",
		Min24hVolume:         50_000_000,
		LookbackCandles:      300,
		VolumeLookback:       20,
		VolMultTrend:         3,
		VolMultCounter:       5,
		EMAFast:              20,
		EMASlow:              200,
		MinBodyTrend:         60,
		MinBodyCounter:       50,
		ATRLen:               14,
		ATRGapMult:           1,
		EMAFastProximityMult: 0.5,
		EMASlowProximityMult: 0.5,
		CooldownBars:         5,
		Strategies: []domain.StrategyLeg{
			{Name: "3:1", TakeProfitPct: 0.03, StopLossPct: 0.01},
			{Name: "6:2", TakeProfitPct: 0.06, StopLossPct: 0.02},
		},
		QuoteSuffix:          "USDT",
		Blacklist:            []string{"BTCUSDT"},
		BenchmarkSymbol:      "BTCUSDT",
		StreamsPerConnection: 30,
		UniverseRefresh:      time.Hour,
		ReconnectBackoff:     30 * time.Second,
		RestartInterval:      24 * time.Hour,
	}
}

// LoadConfig loads configuration from environment variables (.env file) and
// the strategy YAML file at path. An empty path uses DefaultStrategy.
func LoadConfig(path string) (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []error // Collect validation errors

	// Alerts
	cfg.ChatID = getEnv("CHAT_ID", "")
	cfg.BotToken = getEnv("BOT_TOKEN", "")
	if (cfg.ChatID == "") != (cfg.BotToken == "") {
		errs = append(errs, errors.New("CHAT_ID and BOT_TOKEN must be set together"))
	}
	cfg.AlertsPerSecond, err = getEnvAsFloatRequired("ALERTS_PER_SECOND", 1)
	if err != nil {
		errs = append(errs, err)
	} else if cfg.AlertsPerSecond <= 0 {
		errs = append(errs, errors.New("ALERTS_PER_SECOND must be positive"))
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Storage
	cfg.DataDir = getEnv("DATA_DIR", "./data")
	cfg.LedgerDBPath = getEnv("LEDGER_DB_PATH", filepath.Join(cfg.DataDir, "trade_ledger.db"))
	cfg.LedgerCSVPath = getEnv("LEDGER_CSV_PATH", filepath.Join(cfg.DataDir, "trade_ledger.csv"))

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Strategy file
	cfg.Strategy, err = LoadStrategy(path)
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, cfg.Strategy.Validate()...)
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", ports.ErrConfigurationError, errors.Join(errs...))
	}

	return cfg, nil
}

// AlertsEnabled reports whether alert delivery is configured.
func (c *Config) AlertsEnabled() bool {
	return c.ChatID != "" && c.BotToken != ""
}

// LoadStrategy reads the YAML strategy file over the defaults.
func LoadStrategy(path string) (StrategyFile, error) {
	s := DefaultStrategy()
	if path == "" {
		return s, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return s, fmt.Errorf("open strategy config: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("decode strategy config %s: %w", path, err)
	}
	return s, nil
}

// Validate returns every problem found in the strategy settings.
func (s StrategyFile) Validate() []error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name must be set"))
	}
	if _, err := s.BarDuration(); err != nil {
		errs = append(errs, err)
	}
	if s.Min24hVolume < 0 {
		errs = append(errs, errors.New("min_24h_volume cannot be negative"))
	}
	if s.QuoteSuffix == "" {
		errs = append(errs, errors.New("quote_suffix must be set"))
	}
	if s.BenchmarkSymbol == "" {
		errs = append(errs, errors.New("benchmark_symbol must be set"))
	}
	if s.StreamsPerConnection <= 0 {
		errs = append(errs, errors.New("streams_per_connection must be positive"))
	}
	if s.UniverseRefresh <= 0 || s.ReconnectBackoff <= 0 || s.RestartInterval <= 0 {
		errs = append(errs, errors.New("universe_refresh, reconnect_backoff and restart_interval must be positive"))
	}

	classifier := s.ClassifierConfig()
	if err := classifier.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.EMAFast >= s.EMASlow {
		errs = append(errs, errors.New("ema_fast must be less than ema_slow"))
	}
	if required := max(s.ATRLen+1, s.VolumeLookback+indicators.ExcludeRecent); s.LookbackCandles < required {
		errs = append(errs, fmt.Errorf("lookback_candles (%d) must be at least %d", s.LookbackCandles, required))
	}

	if lc, err := s.LifecycleConfig(); err == nil {
		if err := lc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// BarDuration returns the length of one bar of the configured interval.
func (s StrategyFile) BarDuration() (time.Duration, error) {
	d, ok := intervals[s.Interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", s.Interval)
	}
	return d, nil
}

// ClassifierConfig maps the file onto the classifier settings.
func (s StrategyFile) ClassifierConfig() strategy.Config {
	return strategy.Config{
		Indicators: indicators.Config{
			EMAFastSpan:    s.EMAFast,
			EMASlowSpan:    s.EMASlow,
			ATRPeriod:      s.ATRLen,
			VolumeLookback: s.VolumeLookback,
		},
		VolMultTrend:         s.VolMultTrend,
		VolMultCounter:       s.VolMultCounter,
		MinBodyTrend:         s.MinBodyTrend,
		MinBodyCounter:       s.MinBodyCounter,
		ATRGapMult:           s.ATRGapMult,
		EMAFastProximityMult: s.EMAFastProximityMult,
		EMASlowProximityMult: s.EMASlowProximityMult,
		CooldownBars:         s.CooldownBars,
	}
}

// LifecycleConfig maps the file onto the trade lifecycle settings.
func (s StrategyFile) LifecycleConfig() (lifecycle.Config, error) {
	d, err := s.BarDuration()
	if err != nil {
		return lifecycle.Config{}, err
	}
	return lifecycle.Config{
		Legs:         s.Strategies,
		CooldownBars: s.CooldownBars,
		BarDuration:  d,
	}, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
