// Package binanceclient adapts the Binance USDⓈ-M futures REST API to ports.MarketData.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlinesPerRequest = 1500
)

// Client implements the ports.MarketData interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	now           func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Keys are optional; every call made
// by the bot uses public market data endpoints.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": client.BaseURL,
		"testnet": cfg.UseTestnet,
	})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / orders
			mappedErr = ports.ErrRateLimited
		case -1001, -1016: // Internal disconnect / service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		case -1007: // Timeout waiting for response from backend server
			mappedErr = ports.ErrTimeout
		case -1121: // Invalid symbol
			mappedErr = ports.ErrNotFound
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrDataFetch
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrDataFetch, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs).UTC(), nil
}

// GetKlines retrieves the most recent klines for the symbol. The last kline may still be forming.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := c.now()
	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, now)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	from := start
	now := c.now()

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval, now)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allKlines = append(allKlines, dk)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{"symbol": symbol, "interval": interval, "count": len(allKlines)})
	return allKlines, nil
}

// GetTickers24h returns the rolling 24h statistics of every futures symbol.
func (c *Client) GetTickers24h(ctx context.Context) ([]domain.Ticker24h, error) {
	op := "GetTickers24h"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	tickers := make([]domain.Ticker24h, 0, len(stats))
	for _, s := range stats {
		t, err := translateTicker(s)
		if err != nil {
			// One malformed entry should not hide the rest of the market.
			c.logger.Warn(ctx, op+": skipping malformed ticker", map[string]interface{}{"symbol": s.Symbol, "error": err.Error()})
			continue
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// GetTicker24h returns the rolling 24h statistics of one symbol.
func (c *Client) GetTicker24h(ctx context.Context, symbol string) (*domain.Ticker24h, error) {
	op := "GetTicker24h"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s: %w", symbol, ports.ErrNotFound), op)
	}
	t, err := translateTicker(stats[0])
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return &t, nil
}

func translateTicker(s *futures.PriceChangeStats) (domain.Ticker24h, error) {
	if s == nil {
		return domain.Ticker24h{}, errors.New("received nil ticker")
	}
	last, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return domain.Ticker24h{}, fmt.Errorf("parsing last price '%s': %w", s.LastPrice, err)
	}
	vol, err := strconv.ParseFloat(s.Volume, 64)
	if err != nil {
		return domain.Ticker24h{}, fmt.Errorf("parsing volume '%s': %w", s.Volume, err)
	}
	quoteVol, err := strconv.ParseFloat(s.QuoteVolume, 64)
	if err != nil {
		return domain.Ticker24h{}, fmt.Errorf("parsing quote volume '%s': %w", s.QuoteVolume, err)
	}
	return domain.Ticker24h{Symbol: s.Symbol, LastPrice: last, Volume: vol, QuoteVolume: quoteVol}, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string, now time.Time) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	k, err := ParseKline(bk.Open, bk.High, bk.Low, bk.Close, bk.Volume)
	if err != nil {
		return nil, err
	}
	k.OpenTime = time.UnixMilli(bk.OpenTime).UTC()
	k.CloseTime = time.UnixMilli(bk.CloseTime).UTC()
	k.Symbol = symbol     // Use passed symbol as it's not in futures.Kline
	k.Interval = interval // Use passed interval
	k.IsFinal = k.CloseTime.Before(now)
	return k, nil
}

// ParseKline parses the decimal string fields Binance uses for prices and volume.
func ParseKline(open, high, low, cls, volume string) (*domain.Kline, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", open, err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", high, err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", low, err)
	}
	c, err := strconv.ParseFloat(cls, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", cls, err)
	}
	v, err := strconv.ParseFloat(volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", volume, err)
	}
	return &domain.Kline{Open: o, High: h, Low: l, Close: c, Volume: v}, nil
}
