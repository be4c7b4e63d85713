// Package telegram delivers alerts through the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"volumeSpikeBot/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
	// Telegram allows roughly one message per second per chat.
	defaultPerSecond = 1.0
	defaultBurst     = 5
)

// Config holds configuration for the Telegram notifier.
type Config struct {
	Token      string
	ChatID     string
	BaseURL    string        // Defaults to the public Bot API
	Timeout    time.Duration // Per request, defaults to 10s
	PerSecond  float64       // Delivery rate limit, defaults to 1
	Burst      int
	HTTPClient *http.Client
	Logger     ports.Logger
}

// Notifier implements ports.Notifier.
type Notifier struct {
	endpoint string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
	logger   ports.Logger
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

// New creates a Notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("%w: telegram token and chat id are required", ports.ErrConfigurationError)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = defaultPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Notifier{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", base, cfg.Token),
		chatID:   cfg.ChatID,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		logger:   cfg.Logger,
	}, nil
}

// Send posts text to the configured chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ports.ErrNotification, err)
	}

	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ports.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		// The request URL carries the bot token; keep it out of the error.
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %w", ports.ErrNotification, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed apiResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %s", ports.ErrNotification, ports.ErrRateLimited, parsed.Description)
	}
	if resp.StatusCode/100 != 2 || !parsed.OK {
		return fmt.Errorf("%w: status %d: %s", ports.ErrNotification, resp.StatusCode, parsed.Description)
	}

	n.logger.Debug(ctx, "Alert delivered", map[string]interface{}{"chars": len(text)})
	return nil
}
