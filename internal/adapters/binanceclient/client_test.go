package binanceclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestGetKlines(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[
			[1709251200000,"3400.5","3410.25","3399.0","3405.75","1234.5",1709251499999,"4200000.0",100,"600","2000000","0"],
			[1709251500000,"3405.75","3406.0","3390.1","3391.0","98.1",1709251799999,"333000.0",20,"50","160000","0"]
		]`))
	})
	c.now = func() time.Time { return time.UnixMilli(1709251600000) }

	klines, err := c.GetKlines(context.Background(), "ETHUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Contains(t, gotQuery, "symbol=ETHUSDT")
	assert.Contains(t, gotQuery, "interval=5m")
	assert.Contains(t, gotQuery, "limit=2")

	k := klines[0]
	assert.Equal(t, "ETHUSDT", k.Symbol)
	assert.Equal(t, "5m", k.Interval)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), k.OpenTime)
	assert.Equal(t, 3400.5, k.Open)
	assert.Equal(t, 3405.75, k.Close)
	assert.Equal(t, 1234.5, k.Volume)
	assert.True(t, k.IsFinal)
	assert.False(t, klines[1].IsFinal, "bar closing after now is still forming")
}

func TestGetKlines_APIErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{name: "rate limited", code: -1003, want: ports.ErrRateLimited},
		{name: "invalid symbol", code: -1121, want: ports.ErrNotFound},
		{name: "bad parameter", code: -1102, want: ports.ErrInvalidRequest},
		{name: "unmapped", code: -9999, want: ports.ErrDataFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":` + strconv.Itoa(tt.code) + `,"msg":"failure"}`))
			})
			_, err := c.GetKlines(context.Background(), "XXXUSDT", "5m", 10)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetTickers24h(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/24hr", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"symbol":"ETHUSDT","lastPrice":"3400.1","volume":"1000","quoteVolume":"3400100.5"},
			{"symbol":"BROKEN","lastPrice":"x","volume":"1","quoteVolume":"1"},
			{"symbol":"SOLUSDT","lastPrice":"150","volume":"20","quoteVolume":"3000"}
		]`))
	})

	tickers, err := c.GetTickers24h(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "ETHUSDT", tickers[0].Symbol)
	assert.Equal(t, 3400100.5, tickers[0].QuoteVolume)
	assert.Equal(t, "SOLUSDT", tickers[1].Symbol)
}

func TestGetTicker24h(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"3400.1","volume":"1000","quoteVolume":"52000000"}`))
	})

	ticker, err := c.GetTicker24h(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 52000000.0, ticker.QuoteVolume)
}

func TestHandleError_Network(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Logger: &mockLogger{}})
	require.NoError(t, err)
	_, err = c.GetKlines(context.Background(), "ETHUSDT", "5m", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetTickers24h(ctx)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}

func TestParseKline(t *testing.T) {
	k, err := ParseKline("1", "2", "0.5", "1.5", "10")
	require.NoError(t, err)
	assert.Equal(t, 15.0, k.QuoteVolume())

	_, err = ParseKline("1", "2", "bad", "1.5", "10")
	assert.ErrorContains(t, err, "low price")
}
