package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

func testUniverseConfig() UniverseConfig {
	return UniverseConfig{QuoteSuffix: "USDT", Blacklist: []string{"BTCUSDT"}, MinQuoteVolume: 50_000_000}
}

func TestFilterTickers(t *testing.T) {
	tickers := []domain.Ticker24h{
		{Symbol: "SOLUSDT", QuoteVolume: 80_000_000},
		{Symbol: "ETHUSDT", QuoteVolume: 900_000_000},
		{Symbol: "BTCUSDT", QuoteVolume: 9_000_000_000}, // blacklisted
		{Symbol: "ETHBTC", QuoteVolume: 900_000_000},    // wrong quote
		{Symbol: "DOGEUSDT", QuoteVolume: 49_999_999},   // below floor
		{Symbol: "XRPUSDT", QuoteVolume: 50_000_000},    // floor is inclusive
	}

	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT", "XRPUSDT"}, FilterTickers(tickers, testUniverseConfig()))
	assert.Empty(t, FilterTickers(nil, testUniverseConfig()))
}

func TestUniverse_RefreshKeepsPreviousOnError(t *testing.T) {
	market := &mockMarket{tickers: []domain.Ticker24h{
		{Symbol: "ETHUSDT", QuoteVolume: 900_000_000},
		{Symbol: "SOLUSDT", QuoteVolume: 80_000_000},
	}}
	u, err := NewUniverse(testUniverseConfig(), market, &mockLogger{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Len())

	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, u.Symbols())
	assert.True(t, u.Contains("ETHUSDT"))
	assert.False(t, u.Contains("BTCUSDT"))
	refreshed := u.RefreshedAt()
	assert.False(t, refreshed.IsZero())

	market.setTickers(nil, errors.New("exchange down"))
	assert.Error(t, u.Refresh(context.Background()))
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, u.Symbols(), "previous set kept")
	assert.Equal(t, refreshed, u.RefreshedAt())

	market.setTickers([]domain.Ticker24h{{Symbol: "SOLUSDT", QuoteVolume: 80_000_000}}, nil)
	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, []string{"SOLUSDT"}, u.Symbols())
}

func TestNewUniverse_Validation(t *testing.T) {
	_, err := NewUniverse(UniverseConfig{}, &mockMarket{}, &mockLogger{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewUniverse(testUniverseConfig(), nil, &mockLogger{}, nil)
	assert.Error(t, err)
}
