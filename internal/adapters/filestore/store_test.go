package filestore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/domain"
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

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Dir: t.TempDir(), Logger: &mockLogger{}})
	require.NoError(t, err)
	return s
}

func TestStore_CounterIsDurableAndMonotonic(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	last, err := s.LastTradeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextTradeID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	data, err := os.ReadFile(s.CounterPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_trade_id": 3}`, string(data))

	// a new store over the same directory continues from disk
	reopened, err := New(Config{Dir: s.dir, Logger: &mockLogger{}})
	require.NoError(t, err)
	got, err := reopened.NextTradeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}

func TestStore_CounterConcurrentAllocation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.NextTradeID(ctx)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 20)
}

func TestStore_CorruptCounter(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, os.WriteFile(s.CounterPath(), []byte("{not json"), 0o644))

	_, err := s.NextTradeID(context.Background())
	assert.ErrorIs(t, err, ports.ErrPersistence)
}

func TestStore_RegistryRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	empty, err := s.LoadActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	opened := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	trades := map[string]*domain.Trade{
		"000001": {
			ID: "000001", Symbol: "ETHUSDT", Side: domain.Buy, EntryPrice: 100, OpenTime: opened,
			Labels: []domain.SignalLabel{domain.BuyTrend}, VolumeText: "x3.10",
			Legs: []domain.Leg{
				{Name: "3:1", TakeProfitPrice: 103, StopLossPrice: 99, Status: domain.LegTakeProfit, ClosePrice: 103, PnLPct: 3, ClosedAt: opened.Add(time.Hour)},
				{Name: "6:2", TakeProfitPrice: 106, StopLossPrice: 98, Status: domain.LegOpen},
			},
		},
		"000002": {
			ID: "000002", Symbol: "SOLUSDT", Side: domain.Sell, EntryPrice: 50, OpenTime: opened,
			Labels: []domain.SignalLabel{domain.SellCounter}, VolumeText: "x5.42",
			Legs: []domain.Leg{{Name: "3:1", TakeProfitPrice: 48.5, StopLossPrice: 50.5, Status: domain.LegOpen}},
		},
	}
	require.NoError(t, s.SaveActive(ctx, trades))

	loaded, err := s.LoadActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, trades, loaded)

	// rewriting replaces the registry wholesale
	delete(trades, "000002")
	require.NoError(t, s.SaveActive(ctx, trades))
	loaded, err = s.LoadActive(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, s.SaveActive(ctx, nil))
	loaded, err = s.LoadActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.NextTradeID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SaveActive(ctx, map[string]*domain.Trade{}))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{counterFile, registryFile}, names)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()})
	assert.Error(t, err)
}
