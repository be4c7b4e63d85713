package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "ledger-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openRecord(id, symbol string) domain.LedgerRecord {
	return domain.LedgerRecord{
		Time:       baseTime,
		Event:      domain.LedgerOpen,
		TradeID:    id,
		Symbol:     symbol,
		Side:       domain.Buy,
		Labels:     "BUY_TREND",
		VolumeText: "x3.25",
		EntryPrice: 100,
		Status:     domain.LegOpen,
		RunID:      "run-1",
	}
}

func closeRecord(id, symbol, leg string, status domain.LegStatus, price, pnl float64, at time.Time) domain.LedgerRecord {
	rec := openRecord(id, symbol)
	rec.Time = at
	rec.Event = domain.LedgerClose
	rec.Leg = leg
	rec.Status = status
	rec.ClosePrice = price
	rec.PnLPct = pnl
	return rec
}

func TestRepository_RecordAndFindByTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, openRecord("000001", "ETHUSDT")))
	require.NoError(t, repo.Record(ctx, closeRecord("000001", "ETHUSDT", "3:1", domain.LegTakeProfit, 103, 3, baseTime.Add(time.Hour))))
	require.NoError(t, repo.Record(ctx, openRecord("000002", "SOLUSDT")))

	rows, err := repo.FindByTrade(ctx, "000001")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.LedgerOpen, rows[0].Event)
	assert.True(t, baseTime.Equal(rows[0].Time))
	assert.Equal(t, 0.0, rows[0].ClosePrice)
	assert.Equal(t, "x3.25", rows[0].VolumeText)

	assert.Equal(t, domain.LedgerClose, rows[1].Event)
	assert.Equal(t, "3:1", rows[1].Leg)
	assert.Equal(t, domain.LegTakeProfit, rows[1].Status)
	assert.Equal(t, 103.0, rows[1].ClosePrice)
	assert.Equal(t, 3.0, rows[1].PnLPct)
	assert.Equal(t, domain.Buy, rows[1].Side)

	none, err := repo.FindByTrade(ctx, "999999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_DuplicateRow(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := closeRecord("000001", "ETHUSDT", "3:1", domain.LegStopLoss, 99, -1, baseTime)
	require.NoError(t, repo.Record(ctx, rec))
	err := repo.Record(ctx, rec)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	// same trade, different leg is a separate row
	require.NoError(t, repo.Record(ctx, closeRecord("000001", "ETHUSDT", "6:2", domain.LegStopLoss, 98, -2, baseTime)))
}

func TestRepository_FindClosedSinceAndCounts(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, openRecord("000001", "ETHUSDT")))
	require.NoError(t, repo.Record(ctx, openRecord("000002", "ETHUSDT")))
	require.NoError(t, repo.Record(ctx, openRecord("000003", "SOLUSDT")))
	require.NoError(t, repo.Record(ctx, closeRecord("000001", "ETHUSDT", "3:1", domain.LegTakeProfit, 103, 3, baseTime.Add(-time.Hour))))
	require.NoError(t, repo.Record(ctx, closeRecord("000002", "ETHUSDT", "3:1", domain.LegStopLoss, 99, -1, baseTime.Add(time.Hour))))

	closed, err := repo.FindClosedSince(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "000002", closed[0].TradeID)

	counts, err := repo.CountOpenedBySymbol(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ETHUSDT": 2, "SOLUSDT": 1}, counts)
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}
