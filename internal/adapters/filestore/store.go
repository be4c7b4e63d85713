// Package filestore persists the trade id counter and the active trade
// registry as JSON files replaced atomically on every write.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"volumeSpikeBot/internal/domain"
	"volumeSpikeBot/internal/ports"
)

const (
	counterFile  = "trade_counter.json"
	registryFile = "active_trades.json"
)

type counterState struct {
	LastTradeID int64 `json:"last_trade_id"`
}

// Store implements ports.TradeStore on the local filesystem.
type Store struct {
	dir    string
	logger ports.Logger

	mu sync.Mutex // Serializes counter read-modify-write and file replacement
}

// Config holds configuration for the file store.
type Config struct {
	Dir    string
	Logger ports.Logger
}

// New creates the data directory if needed and returns a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for file store")
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory '%s': %w", ports.ErrPersistence, dir, err)
	}
	cfg.Logger.Info(context.Background(), "File store ready", map[string]interface{}{"dir": dir})
	return &Store{dir: dir, logger: cfg.Logger}, nil
}

// CounterPath returns the location of the trade id counter.
func (s *Store) CounterPath() string {
	return filepath.Join(s.dir, counterFile)
}

// RegistryPath returns the location of the active trade registry.
func (s *Store) RegistryPath() string {
	return filepath.Join(s.dir, registryFile)
}

// NextTradeID increments the counter and returns the new value once it is on disk.
func (s *Store) NextTradeID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.readCounter()
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := writeJSONAtomic(s.CounterPath(), counterState{LastTradeID: next}); err != nil {
		return 0, fmt.Errorf("%w: write trade counter: %w", ports.ErrPersistence, err)
	}
	s.logger.Debug(ctx, "Trade id allocated", map[string]interface{}{"id": next})
	return next, nil
}

// LastTradeID returns the last allocated id, 0 if the counter does not exist.
func (s *Store) LastTradeID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCounter()
}

func (s *Store) readCounter() (int64, error) {
	var st counterState
	found, err := readJSON(s.CounterPath(), &st)
	if err != nil {
		return 0, fmt.Errorf("%w: read trade counter: %w", ports.ErrPersistence, err)
	}
	if !found {
		return 0, nil
	}
	if st.LastTradeID < 0 {
		return 0, fmt.Errorf("%w: negative trade counter %d", ports.ErrPersistence, st.LastTradeID)
	}
	return st.LastTradeID, nil
}

// SaveActive rewrites the whole registry keyed by trade id.
func (s *Store) SaveActive(ctx context.Context, trades map[string]*domain.Trade) error {
	if trades == nil {
		trades = map[string]*domain.Trade{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSONAtomic(s.RegistryPath(), trades); err != nil {
		return fmt.Errorf("%w: write active trades: %w", ports.ErrPersistence, err)
	}
	s.logger.Debug(ctx, "Active trades saved", map[string]interface{}{"count": len(trades)})
	return nil
}

// LoadActive reads the registry; a missing file yields an empty registry.
func (s *Store) LoadActive(ctx context.Context) (map[string]*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := make(map[string]*domain.Trade)
	found, err := readJSON(s.RegistryPath(), &trades)
	if err != nil {
		return nil, fmt.Errorf("%w: read active trades: %w", ports.ErrPersistence, err)
	}
	if !found {
		s.logger.Info(ctx, "No active trade registry found, starting empty", map[string]interface{}{"path": s.RegistryPath()})
		return map[string]*domain.Trade{}, nil
	}
	for id, t := range trades {
		if t == nil {
			delete(trades, id)
		}
	}
	return trades, nil
}

func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSONAtomic writes to a temporary file in the same directory, syncs it
// and renames it over the target.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
