// Package history keeps the recent bars of every instrument in memory.
package history

import (
	"sort"
	"sync"

	"volumeSpikeBot/internal/domain"
)

// Store holds an ordered, bounded bar sequence per symbol.
// Bars are unique per OpenTime; a newer version of the same bar replaces the old one.
type Store struct {
	mu       sync.RWMutex
	capacity int
	bars     map[string][]*domain.Kline
}

// NewStore creates a store retaining at most capacity bars per symbol.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 500
	}
	return &Store{capacity: capacity, bars: make(map[string][]*domain.Kline)}
}

// Replace swaps the symbol's history for a freshly fetched batch.
func (s *Store) Replace(symbol string, klines []*domain.Kline) {
	batch := make([]*domain.Kline, 0, len(klines))
	for _, k := range klines {
		if k != nil {
			batch = append(batch, k)
		}
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].OpenTime.Before(batch[j].OpenTime) })
	batch = dedupe(batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = s.trim(batch)
}

// Append adds a bar from the feed. Bars older than the last stored one are dropped;
// a bar with the same OpenTime as the last one overwrites it.
// It reports whether the bar was stored.
func (s *Store) Append(k *domain.Kline) bool {
	if k == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.bars[k.Symbol]
	if n := len(seq); n > 0 {
		last := seq[n-1]
		switch {
		case k.OpenTime.Equal(last.OpenTime):
			seq[n-1] = k
			return true
		case k.OpenTime.Before(last.OpenTime):
			return false
		}
	}
	s.bars[k.Symbol] = s.trim(append(seq, k))
	return true
}

// Window returns a read-only view over the symbol's current bars.
func (s *Store) Window(symbol string) Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.bars[symbol]
	out := make([]*domain.Kline, len(seq))
	copy(out, seq)
	return Window{bars: out}
}

// Len returns the number of bars held for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars[symbol])
}

// Forget drops a symbol's history.
func (s *Store) Forget(symbol string) {
	s.mu.Lock()
	delete(s.bars, symbol)
	s.mu.Unlock()
}

func (s *Store) trim(seq []*domain.Kline) []*domain.Kline {
	if len(seq) > s.capacity {
		seq = seq[len(seq)-s.capacity:]
	}
	return seq
}

func dedupe(sorted []*domain.Kline) []*domain.Kline {
	out := sorted[:0]
	for _, k := range sorted {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(k.OpenTime) {
			out[n-1] = k
			continue
		}
		out = append(out, k)
	}
	return out
}
