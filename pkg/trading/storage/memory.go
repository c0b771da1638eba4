// Package storage keeps the latest quote per symbol plus bounded histories
// of quotes and alert triggers in memory.
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
)

// MemoryStorage is an in-memory quote book.
//
// The latest quote for a symbol is replaced, never merged, and a quote
// older than the one held is ignored so out-of-order ticks cannot roll the
// book back.
type MemoryStorage struct {
	mu          sync.RWMutex
	latest      map[string]trading.Quote
	history     map[string][]trading.Quote
	triggers    []alert.Trigger
	maxHistory  int
	maxTriggers int
}

// NewMemoryStorage creates a book keeping up to maxHistory quotes per
// symbol and maxTriggers triggers.
func NewMemoryStorage(maxHistory, maxTriggers int) *MemoryStorage {
	return &MemoryStorage{
		latest:      make(map[string]trading.Quote),
		history:     make(map[string][]trading.Quote),
		maxHistory:  maxHistory,
		maxTriggers: maxTriggers,
	}
}

// SaveQuote records q. It reports false when q is older than the held
// quote for its symbol and was ignored.
func (s *MemoryStorage) SaveQuote(q trading.Quote) bool {
	q.Symbol = trading.NormalizeSymbol(q.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.latest[q.Symbol]; ok && q.Timestamp.Before(cur.Timestamp) {
		return false
	}
	s.latest[q.Symbol] = q

	if s.maxHistory > 0 {
		h := append(s.history[q.Symbol], q)
		if len(h) > s.maxHistory {
			h = h[len(h)-s.maxHistory:]
		}
		s.history[q.Symbol] = h
	}
	return true
}

// Quote returns the latest quote for symbol.
func (s *MemoryStorage) Quote(symbol string) (trading.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.latest[trading.NormalizeSymbol(symbol)]
	return q, ok
}

// Quotes returns a copy of the latest quote for every symbol.
func (s *MemoryStorage) Quotes() map[string]trading.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]trading.Quote, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Symbols returns the symbols with a quote, sorted.
func (s *MemoryStorage) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.latest))
	for sym := range s.latest {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// History returns up to limit of the most recent quotes for symbol, oldest
// first. A non-positive limit returns everything held.
func (s *MemoryStorage) History(symbol string, limit int) []trading.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return tail(s.history[trading.NormalizeSymbol(symbol)], limit)
}

// SaveTrigger records a fired alert.
func (s *MemoryStorage) SaveTrigger(t alert.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers = append(s.triggers, t)
	if s.maxTriggers > 0 && len(s.triggers) > s.maxTriggers {
		s.triggers = s.triggers[len(s.triggers)-s.maxTriggers:]
	}
}

// Triggers returns up to limit recent triggers, oldest first.
func (s *MemoryStorage) Triggers(limit int) []alert.Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return tail(s.triggers, limit)
}

// TriggersBySymbol returns up to limit recent triggers for symbol.
func (s *MemoryStorage) TriggersBySymbol(symbol string, limit int) []alert.Trigger {
	symbol = trading.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []alert.Trigger
	for _, t := range s.triggers {
		if t.Symbol == symbol {
			filtered = append(filtered, t)
		}
	}
	return tail(filtered, limit)
}

// TriggersBetween returns triggers fired in [start, end).
func (s *MemoryStorage) TriggersBetween(start, end time.Time) []alert.Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alert.Trigger
	for _, t := range s.triggers {
		if !t.At.Before(start) && t.At.Before(end) {
			out = append(out, t)
		}
	}
	return out
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, limit)
	copy(out, items[len(items)-limit:])
	return out
}
