// Package positions tracks the current holdings and keeps their derived
// values in step with incoming quotes.
package positions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// Source supplies the current position set.
type Source interface {
	Positions(ctx context.Context) ([]trading.Position, error)
}

// Book holds positions keyed by symbol
type Book struct {
	mu        sync.RWMutex
	positions map[string]trading.Position
}

// NewBook creates a book seeded with positions. Later entries for the same
// symbol replace earlier ones.
func NewBook(positions ...trading.Position) *Book {
	b := &Book{positions: make(map[string]trading.Position)}
	for _, p := range positions {
		b.Set(p)
	}
	return b
}

// Set stores p, replacing any position in the same symbol.
func (b *Book) Set(p trading.Position) {
	p.Symbol = trading.NormalizeSymbol(p.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions[p.Symbol] = p
	b.reweight()
}

// Update sets quantity and average price for symbol, keeping the sector,
// beta and volatility already recorded. A zero quantity closes the position.
func (b *Book) Update(symbol string, quantity, avgPrice decimal.Decimal, at time.Time) {
	symbol = trading.NormalizeSymbol(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	if quantity.IsZero() {
		delete(b.positions, symbol)
		b.reweight()
		return
	}

	p := b.positions[symbol]
	mark := avgPrice
	if !p.Quantity.IsZero() && !p.MarketValue.IsZero() {
		// keep the last quoted price
		mark = p.MarketValue.Div(p.Quantity)
	}
	p.Symbol = symbol
	p.Quantity = quantity
	p.AvgPrice = avgPrice
	p.MarketValue = quantity.Mul(mark)
	p.UnrealizedPnL = p.MarketValue.Sub(quantity.Mul(avgPrice))
	p.UpdatedAt = at
	b.positions[symbol] = p
	b.reweight()
}

// Reprice revalues the position in q.Symbol. It reports whether a position
// was changed.
func (b *Book) Reprice(q trading.Quote) bool {
	symbol := trading.NormalizeSymbol(q.Symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[symbol]
	if !ok || q.Timestamp.Before(p.UpdatedAt) {
		return false
	}
	next := p.Reprice(q)
	if next.UpdatedAt.Equal(p.UpdatedAt) && next.MarketValue.Equal(p.MarketValue) {
		return false
	}
	b.positions[symbol] = next
	b.reweight()
	return true
}

// Get returns the position in symbol.
func (b *Book) Get(symbol string) (trading.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.positions[trading.NormalizeSymbol(symbol)]
	return p, ok
}

// Symbols returns the held symbols, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.positions))
	for s := range b.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Positions implements Source with a snapshot sorted by symbol.
func (b *Book) Positions(ctx context.Context) ([]trading.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]trading.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// reweight recomputes Weight as |market value| over gross value. Must be
// called with b.mu held.
func (b *Book) reweight() {
	gross := decimal.Zero
	for _, p := range b.positions {
		gross = gross.Add(p.MarketValue.Abs())
	}
	for s, p := range b.positions {
		if gross.IsPositive() {
			p.Weight = p.MarketValue.Abs().Div(gross).InexactFloat64()
		} else {
			p.Weight = 0
		}
		b.positions[s] = p
	}
}
