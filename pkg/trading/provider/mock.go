package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// MockProvider generates random-walk quotes. It is deterministic for a seed.
type MockProvider struct {
	mu        sync.Mutex
	rng       *rand.Rand
	prices    map[string]float64
	prevClose map[string]float64
	fixed     map[string]trading.Quote
	cancels   []context.CancelFunc
	subs      sync.WaitGroup

	// Interval between streamed updates
	Interval time.Duration
	// Spread is the bid/ask spread as a fraction of price
	Spread float64
	Now    func() time.Time
}

// NewMockProvider creates a mock provider seeded with seed.
func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{
		rng:       rand.New(rand.NewSource(seed)),
		prices:    make(map[string]float64),
		prevClose: make(map[string]float64),
		fixed:     make(map[string]trading.Quote),
		Interval:  5 * time.Second,
		Spread:    0.0005,
		Now:       time.Now,
	}
}

func (m *MockProvider) Name() string {
	return "mock"
}

// SetQuote pins the quote returned for q.Symbol.
func (m *MockProvider) SetQuote(q trading.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed[trading.NormalizeSymbol(q.Symbol)] = q
}

// SetPrice seeds the random walk for symbol.
func (m *MockProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = trading.NormalizeSymbol(symbol)
	m.prices[symbol] = price
	m.prevClose[symbol] = price
}

// GetQuote implements QuoteSource.
func (m *MockProvider) GetQuote(ctx context.Context, symbol string) (*trading.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = trading.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrNoQuote)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.fixed[symbol]; ok {
		return &q, nil
	}
	q := m.next(symbol)
	return &q, nil
}

// next must be called with m.mu held.
func (m *MockProvider) next(symbol string) trading.Quote {
	base, ok := m.prices[symbol]
	if !ok {
		base = 100.0 + m.rng.Float64()*900.0 // random price between 100-1000
		m.prevClose[symbol] = base
	}

	// ±1% per tick
	price := base + (m.rng.Float64()-0.5)*base*0.02
	m.prices[symbol] = price

	half := price * m.Spread / 2
	prev := m.prevClose[symbol]
	q := trading.Quote{
		Symbol:        symbol,
		Bid:           decimal.NewFromFloat(price - half).Round(2),
		Ask:           decimal.NewFromFloat(price + half).Round(2),
		Last:          decimal.NewFromFloat(price).Round(2),
		ChangePercent: (price - prev) / prev * 100,
		Volume:        int64(m.rng.Intn(1000000) + 100000),
		Timestamp:     m.Now(),
	}
	return q
}

// Subscribe implements Streamer.
func (m *MockProvider) Subscribe(ctx context.Context, symbols []string, callback func(trading.Quote)) error {
	interval := m.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()

	m.subs.Add(1)
	go func() {
		defer m.subs.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range symbols {
					q, err := m.GetQuote(ctx, s)
					if err != nil {
						continue
					}
					callback(*q)
				}
			}
		}
	}()

	return nil
}

// GetHistory implements HistorySource with a random walk ending at the
// current price.
func (m *MockProvider) GetHistory(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 30
	}
	symbol = trading.NormalizeSymbol(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[symbol]
	if !ok {
		price = m.next(symbol).Last.InexactFloat64()
	}
	bars := make([]Bar, limit)
	day := m.Now().Truncate(24 * time.Hour)
	for i := limit - 1; i >= 0; i-- {
		bars[i] = Bar{
			Timestamp: day.AddDate(0, 0, i-limit+1),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    int64(m.rng.Intn(1000000) + 100000),
		}
		price /= 1 + (m.rng.Float64()-0.5)*0.04
	}
	return bars, nil
}

// Close implements Streamer. It ends every subscription and returns once
// no callback is running.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = nil
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.subs.Wait()
	return nil
}
