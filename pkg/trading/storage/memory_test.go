package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/alert"
)

var t0 = time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC)

func TestQuoteSupersedes(t *testing.T) {
	s := NewMemoryStorage(3, 10)

	require.True(t, s.SaveQuote(trading.NewQuote("aapl", 100, 101, 100, 0, t0)))
	require.True(t, s.SaveQuote(trading.NewQuote("AAPL", 102, 103, 102, 0, t0.Add(time.Second))))

	q, ok := s.Quote("AAPL")
	require.True(t, ok)
	assert.Equal(t, "102", q.Bid.String())

	assert.False(t, s.SaveQuote(trading.NewQuote("AAPL", 90, 91, 90, 0, t0)), "older tick is ignored")
	q, _ = s.Quote("aapl")
	assert.Equal(t, "102", q.Bid.String())

	_, ok = s.Quote("MSFT")
	assert.False(t, ok)
}

func TestHistoryIsBounded(t *testing.T) {
	s := NewMemoryStorage(3, 10)
	for i := 0; i < 5; i++ {
		s.SaveQuote(trading.NewQuote("AAPL", float64(100+i), float64(101+i), 0, 0, t0.Add(time.Duration(i)*time.Second)))
	}

	h := s.History("AAPL", 0)
	require.Len(t, h, 3)
	assert.Equal(t, "102", h[0].Bid.String())
	assert.Equal(t, "104", h[2].Bid.String())

	h = s.History("AAPL", 1)
	require.Len(t, h, 1)
	assert.Equal(t, "104", h[0].Bid.String())

	assert.Empty(t, s.History("MSFT", 5))
	assert.Equal(t, []string{"AAPL"}, s.Symbols())
}

func TestTriggers(t *testing.T) {
	s := NewMemoryStorage(0, 2)
	s.SaveTrigger(alert.Trigger{AlertID: "1", Symbol: "AAPL", At: t0})
	s.SaveTrigger(alert.Trigger{AlertID: "2", Symbol: "MSFT", At: t0.Add(time.Minute)})
	s.SaveTrigger(alert.Trigger{AlertID: "3", Symbol: "AAPL", At: t0.Add(2 * time.Minute)})

	all := s.Triggers(0)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].AlertID)

	bySymbol := s.TriggersBySymbol("aapl", 0)
	require.Len(t, bySymbol, 1)
	assert.Equal(t, "3", bySymbol[0].AlertID)

	between := s.TriggersBetween(t0, t0.Add(2*time.Minute))
	require.Len(t, between, 1)
	assert.Equal(t, "2", between[0].AlertID)
}

func TestConcurrentQuotes(t *testing.T) {
	s := NewMemoryStorage(10, 10)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SaveQuote(trading.NewQuote("AAPL", float64(i+1), float64(i+2), 0, 0, t0.Add(time.Duration(i)*time.Millisecond)))
			s.Quote("AAPL")
		}(i)
	}
	wg.Wait()

	q, ok := s.Quote("AAPL")
	require.True(t, ok)
	assert.Equal(t, "100", q.Bid.String(), "newest timestamp wins regardless of arrival order")
}
