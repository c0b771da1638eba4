// Package provider supplies quotes from mock, HTTP and websocket sources.
package provider

import (
	"context"
	"errors"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// ErrNoQuote is returned when a source has no usable quote for a symbol.
var ErrNoQuote = errors.New("no quote")

// QuoteSource looks up the current quote for a symbol.
type QuoteSource interface {
	// GetQuote fetches the current quote for symbol
	GetQuote(ctx context.Context, symbol string) (*trading.Quote, error)

	// Name returns the source name
	Name() string
}

// Streamer pushes quotes as they arrive.
type Streamer interface {
	// Subscribe delivers quotes for symbols to callback until ctx is done.
	// It returns once the subscription is running.
	Subscribe(ctx context.Context, symbols []string, callback func(trading.Quote)) error

	// Close closes the connection
	Close() error
}

// HistorySource returns daily bars for a symbol.
type HistorySource interface {
	GetHistory(ctx context.Context, symbol string, limit int) ([]Bar, error)
}

// Lookup returns a usable quote for symbol from src. Callers treat any
// error as "no current price".
func Lookup(ctx context.Context, src QuoteSource, symbol string) (*trading.Quote, error) {
	if src == nil {
		return nil, ErrNoQuote
	}
	q, err := src.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if q == nil || !q.Valid() {
		return nil, ErrNoQuote
	}
	return q, nil
}
