package positions

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// File is a portfolio snapshot on disk.
//
//	account_balance: 100000
//	daily_returns: [0.01, -0.02]
//	positions:
//	  - symbol: AAPL
//	    quantity: 100
//	    avg_price: 150
//	    sector: Technology
//	    beta: 1.2
type File struct {
	AccountBalance decimal.Decimal    `yaml:"account_balance"`
	DailyReturns   []float64          `yaml:"daily_returns,omitempty"`
	Positions      []trading.Position `yaml:"positions"`
	Quotes         []trading.Quote    `yaml:"quotes,omitempty"`
}

// LoadFile reads and normalizes a portfolio file. Positions without a
// market value are valued at cost, then repriced from any quotes in the file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse portfolio %s: %w", path, err)
	}

	quotes := f.QuoteMap()
	for i, p := range f.Positions {
		p.Symbol = trading.NormalizeSymbol(p.Symbol)
		if p.Symbol == "" {
			return nil, fmt.Errorf("parse portfolio %s: position %d has no symbol", path, i)
		}
		if p.MarketValue.IsZero() {
			p.MarketValue = p.CostBasis()
			p.UnrealizedPnL = decimal.Zero
		}
		if q, ok := quotes[p.Symbol]; ok {
			p = p.Reprice(q)
		}
		f.Positions[i] = p
	}
	return &f, nil
}

// QuoteMap indexes the file's quotes by symbol.
func (f *File) QuoteMap() map[string]trading.Quote {
	out := make(map[string]trading.Quote, len(f.Quotes))
	for _, q := range f.Quotes {
		q.Symbol = trading.NormalizeSymbol(q.Symbol)
		out[q.Symbol] = q
	}
	return out
}

// Save writes f to path.
func (f *File) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write portfolio: %w", err)
	}
	return nil
}

// FileSource re-reads a portfolio file on every call.
type FileSource struct {
	Path string
}

// Positions implements Source.
func (s FileSource) Positions(ctx context.Context) ([]trading.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return f.Positions, nil
}
