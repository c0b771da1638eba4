package trading

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is an immutable market snapshot for one symbol.
// A newer Quote for the same symbol replaces the older one; quotes are never merged.
type Quote struct {
	Symbol        string          `json:"symbol" yaml:"symbol"`
	Bid           decimal.Decimal `json:"bid" yaml:"bid"`
	Ask           decimal.Decimal `json:"ask" yaml:"ask"`
	Last          decimal.Decimal `json:"last" yaml:"last"`
	ChangePercent float64         `json:"change_percent" yaml:"change_percent"` // percent since prior close
	Volume        int64           `json:"volume,omitempty" yaml:"volume,omitempty"`
	Timestamp     time.Time       `json:"timestamp" yaml:"timestamp"`
}

// NewQuote builds a quote from float prices. It is mostly useful for feeds
// and tests that receive prices as floats.
func NewQuote(symbol string, bid, ask, last, changePercent float64, ts time.Time) Quote {
	return Quote{
		Symbol:        NormalizeSymbol(symbol),
		Bid:           decimal.NewFromFloat(bid),
		Ask:           decimal.NewFromFloat(ask),
		Last:          decimal.NewFromFloat(last),
		ChangePercent: changePercent,
		Timestamp:     ts,
	}
}

// Valid reports whether the quote carries a usable price.
func (q Quote) Valid() bool {
	return q.Symbol != "" && (q.Bid.IsPositive() || q.Ask.IsPositive() || q.Last.IsPositive())
}

// Mid returns the midpoint of bid and ask, falling back to whichever side is set.
func (q Quote) Mid() decimal.Decimal {
	switch {
	case q.Bid.IsPositive() && q.Ask.IsPositive():
		return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
	case q.Bid.IsPositive():
		return q.Bid
	default:
		return q.Ask
	}
}

// Mark is the price used to value holdings: last trade, else mid.
func (q Quote) Mark() decimal.Decimal {
	if q.Last.IsPositive() {
		return q.Last
	}
	return q.Mid()
}

// Spread returns ask minus bid, or zero when either side is missing.
func (q Quote) Spread() decimal.Decimal {
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return decimal.Zero
	}
	return q.Ask.Sub(q.Bid)
}

// SpreadRatio returns the spread as a fraction of mid.
// The second value is false when the ratio cannot be computed.
func (q Quote) SpreadRatio() (float64, bool) {
	mid := q.Mid()
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() || !mid.IsPositive() {
		return 0, false
	}
	return q.Spread().Div(mid).InexactFloat64(), true
}

// Position is a snapshot of a holding. MarketValue, UnrealizedPnL and Weight
// are derived and must be refreshed with Reprice whenever a new quote arrives.
type Position struct {
	Symbol        string          `json:"symbol" yaml:"symbol"`
	Quantity      decimal.Decimal `json:"quantity" yaml:"quantity"` // positive = long, negative = short
	AvgPrice      decimal.Decimal `json:"avg_price" yaml:"avg_price"`
	MarketValue   decimal.Decimal `json:"market_value" yaml:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	Weight        float64         `json:"weight" yaml:"weight"` // fraction of gross portfolio value
	Beta          *float64        `json:"beta,omitempty" yaml:"beta,omitempty"`
	Volatility    *float64        `json:"volatility,omitempty" yaml:"volatility,omitempty"` // annualized
	Sector        string          `json:"sector,omitempty" yaml:"sector,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Reprice returns a copy of p valued at the quote's mark price.
// Quotes for other symbols or without a usable price leave p unchanged.
func (p Position) Reprice(q Quote) Position {
	if NormalizeSymbol(q.Symbol) != NormalizeSymbol(p.Symbol) {
		return p
	}
	mark := q.Mark()
	if !mark.IsPositive() {
		return p
	}
	p.MarketValue = p.Quantity.Mul(mark)
	p.UnrealizedPnL = mark.Sub(p.AvgPrice).Mul(p.Quantity)
	p.UpdatedAt = q.Timestamp
	return p
}

// IsShort reports whether the position is a short.
func (p Position) IsShort() bool {
	return p.Quantity.IsNegative()
}

// CostBasis returns quantity times average entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgPrice)
}

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
