// Package order builds order drafts from ticket fields and validates them
// against risk limits before submission.
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide parses "buy" or "sell", case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown order side: %q", s)
	}
}

// Type identifies an order variant.
type Type string

const (
	TypeMarket       Type = "market"
	TypeLimit        Type = "limit"
	TypeStop         Type = "stop"
	TypeStopLimit    Type = "stop_limit"
	TypeStopLoss     Type = "stop_loss"
	TypeTakeProfit   Type = "take_profit"
	TypeBracket      Type = "bracket"
	TypeTrailingStop Type = "trailing_stop"
)

var types = []Type{
	TypeMarket, TypeLimit, TypeStop, TypeStopLimit,
	TypeStopLoss, TypeTakeProfit, TypeBracket, TypeTrailingStop,
}

// ParseType parses an order type name. Dashes are accepted in place of underscores.
func ParseType(s string) (Type, error) {
	name := Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, t := range types {
		if t == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown order type: %q", s)
}

// TimeInForce controls how long an unfilled order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// ParseTimeInForce parses a time-in-force code; empty means day.
func ParseTimeInForce(s string) (TimeInForce, error) {
	switch tif := TimeInForce(strings.ToLower(strings.TrimSpace(s))); tif {
	case "":
		return TIFDay, nil
	case TIFDay, TIFGTC, TIFIOC, TIFFOK:
		return tif, nil
	default:
		return "", fmt.Errorf("unknown time in force: %q", s)
	}
}

// Terms is the type-specific part of an order. Each variant carries exactly
// the prices its order type needs.
type Terms interface {
	Type() Type
	terms()
}

// Market executes at the prevailing price.
type Market struct{}

// Limit executes at Price or better.
type Limit struct {
	Price decimal.Decimal `json:"price"`
}

// Stop becomes a market order once StopPrice trades.
type Stop struct {
	StopPrice decimal.Decimal `json:"stop_price"`
}

// StopLimit becomes a limit order at LimitPrice once StopPrice trades.
type StopLimit struct {
	StopPrice  decimal.Decimal `json:"stop_price"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// StopLoss closes a position when StopPrice is reached.
type StopLoss struct {
	StopPrice decimal.Decimal `json:"stop_price"`
}

// TakeProfit closes a position when TriggerPrice is reached.
type TakeProfit struct {
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

// Bracket is an entry paired with a stop-loss exit and a take-profit exit.
// A zero EntryPrice enters at market.
type Bracket struct {
	EntryPrice      decimal.Decimal `json:"entry_price"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
}

// TrailingStop trails the market by TrailPercent.
type TrailingStop struct {
	TrailPercent decimal.Decimal `json:"trail_percent"`
}

func (Market) Type() Type       { return TypeMarket }
func (Limit) Type() Type        { return TypeLimit }
func (Stop) Type() Type         { return TypeStop }
func (StopLimit) Type() Type    { return TypeStopLimit }
func (StopLoss) Type() Type     { return TypeStopLoss }
func (TakeProfit) Type() Type   { return TypeTakeProfit }
func (Bracket) Type() Type      { return TypeBracket }
func (TrailingStop) Type() Type { return TypeTrailingStop }

func (Market) terms()       {}
func (Limit) terms()        {}
func (Stop) terms()         {}
func (StopLimit) terms()    {}
func (StopLoss) terms()     {}
func (TakeProfit) terms()   {}
func (Bracket) terms()      {}
func (TrailingStop) terms() {}

// Draft is a candidate order. It is rebuilt from the ticket every time
// validation runs and is not persisted before submission.
type Draft struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	TimeInForce TimeInForce     `json:"time_in_force"`
	Terms       Terms           `json:"terms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Type returns the order type; a draft without terms is a market order.
func (d Draft) Type() Type {
	if d.Terms == nil {
		return TypeMarket
	}
	return d.Terms.Type()
}

// Protective reports whether the order exists to cap a loss.
func (d Draft) Protective() bool {
	switch d.Terms.(type) {
	case Stop, StopLoss, Bracket, TrailingStop:
		return true
	default:
		return false
	}
}

// HasStop reports whether the order carries a usable stop.
func (d Draft) HasStop() bool {
	switch t := d.Terms.(type) {
	case Stop:
		return t.StopPrice.IsPositive()
	case StopLimit:
		return t.StopPrice.IsPositive()
	case StopLoss:
		return t.StopPrice.IsPositive()
	case Bracket:
		return t.StopLossPrice.IsPositive()
	case TrailingStop:
		return t.TrailPercent.IsPositive()
	default:
		return false
	}
}

// String returns a one-line description such as "BUY 10 TSLA limit @ 250".
func (d Draft) String() string {
	s := fmt.Sprintf("%s %s %s %s", strings.ToUpper(string(d.Side)), d.Quantity.String(), d.Symbol, d.Type())
	switch t := d.Terms.(type) {
	case Limit:
		s += " @ " + t.Price.String()
	case Stop:
		s += " stop " + t.StopPrice.String()
	case StopLimit:
		s += fmt.Sprintf(" stop %s limit %s", t.StopPrice, t.LimitPrice)
	case StopLoss:
		s += " stop " + t.StopPrice.String()
	case TakeProfit:
		s += " target " + t.TriggerPrice.String()
	case Bracket:
		s += fmt.Sprintf(" sl %s tp %s", t.StopLossPrice, t.TakeProfitPrice)
	case TrailingStop:
		s += " trail " + t.TrailPercent.String() + "%"
	}
	return s
}
