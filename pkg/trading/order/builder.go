package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// DefaultStopBuffer offsets seeded stop prices from the touch.
var DefaultStopBuffer = decimal.RequireFromString("0.02")

// Fields are the raw values of an order ticket. A zero price means the
// field has not been set yet.
type Fields struct {
	Side            Side
	Type            Type
	Quantity        decimal.Decimal
	LimitPrice      decimal.Decimal
	StopPrice       decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	TrailPercent    decimal.Decimal
	TimeInForce     TimeInForce
}

// Builder turns ticket fields into drafts.
type Builder struct {
	StopBuffer  decimal.Decimal // fraction, e.g. 0.02
	RewardRatio decimal.Decimal // take-profit distance as a multiple of the stop distance
	Now         func() time.Time
	NewID       func() string
}

// NewBuilder creates a builder with the given stop buffer.
// A zero buffer selects DefaultStopBuffer.
func NewBuilder(stopBuffer decimal.Decimal) *Builder {
	if stopBuffer.IsZero() {
		stopBuffer = DefaultStopBuffer
	}
	return &Builder{
		StopBuffer:  stopBuffer,
		RewardRatio: decimal.NewFromInt(2),
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

// SelectType switches the ticket to t and seeds unset prices from q.
// Prices the user already entered are never overwritten; a nil quote seeds nothing.
func (b *Builder) SelectType(f Fields, t Type, q *trading.Quote) Fields {
	f.Type = t
	if q == nil {
		return f
	}

	one := decimal.NewFromInt(1)
	buffer := b.StopBuffer
	target := buffer.Mul(b.RewardRatio)

	switch t {
	case TypeLimit, TypeStopLimit:
		if f.LimitPrice.IsZero() && q.Bid.IsPositive() {
			f.LimitPrice = q.Bid
		}
	}

	switch t {
	case TypeStop, TypeStopLimit, TypeStopLoss:
		if f.StopPrice.IsZero() {
			if f.Side == SideSell {
				f.StopPrice = roundPrice(q.Bid.Mul(one.Sub(buffer)))
			} else {
				f.StopPrice = roundPrice(q.Ask.Mul(one.Add(buffer)))
			}
		}
	case TypeTakeProfit:
		if f.TakeProfitPrice.IsZero() {
			if f.Side == SideSell {
				f.TakeProfitPrice = roundPrice(q.Bid.Mul(one.Add(target)))
			} else {
				f.TakeProfitPrice = roundPrice(q.Ask.Mul(one.Sub(target)))
			}
		}
	case TypeBracket:
		entry := f.LimitPrice
		if !entry.IsPositive() {
			entry = q.Ask
			if f.Side == SideSell {
				entry = q.Bid
			}
		}
		if f.Side == SideSell {
			if f.StopLossPrice.IsZero() {
				f.StopLossPrice = roundPrice(entry.Mul(one.Add(buffer)))
			}
			if f.TakeProfitPrice.IsZero() {
				f.TakeProfitPrice = roundPrice(entry.Mul(one.Sub(target)))
			}
		} else {
			if f.StopLossPrice.IsZero() {
				f.StopLossPrice = roundPrice(entry.Mul(one.Sub(buffer)))
			}
			if f.TakeProfitPrice.IsZero() {
				f.TakeProfitPrice = roundPrice(entry.Mul(one.Add(target)))
			}
		}
	}
	return f
}

// Build assembles a draft for symbol from f. It never fails: out-of-range
// values are left for Validate to report.
func (b *Builder) Build(symbol string, f Fields) Draft {
	side := f.Side
	if side == "" {
		side = SideBuy
	}
	tif := f.TimeInForce
	if tif == "" {
		tif = TIFDay
	}

	d := Draft{
		Symbol:      trading.NormalizeSymbol(symbol),
		Side:        side,
		Quantity:    f.Quantity,
		TimeInForce: tif,
		Terms:       termsFor(f),
	}
	if b.NewID != nil {
		d.ID = b.NewID()
	}
	if b.Now != nil {
		d.CreatedAt = b.Now()
	}
	return d
}

func termsFor(f Fields) Terms {
	switch f.Type {
	case TypeLimit:
		return Limit{Price: f.LimitPrice}
	case TypeStop:
		return Stop{StopPrice: f.StopPrice}
	case TypeStopLimit:
		return StopLimit{StopPrice: f.StopPrice, LimitPrice: f.LimitPrice}
	case TypeStopLoss:
		return StopLoss{StopPrice: f.StopPrice}
	case TypeTakeProfit:
		return TakeProfit{TriggerPrice: f.TakeProfitPrice}
	case TypeBracket:
		return Bracket{
			EntryPrice:      f.LimitPrice,
			StopLossPrice:   f.StopLossPrice,
			TakeProfitPrice: f.TakeProfitPrice,
		}
	case TypeTrailingStop:
		return TrailingStop{TrailPercent: f.TrailPercent}
	default:
		return Market{}
	}
}

func roundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(2)
}
