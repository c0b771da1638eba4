package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

// Op is a comparison applied to a quote's bid.
type Op int

const (
	OpAtOrAbove Op = iota // bid >= target
	OpAtOrBelow           // bid <= target
	OpBelow               // bid < target
)

// Condition is a predicate evaluated against a single quote.
// It is shared by alert evaluation and the order sanity checks.
type Condition interface {
	Met(q Quote) bool
}

// PriceCondition compares the quote's bid with Target.
// A quote without a positive bid never satisfies it.
type PriceCondition struct {
	Op     Op
	Target decimal.Decimal
}

// Met implements Condition.
func (c PriceCondition) Met(q Quote) bool {
	if !q.Bid.IsPositive() {
		return false
	}
	switch c.Op {
	case OpAtOrAbove:
		return q.Bid.GreaterThanOrEqual(c.Target)
	case OpAtOrBelow:
		return q.Bid.LessThanOrEqual(c.Target)
	case OpBelow:
		return q.Bid.LessThan(c.Target)
	default:
		return false
	}
}

// ChangeCondition is met when the absolute percent change reaches the absolute threshold.
type ChangeCondition struct {
	Threshold float64 // percent units
}

// Met implements Condition.
func (c ChangeCondition) Met(q Quote) bool {
	return math.Abs(q.ChangePercent) >= math.Abs(c.Threshold)
}

// Never is a condition that is never met.
type Never struct{}

// Met implements Condition.
func (Never) Met(Quote) bool { return false }

// Deviation returns |price - reference| / reference.
// The second value is false when reference is not positive.
func Deviation(price, reference decimal.Decimal) (float64, bool) {
	if !reference.IsPositive() {
		return 0, false
	}
	return price.Sub(reference).Abs().Div(reference).InexactFloat64(), true
}
