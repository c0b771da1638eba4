// Package cost estimates order commissions and tracks estimated fees
package cost

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Schedule defines how a broker charges for an order
type Schedule struct {
	PerShare       decimal.Decimal // charged per unit of quantity
	Minimum        decimal.Decimal // floor per order, when PerShare applies
	MaxRate        decimal.Decimal // cap as a fraction of notional, zero for none
	RegulatoryRate decimal.Decimal // fraction of notional, sells only
}

// Schedules contains placeholder commission plans.
// The numbers are illustrative and meant to be overridden from config.
var Schedules = map[string]Schedule{
	"standard": {
		PerShare:       decimal.RequireFromString("0.005"),
		Minimum:        decimal.RequireFromString("1.00"),
		MaxRate:        decimal.RequireFromString("0.01"),
		RegulatoryRate: decimal.RequireFromString("0.0000278"),
	},
	"zero": {
		RegulatoryRate: decimal.RequireFromString("0.0000278"),
	},
}

// DefaultSchedule returns the standard plan
func DefaultSchedule() Schedule {
	return Schedules["standard"]
}

// Lookup returns the named plan, falling back to the standard one
func Lookup(name string) Schedule {
	if s, ok := Schedules[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s
	}
	return DefaultSchedule()
}

// Breakdown is the estimated cost of one order
type Breakdown struct {
	Commission decimal.Decimal `json:"commission"`
	Regulatory decimal.Decimal `json:"regulatory"`
	Total      decimal.Decimal `json:"total"`
}

// Estimate returns the fees for an order of qty units at price.
// The result is rounded to cents.
func (s Schedule) Estimate(qty, price decimal.Decimal, sell bool) Breakdown {
	qty = qty.Abs()
	notional := qty.Mul(price).Abs()

	commission := s.PerShare.Mul(qty)
	if commission.IsPositive() && commission.LessThan(s.Minimum) {
		commission = s.Minimum
	}
	if s.MaxRate.IsPositive() {
		commission = decimal.Min(commission, notional.Mul(s.MaxRate))
	}

	regulatory := decimal.Zero
	if sell {
		regulatory = notional.Mul(s.RegulatoryRate)
	}

	commission = commission.Round(2)
	regulatory = regulatory.Round(2)
	return Breakdown{
		Commission: commission,
		Regulatory: regulatory,
		Total:      commission.Add(regulatory),
	}
}

// Tracker accumulates estimated fees across submitted orders
type Tracker struct {
	Orders   int64
	Notional decimal.Decimal
	Fees     decimal.Decimal
	schedule Schedule
	mu       sync.Mutex
}

// NewTracker creates a new fee tracker
func NewTracker(schedule Schedule) *Tracker {
	return &Tracker{
		schedule: schedule,
	}
}

// SetSchedule updates the plan used for later orders
func (t *Tracker) SetSchedule(schedule Schedule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedule = schedule
}

// AddOrder records an order and returns its fee estimate
func (t *Tracker) AddOrder(qty, price decimal.Decimal, sell bool) Breakdown {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.schedule.Estimate(qty, price, sell)
	t.Orders++
	t.Notional = t.Notional.Add(qty.Mul(price).Abs())
	t.Fees = t.Fees.Add(b.Total)
	return b
}

// GetStats returns accumulated statistics
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		Orders:   t.Orders,
		Notional: t.Notional,
		Fees:     t.Fees,
	}
}

// Stats contains accumulated statistics
type Stats struct {
	Orders   int64
	Notional decimal.Decimal
	Fees     decimal.Decimal
}

// Reset clears the tracker
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Orders = 0
	t.Notional = decimal.Zero
	t.Fees = decimal.Zero
}

// FormatMoney formats an amount in dollars
func FormatMoney(amount decimal.Decimal) string {
	if amount.IsPositive() && amount.LessThan(decimal.New(1, -2)) {
		return "<$0.01"
	}
	if amount.IsNegative() {
		return "-$" + amount.Abs().StringFixed(2)
	}
	return "$" + amount.StringFixed(2)
}
