package order

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/cost"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/market"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

// ErrorKind tags a blocking validation error.
type ErrorKind string

const (
	// Structural errors.
	KindInvalidQuantity   ErrorKind = "invalid_quantity"
	KindMissingSymbol     ErrorKind = "missing_symbol"
	KindInvalidLimitPrice ErrorKind = "invalid_limit_price"
	KindInvalidStopPrice  ErrorKind = "invalid_stop_price"

	// Limit errors.
	KindInsufficientFunds       ErrorKind = "insufficient_funds"
	KindExceedsPositionLimit    ErrorKind = "exceeds_position_limit"
	KindExceedsRiskLimit        ErrorKind = "exceeds_risk_limit"
	KindMissingStopLoss         ErrorKind = "missing_stop_loss"
	KindInvalidOrderCombination ErrorKind = "invalid_order_combination"
)

// Error is a condition that blocks submission. Requested/Limit are set for
// limit breaches and Required/Available for insufficient funds.
type Error struct {
	Kind      ErrorKind       `json:"kind"`
	Message   string          `json:"message"`
	Requested decimal.Decimal `json:"requested,omitempty"`
	Limit     decimal.Decimal `json:"limit,omitempty"`
	Required  decimal.Decimal `json:"required,omitempty"`
	Available decimal.Decimal `json:"available,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WarningKind tags a non-blocking finding.
type WarningKind string

const (
	WarnPriceDeviation WarningKind = "price_deviation"
	WarnHighRisk       WarningKind = "high_risk"
	WarnMarketClosed   WarningKind = "market_closed"
	WarnPennyStock     WarningKind = "penny_stock"
	WarnNoQuote        WarningKind = "no_quote"
)

// Warning is informational and never affects validity.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string { return w.Message }

// Estimate holds the figures derived while validating.
type Estimate struct {
	Price        decimal.Decimal `json:"price"`
	Notional     decimal.Decimal `json:"notional"`
	Fees         cost.Breakdown  `json:"fees"`
	Total        decimal.Decimal `json:"total"`
	RiskFraction float64         `json:"risk_fraction"`
	Priced       bool            `json:"priced"` // false when no price could be determined
}

// Result is the outcome of validating a draft.
type Result struct {
	Warnings []Warning       `json:"warnings"`
	Errors   []*Error        `json:"errors"`
	Risk     risk.Assessment `json:"risk"`
	Estimate Estimate        `json:"estimate"`
}

// Valid reports whether the order may be submitted. It is exactly len(Errors) == 0.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// HasWarnings reports whether any warning was raised.
func (r Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Has reports whether an error of kind was raised.
func (r Result) Has(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Warned reports whether a warning of kind was raised.
func (r Result) Warned(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// Messages returns the warning texts in order.
func (r Result) Messages() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Message
	}
	return out
}

// Err joins all blocking errors, or returns nil for a valid result.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *Result) fail(e *Error) {
	r.Errors = append(r.Errors, e)
}

func (r *Result) warn(kind WarningKind, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Settings are the sanity thresholds of the validator.
type Settings struct {
	PennyFloor    decimal.Decimal // bids below this raise a low-price warning
	DeviationWarn float64         // limit vs bid distance that raises a warning
}

// DefaultSettings returns a $5.00 penny floor and a 10% deviation warning.
func DefaultSettings() Settings {
	return Settings{
		PennyFloor:    decimal.NewFromInt(5),
		DeviationWarn: 0.10,
	}
}

// Validator checks drafts against quotes, balances and limits.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	Settings    Settings
	Session     risk.Session
	Scorer      *risk.Scorer
	Commissions cost.Schedule
	Now         func() time.Time
}

// NewValidator creates a validator. A nil session disables the market-hours check.
func NewValidator(settings Settings, session risk.Session, commissions cost.Schedule) *Validator {
	return &Validator{
		Settings:    settings,
		Session:     session,
		Scorer:      risk.NewScorer(session),
		Commissions: commissions,
		Now:         time.Now,
	}
}

var defaultValidator = NewValidator(DefaultSettings(), market.DefaultHours(), cost.DefaultSchedule())

// Validate checks d with the default validator.
func Validate(d Draft, q *trading.Quote, balance decimal.Decimal, limits risk.Limits) Result {
	return defaultValidator.Validate(d, q, balance, limits)
}

// Validate runs every check against d and always returns a result.
// A nil quote means no current price: checks that need one are skipped.
func (v *Validator) Validate(d Draft, q *trading.Quote, balance decimal.Decimal, limits risk.Limits) Result {
	var res Result
	now := v.now()
	if q != nil && q.Symbol != "" && trading.NormalizeSymbol(q.Symbol) != trading.NormalizeSymbol(d.Symbol) {
		q = nil
	}
	if limits.HardRiskCeiling <= 0 {
		limits.HardRiskCeiling = risk.DefaultHardRiskCeiling
	}
	if limits.RiskWarnThreshold <= 0 {
		limits.RiskWarnThreshold = risk.DefaultRiskWarnThreshold
	}

	// 1. structure
	if !d.Quantity.IsPositive() {
		res.fail(&Error{Kind: KindInvalidQuantity, Message: "Quantity must be greater than zero"})
	}
	if trading.NormalizeSymbol(d.Symbol) == "" {
		res.fail(&Error{Kind: KindMissingSymbol, Message: "Symbol is required"})
	}

	// 2. limit price
	if limit, ok := limitPrice(d); ok {
		if !limit.IsPositive() {
			res.fail(&Error{Kind: KindInvalidLimitPrice, Message: "Limit price must be greater than zero"})
		} else if q != nil {
			if dev, ok := trading.Deviation(limit, q.Bid); ok && dev > v.Settings.DeviationWarn {
				pct := limit.Sub(q.Bid).Abs().Div(q.Bid).Mul(decimal.NewFromInt(100)).Round(0)
				res.warn(WarnPriceDeviation, "Limit price is %s%% away from the current bid", pct.String())
			}
		}
	}

	// 3. stop price
	if stop, ok := stopPrice(d); ok && !stop.IsPositive() {
		res.fail(&Error{Kind: KindInvalidStopPrice, Message: "Stop price must be greater than zero"})
	}

	// 4-6. notional against balance and limits
	price, priced := v.notionalPrice(d, q)
	notional := d.Quantity.Abs().Mul(price)
	res.Estimate = Estimate{Price: price, Priced: priced}
	in := risk.Input{
		AccountBalance: balance,
		Quote:          q,
		At:             now,
		Protective:     d.Protective(),
		HasStop:        d.HasStop(),
	}
	if priced {
		in.PositionValue = notional
		fraction := in.Fraction()
		res.Estimate.Notional = notional
		res.Estimate.RiskFraction = fraction
		res.Estimate.Fees = v.Commissions.Estimate(d.Quantity, price, d.Side == SideSell)
		res.Estimate.Total = notional.Add(res.Estimate.Fees.Total)

		if notional.GreaterThan(balance) {
			res.fail(&Error{
				Kind:      KindInsufficientFunds,
				Message:   fmt.Sprintf("Order requires %s but only %s is available", notional.StringFixed(2), balance.StringFixed(2)),
				Required:  notional,
				Available: balance,
			})
		}
		if limits.MaxPositionSize > 0 {
			ceiling := balance.Mul(decimal.NewFromFloat(limits.MaxPositionSize))
			if notional.GreaterThan(ceiling) {
				res.fail(&Error{
					Kind:      KindExceedsPositionLimit,
					Message:   fmt.Sprintf("Position of %s exceeds the limit of %s", notional.StringFixed(2), ceiling.StringFixed(2)),
					Requested: notional,
					Limit:     ceiling,
				})
			}
		}
		if fraction > limits.HardRiskCeiling {
			ceiling := balance.Mul(decimal.NewFromFloat(limits.HardRiskCeiling))
			res.fail(&Error{
				Kind:      KindExceedsRiskLimit,
				Message:   fmt.Sprintf("Order uses %s of the account, above the %s ceiling", percent(fraction), percent(limits.HardRiskCeiling)),
				Requested: notional,
				Limit:     decimal.Max(ceiling, decimal.Zero),
			})
		} else if fraction > limits.RiskWarnThreshold {
			res.warn(WarnHighRisk, "High risk: order uses %s of the account", percent(fraction))
		}
	} else if q == nil && needsMarketPrice(d) {
		res.warn(WarnNoQuote, "No current quote for %s; funds and risk checks were skipped", d.Symbol)
	}

	// 7. order type structure
	v.checkStructure(&res, d, q)

	// 8. market hours
	if d.Type() == TypeMarket && v.Session != nil && !v.Session.IsOpen(now) {
		res.warn(WarnMarketClosed, "Market is closed; consider a limit order instead of a market order")
	}

	// 9. low price
	if q != nil {
		floor := trading.PriceCondition{Op: trading.OpBelow, Target: v.Settings.PennyFloor}
		if floor.Met(*q) {
			res.warn(WarnPennyStock, "%s trades below %s; low-priced stocks can be volatile and illiquid",
				d.Symbol, cost.FormatMoney(v.Settings.PennyFloor))
		}
	}

	scorer := v.Scorer
	if scorer == nil {
		scorer = risk.NewScorer(v.Session)
	}
	res.Risk = scorer.Assess(in)
	return res
}

func (v *Validator) checkStructure(res *Result, d Draft, q *trading.Quote) {
	switch t := d.Terms.(type) {
	case StopLoss:
		if !t.StopPrice.IsPositive() {
			res.fail(&Error{Kind: KindMissingStopLoss, Message: "Stop-loss orders require a stop price"})
		}
	case TakeProfit:
		if !t.TriggerPrice.IsPositive() {
			res.fail(&Error{Kind: KindMissingStopLoss, Message: "Take-profit orders require a trigger price"})
		}
	case StopLimit:
		if !t.StopPrice.IsPositive() || !t.LimitPrice.IsPositive() {
			res.fail(&Error{Kind: KindInvalidOrderCombination, Message: "Stop-limit orders require both a stop and a limit price"})
		}
	case Bracket:
		if !t.StopLossPrice.IsPositive() || !t.TakeProfitPrice.IsPositive() {
			res.fail(&Error{Kind: KindInvalidOrderCombination, Message: "Bracket orders require both a stop-loss and a take-profit price"})
			return
		}
		entry, ok := t.EntryPrice, t.EntryPrice.IsPositive()
		if !ok {
			entry, ok = marketPrice(d.Side, q)
		}
		if !ok {
			return
		}
		if d.Side == SideSell {
			if !(t.TakeProfitPrice.LessThan(entry) && entry.LessThan(t.StopLossPrice)) {
				res.fail(&Error{Kind: KindInvalidOrderCombination, Message: "Sell bracket needs take-profit below and stop-loss above the entry"})
			}
		} else if !(t.StopLossPrice.LessThan(entry) && entry.LessThan(t.TakeProfitPrice)) {
			res.fail(&Error{Kind: KindInvalidOrderCombination, Message: "Buy bracket needs stop-loss below and take-profit above the entry"})
		}
	case TrailingStop:
		if !t.TrailPercent.IsPositive() || t.TrailPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			res.fail(&Error{Kind: KindInvalidOrderCombination, Message: "Trailing stop percent must be between 0 and 100"})
		}
	}
}

// notionalPrice picks the price used for notional: the touch for market
// orders, otherwise the order's own price.
func (v *Validator) notionalPrice(d Draft, q *trading.Quote) (decimal.Decimal, bool) {
	var p decimal.Decimal
	switch t := d.Terms.(type) {
	case Limit:
		p = t.Price
	case StopLimit:
		p = t.LimitPrice
	case Stop:
		p = t.StopPrice
	case StopLoss:
		p = t.StopPrice
	case TakeProfit:
		p = t.TriggerPrice
	case Bracket:
		p = t.EntryPrice
		if !p.IsPositive() {
			return marketPrice(d.Side, q)
		}
	default:
		return marketPrice(d.Side, q)
	}
	return p, p.IsPositive()
}

func (v *Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// marketPrice is the ask for buys and the bid for sells.
func marketPrice(side Side, q *trading.Quote) (decimal.Decimal, bool) {
	if q == nil {
		return decimal.Zero, false
	}
	p := q.Ask
	if side == SideSell && q.Bid.IsPositive() {
		p = q.Bid
	}
	return p, p.IsPositive()
}

func needsMarketPrice(d Draft) bool {
	switch t := d.Terms.(type) {
	case Bracket:
		return !t.EntryPrice.IsPositive()
	case Market, TrailingStop, nil:
		return true
	default:
		return false
	}
}

func limitPrice(d Draft) (decimal.Decimal, bool) {
	switch t := d.Terms.(type) {
	case Limit:
		return t.Price, true
	case StopLimit:
		return t.LimitPrice, true
	default:
		return decimal.Zero, false
	}
}

func stopPrice(d Draft) (decimal.Decimal, bool) {
	switch t := d.Terms.(type) {
	case Stop:
		return t.StopPrice, true
	case StopLimit:
		return t.StopPrice, true
	default:
		return decimal.Zero, false
	}
}

func percent(f float64) string {
	if math.IsInf(f, 1) {
		return "all"
	}
	return fmt.Sprintf("%.1f%%", f*100)
}
