// Package alert evaluates standing price alerts against quotes.
//
// An alert is active until its condition is met, at which point it records
// the trigger time and never fires again. Users can disable and re-enable an
// alert at any time; an alert whose expiry has passed without triggering is
// reported as expired.
package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

var (
	// ErrNotFound is returned for an unknown alert id.
	ErrNotFound = errors.New("alert not found")
	// ErrUnsupportedCondition marks conditions that can never be evaluated.
	ErrUnsupportedCondition = errors.New("unsupported alert condition")
)

// Condition is what an alert watches for.
type Condition string

const (
	PriceAbove    Condition = "price_above"
	PriceBelow    Condition = "price_below"
	CrossesAbove  Condition = "crosses_above"
	CrossesBelow  Condition = "crosses_below"
	PercentChange Condition = "percent_change"
	VolumeSpike   Condition = "volume_spike"
)

var conditions = []Condition{PriceAbove, PriceBelow, CrossesAbove, CrossesBelow, PercentChange, VolumeSpike}

// ParseCondition parses a condition name. Dashes are accepted.
func ParseCondition(s string) (Condition, error) {
	name := Condition(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, c := range conditions {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown alert condition: %q", s)
}

// Supported reports ErrUnsupportedCondition for conditions that need inputs
// a quote does not carry.
func Supported(c Condition) error {
	if c == VolumeSpike {
		return fmt.Errorf("%w: %s needs average volume history", ErrUnsupportedCondition, c)
	}
	return nil
}

// State is the lifecycle state of an alert.
type State string

const (
	StateActive    State = "active"
	StateTriggered State = "triggered"
	StateInactive  State = "inactive"
	StateExpired   State = "expired"
)

// Alert is a standing price alert.
type Alert struct {
	ID            string          `json:"id" yaml:"id"`
	Symbol        string          `json:"symbol" yaml:"symbol"`
	Condition     Condition       `json:"condition" yaml:"condition"`
	TargetPrice   decimal.Decimal `json:"target_price" yaml:"target_price"`
	TargetPercent float64         `json:"target_percent,omitempty" yaml:"target_percent,omitempty"`
	CreatedAt     time.Time       `json:"created_at" yaml:"created_at"`
	Active        bool            `json:"active" yaml:"active"`
	TriggeredAt   *time.Time      `json:"triggered_at,omitempty" yaml:"triggered_at,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`

	Note                 string `json:"note,omitempty" yaml:"note,omitempty"`
	NotificationsEnabled bool   `json:"notifications_enabled" yaml:"notifications_enabled"`
}

// New creates an active alert. Price conditions need a positive target
// price and percent-change needs a non-zero target percent.
func New(symbol string, cond Condition, price decimal.Decimal, percent float64, now time.Time) (Alert, error) {
	a := Alert{
		ID:                   uuid.NewString(),
		Symbol:               trading.NormalizeSymbol(symbol),
		Condition:            cond,
		TargetPrice:          price,
		TargetPercent:        percent,
		CreatedAt:            now,
		Active:               true,
		NotificationsEnabled: true,
	}
	if err := a.Check(); err != nil {
		return Alert{}, err
	}
	return a, nil
}

// Check reports whether the alert is well formed.
func (a Alert) Check() error {
	if a.Symbol == "" {
		return errors.New("alert symbol is required")
	}
	switch a.Condition {
	case PriceAbove, PriceBelow, CrossesAbove, CrossesBelow:
		if !a.TargetPrice.IsPositive() {
			return fmt.Errorf("%s alert needs a positive target price", a.Condition)
		}
	case PercentChange:
		if a.TargetPercent == 0 {
			return errors.New("percent_change alert needs a target percent")
		}
	case VolumeSpike:
	default:
		return fmt.Errorf("unknown alert condition: %q", a.Condition)
	}
	return nil
}

// State derives the lifecycle state at now. A trigger always wins; an
// untriggered alert past its expiry is expired even when disabled.
func (a Alert) State(now time.Time) State {
	switch {
	case a.TriggeredAt != nil:
		return StateTriggered
	case a.ExpiresAt != nil && now.After(*a.ExpiresAt):
		return StateExpired
	case !a.Active:
		return StateInactive
	default:
		return StateActive
	}
}

// Predicate returns the quote condition for the alert.
func (a Alert) Predicate() trading.Condition {
	switch a.Condition {
	case PriceAbove, CrossesAbove:
		return trading.PriceCondition{Op: trading.OpAtOrAbove, Target: a.TargetPrice}
	case PriceBelow, CrossesBelow:
		return trading.PriceCondition{Op: trading.OpAtOrBelow, Target: a.TargetPrice}
	case PercentChange:
		return trading.ChangeCondition{Threshold: a.TargetPercent}
	default:
		return trading.Never{}
	}
}

// Describe returns a short description such as "AAPL price_above 180".
func (a Alert) Describe() string {
	if a.Condition == PercentChange {
		return fmt.Sprintf("%s %s %g%%", a.Symbol, a.Condition, a.TargetPercent)
	}
	return fmt.Sprintf("%s %s %s", a.Symbol, a.Condition, a.TargetPrice)
}

// Trigger is emitted once, when an alert moves from active to triggered.
// Delivering it to the user is up to the caller.
type Trigger struct {
	AlertID   string        `json:"alert_id"`
	Symbol    string        `json:"symbol"`
	Condition Condition     `json:"condition"`
	Target    string        `json:"target"`
	Quote     trading.Quote `json:"quote"`
	At        time.Time     `json:"at"`
	Note      string        `json:"note,omitempty"`
	Notify    bool          `json:"notify"`
}

// Message is a human-readable line for the trigger.
func (t Trigger) Message() string {
	return fmt.Sprintf("%s %s %s (bid %s, change %.2f%%)",
		t.Symbol, strings.ReplaceAll(string(t.Condition), "_", " "), t.Target, t.Quote.Bid, t.Quote.ChangePercent)
}

// Evaluate checks a against q at now. It returns the alert unchanged and a
// nil trigger unless the alert is active, q is for the same symbol and the
// condition is met; then TriggeredAt is set to now and a trigger returned.
// Evaluating a triggered alert is always a no-op.
func Evaluate(a Alert, q trading.Quote, now time.Time) (Alert, *Trigger) {
	if a.State(now) != StateActive {
		return a, nil
	}
	if trading.NormalizeSymbol(q.Symbol) != a.Symbol {
		return a, nil
	}
	if !a.Predicate().Met(q) {
		return a, nil
	}

	at := now
	a.TriggeredAt = &at
	target := a.TargetPrice.String()
	if a.Condition == PercentChange {
		target = fmt.Sprintf("%g%%", a.TargetPercent)
	}
	return a, &Trigger{
		AlertID:   a.ID,
		Symbol:    a.Symbol,
		Condition: a.Condition,
		Target:    target,
		Quote:     q,
		At:        now,
		Note:      a.Note,
		Notify:    a.NotificationsEnabled,
	}
}

// SetActive enables or disables a. TriggeredAt is left untouched.
func SetActive(a Alert, active bool) Alert {
	a.Active = active
	return a
}
