// Package risk holds risk limits and the scoring shared by order validation
// and portfolio analysis.
package risk

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Profile names a preset of risk limits.
type Profile string

const (
	ProfileConservative Profile = "conservative"
	ProfileModerate     Profile = "moderate"
	ProfileAggressive   Profile = "aggressive"
	ProfileCustom       Profile = "custom"
)

// Default thresholds for the notional-to-balance ratio of a single order.
const (
	DefaultHardRiskCeiling   = 0.20
	DefaultRiskWarnThreshold = 0.10
)

// Limits are read-only ceilings applied to orders and portfolios.
// Every ratio is a fraction, so 0.10 means 10%.
type Limits struct {
	MaxPositionSize   float64 `json:"max_position_size" yaml:"max_position_size" mapstructure:"max_position_size" validate:"gt=0,lte=1"`
	MaxSectorExposure float64 `json:"max_sector_exposure" yaml:"max_sector_exposure" mapstructure:"max_sector_exposure" validate:"gt=0,lte=1"`
	MaxDailyLoss      float64 `json:"max_daily_loss" yaml:"max_daily_loss" mapstructure:"max_daily_loss" validate:"gt=0,lte=1"`
	MaxVolatility     float64 `json:"max_volatility" yaml:"max_volatility" mapstructure:"max_volatility" validate:"gt=0"`
	MaxDrawdown       float64 `json:"max_drawdown" yaml:"max_drawdown" mapstructure:"max_drawdown" validate:"gt=0,lte=1"`
	MaxVaR            float64 `json:"max_var" yaml:"max_var" mapstructure:"max_var" validate:"gt=0,lte=1"` // fraction of portfolio value

	// HardRiskCeiling rejects an order whose notional exceeds this share of the balance.
	HardRiskCeiling float64 `json:"hard_risk_ceiling" yaml:"hard_risk_ceiling" mapstructure:"hard_risk_ceiling" validate:"gt=0,lte=1"`
	// RiskWarnThreshold flags an order above this share of the balance.
	RiskWarnThreshold float64 `json:"risk_warn_threshold" yaml:"risk_warn_threshold" mapstructure:"risk_warn_threshold" validate:"gt=0,ltefield=HardRiskCeiling"`
}

var presets = map[Profile]Limits{
	ProfileConservative: {
		MaxPositionSize:   0.05,
		MaxSectorExposure: 0.20,
		MaxDailyLoss:      0.02,
		MaxVolatility:     0.15,
		MaxDrawdown:       0.10,
		MaxVaR:            0.02,
		HardRiskCeiling:   DefaultHardRiskCeiling,
		RiskWarnThreshold: DefaultRiskWarnThreshold,
	},
	ProfileModerate: {
		MaxPositionSize:   0.10,
		MaxSectorExposure: 0.30,
		MaxDailyLoss:      0.05,
		MaxVolatility:     0.25,
		MaxDrawdown:       0.20,
		MaxVaR:            0.05,
		HardRiskCeiling:   DefaultHardRiskCeiling,
		RiskWarnThreshold: DefaultRiskWarnThreshold,
	},
	ProfileAggressive: {
		MaxPositionSize:   0.25,
		MaxSectorExposure: 0.40,
		MaxDailyLoss:      0.10,
		MaxVolatility:     0.40,
		MaxDrawdown:       0.30,
		MaxVaR:            0.10,
		HardRiskCeiling:   DefaultHardRiskCeiling,
		RiskWarnThreshold: DefaultRiskWarnThreshold,
	},
}

// ParseProfile parses a profile name, case-insensitively.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProfileConservative, ProfileModerate, ProfileAggressive, ProfileCustom:
		return p, nil
	case "":
		return ProfileModerate, nil
	default:
		return "", fmt.Errorf("unknown risk profile: %q", s)
	}
}

// LimitsFor returns the preset for p. The custom profile has no preset;
// use Custom instead.
func LimitsFor(p Profile) (Limits, error) {
	l, ok := presets[p]
	if !ok {
		return Limits{}, fmt.Errorf("no preset limits for profile %q", p)
	}
	return l, nil
}

// DefaultLimits returns the moderate preset.
func DefaultLimits() Limits {
	return presets[ProfileModerate]
}

// Custom fills the order thresholds of l from the defaults when unset and validates it.
func Custom(l Limits) (Limits, error) {
	if l.HardRiskCeiling == 0 {
		l.HardRiskCeiling = DefaultHardRiskCeiling
	}
	if l.RiskWarnThreshold == 0 {
		l.RiskWarnThreshold = DefaultRiskWarnThreshold
	}
	if err := l.Validate(); err != nil {
		return Limits{}, err
	}
	return l, nil
}

var validate = validator.New()

// Validate checks every ceiling is a sensible fraction.
func (l Limits) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid risk limits: %w", err)
	}
	return nil
}
