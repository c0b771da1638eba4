package trading

import (
	"fmt"
	"strings"
)

// RiskLevel classifies risk. Levels are ordered: Low < Medium < High < Extreme.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskExtreme
)

var riskLevelNames = [...]string{"low", "medium", "high", "extreme"}

func (l RiskLevel) String() string {
	if l < RiskLow || l > RiskExtreme {
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
	return riskLevelNames[l]
}

// ParseRiskLevel parses a level name, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range riskLevelNames {
		if n == name {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MaxLevel returns the highest of the given levels, or RiskLow when none are given.
func MaxLevel(levels ...RiskLevel) RiskLevel {
	out := RiskLow
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// LevelForRatio buckets ratio against ascending upper bounds: a ratio at or
// below bounds[0] is Low, at or below bounds[1] Medium, at or below bounds[2]
// High, and anything larger Extreme.
func LevelForRatio(ratio float64, bounds [3]float64) RiskLevel {
	switch {
	case ratio <= bounds[0]:
		return RiskLow
	case ratio <= bounds[1]:
		return RiskMedium
	case ratio <= bounds[2]:
		return RiskHigh
	default:
		return RiskExtreme
	}
}
