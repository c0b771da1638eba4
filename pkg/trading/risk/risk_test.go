package risk

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

type fakeSession bool

func (f fakeSession) IsOpen(time.Time) bool { return bool(f) }

func input(value, balance float64) Input {
	return Input{
		PositionValue:  decimal.NewFromFloat(value),
		AccountBalance: decimal.NewFromFloat(balance),
	}
}

func TestPositionSizeLevels(t *testing.T) {
	tests := []struct {
		value float64
		want  trading.RiskLevel
	}{
		{0, trading.RiskLow},
		{500, trading.RiskLow}, // exactly 5%
		{501, trading.RiskMedium},
		{1500, trading.RiskMedium},
		{3000, trading.RiskHigh},
		{3001, trading.RiskExtreme},
	}

	scorer := PositionSizeScorer()
	for _, tt := range tests {
		got := scorer.Score(input(tt.value, 10000))
		assert.Equal(t, tt.want, got, "value %.0f", tt.value)
	}
}

func TestFractionWithoutBalance(t *testing.T) {
	assert.True(t, math.IsInf(input(100, 0).Fraction(), 1))
	assert.Equal(t, 0.0, input(0, 0).Fraction())
	assert.InDelta(t, 0.25, input(-250, 1000).Fraction(), 1e-9)
}

func TestOverallIsMaxOfComponents(t *testing.T) {
	levels := []trading.RiskLevel{trading.RiskLow, trading.RiskMedium, trading.RiskHigh, trading.RiskExtreme}
	for _, a := range levels {
		for _, b := range levels {
			for _, c := range levels {
				for _, d := range levels {
					s := &Scorer{PositionSize: Fixed(a), Price: Fixed(b), Liquidity: Fixed(c), Time: Fixed(d)}
					got := s.Assess(Input{})
					want := trading.MaxLevel(a, b, c, d)
					if got.Overall != want {
						t.Fatalf("overall(%s,%s,%s,%s) = %s, want %s", a, b, c, d, got.Overall, want)
					}
					for _, component := range []trading.RiskLevel{got.PositionSize, got.Price, got.Liquidity, got.Time} {
						if got.Overall < component {
							t.Fatalf("overall %s below component %s", got.Overall, component)
						}
					}
				}
			}
		}
	}
}

func TestRecommendations(t *testing.T) {
	s := NewScorer(nil)

	a := s.Assess(input(500, 10000))
	assert.Equal(t, []string{RecAcceptable}, a.Recommendations)

	a = s.Assess(input(1500, 10000))
	assert.Equal(t, []string{RecReducePosition}, a.Recommendations)

	in := input(100, 10000)
	in.Protective = true
	a = s.Assess(in)
	assert.Equal(t, []string{RecAddStopLoss}, a.Recommendations)

	in.HasStop = true
	a = s.Assess(in)
	assert.Equal(t, []string{RecAcceptable}, a.Recommendations)
}

func TestQuoteDrivenScorers(t *testing.T) {
	q := trading.NewQuote("AAPL", 100.00, 100.05, 100.02, -1.5, time.Now())
	in := input(100, 10000)
	in.Quote = &q

	assert.Equal(t, trading.RiskLow, PriceScorer().Score(in))
	assert.Equal(t, trading.RiskLow, LiquidityScorer().Score(in))

	wide := trading.NewQuote("XYZ", 1.00, 1.10, 1.05, 12, time.Now())
	in.Quote = &wide
	assert.Equal(t, trading.RiskExtreme, PriceScorer().Score(in))
	assert.Equal(t, trading.RiskExtreme, LiquidityScorer().Score(in))

	in.Quote = nil
	assert.Equal(t, trading.RiskMedium, PriceScorer().Score(in))
	assert.Equal(t, trading.RiskMedium, LiquidityScorer().Score(in))
}

func TestTimeScorer(t *testing.T) {
	in := Input{At: time.Now()}
	assert.Equal(t, trading.RiskLow, TimeScorer(fakeSession(true)).Score(in))
	assert.Equal(t, trading.RiskMedium, TimeScorer(fakeSession(false)).Score(in))
	assert.Equal(t, trading.RiskMedium, TimeScorer(nil).Score(in))
}

func TestPresetsAreValid(t *testing.T) {
	for _, p := range []Profile{ProfileConservative, ProfileModerate, ProfileAggressive} {
		l, err := LimitsFor(p)
		require.NoError(t, err, p)
		require.NoError(t, l.Validate(), p)
	}

	_, err := LimitsFor(ProfileCustom)
	assert.Error(t, err)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(" Aggressive ")
	require.NoError(t, err)
	assert.Equal(t, ProfileAggressive, p)

	p, err = ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileModerate, p)

	_, err = ParseProfile("reckless")
	assert.Error(t, err)
}

func TestCustomLimits(t *testing.T) {
	l, err := Custom(Limits{
		MaxPositionSize:   0.15,
		MaxSectorExposure: 0.35,
		MaxDailyLoss:      0.04,
		MaxVolatility:     0.30,
		MaxDrawdown:       0.25,
		MaxVaR:            0.06,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultHardRiskCeiling, l.HardRiskCeiling)
	assert.Equal(t, DefaultRiskWarnThreshold, l.RiskWarnThreshold)

	_, err = Custom(Limits{MaxPositionSize: 1.5})
	assert.Error(t, err)

	bad := DefaultLimits()
	bad.RiskWarnThreshold = 0.5
	assert.Error(t, bad.Validate(), "warn threshold above the hard ceiling")
}
