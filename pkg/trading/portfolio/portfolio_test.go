package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

func ptr(f float64) *float64 { return &f }

func position(symbol, sector string, value int64) trading.Position {
	return trading.Position{
		Symbol:      symbol,
		Sector:      sector,
		Quantity:    decimal.NewFromInt(value / 100),
		AvgPrice:    decimal.NewFromInt(100),
		MarketValue: decimal.NewFromInt(value),
	}
}

func threeSectors() []trading.Position {
	return []trading.Position{
		position("AAPL", "Technology", 45000),
		position("JNJ", "Healthcare", 30000),
		position("XOM", "Energy", 25000),
	}
}

func TestConcentrationAndSectors(t *testing.T) {
	r := Assess(threeSectors(), Inputs{})

	assert.InDelta(t, 0.45, r.Concentration, 1e-9)
	assert.InDelta(t, 0.355, r.HHI, 1e-9)
	assert.InDelta(t, 1.0, r.Top5Weight, 1e-9)

	require.Len(t, r.Sectors, 3)
	assert.Equal(t, "Technology", r.Sectors[0].Sector, "sectors sorted by weight")

	tech, ok := r.Sector("Technology")
	require.True(t, ok)
	assert.Equal(t, trading.RiskHigh, tech.Level)

	health, _ := r.Sector("Healthcare")
	assert.Equal(t, trading.RiskMedium, health.Level)

	energy, _ := r.Sector("Energy")
	assert.Equal(t, trading.RiskLow, energy.Level, "exactly 25% is not above the medium threshold")
}

func TestBetaAndVaR(t *testing.T) {
	positions := threeSectors()
	positions[0].Beta = ptr(1.5)
	positions[1].Beta = ptr(0.5)

	r := Assess(positions, Inputs{})

	// missing beta counts as 1.0
	assert.InDelta(t, 0.45*1.5+0.30*0.5+0.25*1.0, r.Beta, 1e-9)

	want := 100000 * 0.30 * 1.96 / math.Sqrt(252)
	assert.InDelta(t, want, r.VaR95.InexactFloat64(), 0.05)
	assert.InDelta(t, want/100000, r.VaRRatio, 1e-6)
	assert.True(t, r.GrossValue.Equal(decimal.NewFromInt(100000)))
}

func TestVaRUsesPositionVolatility(t *testing.T) {
	positions := []trading.Position{position("AAPL", "Technology", 10000)}
	positions[0].Volatility = ptr(0.50)

	r := Assess(positions, Inputs{})
	assert.InDelta(t, 10000*0.50*1.96/math.Sqrt(252), r.VaR95.InexactFloat64(), 0.01)
}

func TestModeledVolatility(t *testing.T) {
	r := Assess(threeSectors(), Inputs{})

	// constant correlation 0.3 and 30% volatility for every holding
	variance := 0.09 * (0.355 + 0.3*(1-0.355))
	assert.InDelta(t, math.Sqrt(variance), r.Volatility, 1e-9)
	assert.Less(t, r.Volatility, 0.30, "diversified volatility is below the average")

	r = Assess(threeSectors(), Inputs{Volatility: ptr(0.18)})
	assert.Equal(t, 0.18, r.Volatility)
}

func TestSuppliedAndDerivedDrawdown(t *testing.T) {
	r := Assess(threeSectors(), Inputs{MaxDrawdown: ptr(-0.12), Sharpe: ptr(1.1)})
	assert.Equal(t, 0.12, r.MaxDrawdown)
	assert.Equal(t, 1.1, r.Sharpe)

	r = Assess(threeSectors(), Inputs{DailyReturns: []float64{0.1, -0.5, 0.2}})
	assert.InDelta(t, 0.5, r.MaxDrawdown, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0.01, 0.02}))
	assert.InDelta(t, 0.19, MaxDrawdown([]float64{-0.1, -0.1, 0.05}), 1e-9)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{0.01}, 0, 252))
	assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01}, 0, 252), "no variance")

	returns := []float64{0.01, -0.01, 0.02, 0.0}
	mean := 0.005
	sd := math.Sqrt((0.005*0.005 + 0.015*0.015 + 0.015*0.015 + 0.005*0.005) / 3)
	assert.InDelta(t, mean/sd*math.Sqrt(252), Sharpe(returns, 0, 252), 1e-9)
}

func TestStatusScore(t *testing.T) {
	tests := []struct {
		name                    string
		conc, vol, dd, varRatio float64
		wantScore               float64
		wantLevel               trading.RiskLevel
	}{
		{"calm", 0.10, 0.06, 0.02, 0.005, 0.25 + 0.2 + 0.1 + 0.1, trading.RiskLow},
		{"medium", 0.40, 0.03, 0, 0, 1.1, trading.RiskMedium},
		{"high", 0.40, 0.30, 0.02, 0, 2.1, trading.RiskHigh},
		{"capped extreme", 0.90, 0.90, 0.90, 0.90, 4, trading.RiskExtreme},
		{"exactly three", 0.40, 0.30, 0.20, 0, 3, trading.RiskExtreme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := StatusScore(tt.conc, tt.vol, tt.dd, tt.varRatio)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.Equal(t, tt.wantLevel, statusLevel(score))
		})
	}
}

func TestReportStatus(t *testing.T) {
	r := Assess(threeSectors(), Inputs{Volatility: ptr(0.15), MaxDrawdown: ptr(0.05)})

	want := 1 + 0.5 + 0.25 + r.VaRRatio/0.05
	assert.InDelta(t, want, r.Score, 1e-9)
	assert.Equal(t, trading.RiskHigh, r.Status)
}

func TestBreachesAndRecommendations(t *testing.T) {
	r := Assess(threeSectors(), Inputs{Limits: risk.DefaultLimits()})

	var names []string
	for _, b := range r.Breaches {
		names = append(names, b.Limit)
	}
	assert.ElementsMatch(t, []string{"max_position_size", "max_sector_exposure"}, names)
	assert.Contains(t, r.Recommendations, "Diversify: AAPL is 45% of the portfolio")
	assert.Contains(t, r.Recommendations, "Reduce exposure to Technology (45%)")
}

func TestDailyLossBreach(t *testing.T) {
	r := Assess(threeSectors(), Inputs{Limits: risk.DefaultLimits(), DailyReturns: []float64{0.01, -0.07}})

	found := false
	for _, b := range r.Breaches {
		if b.Limit == "max_daily_loss" {
			found = true
			assert.InDelta(t, 0.07, b.Value, 1e-9)
		}
	}
	assert.True(t, found)
}

func TestEmptyPortfolio(t *testing.T) {
	r := Assess(nil, Inputs{Limits: risk.DefaultLimits()})

	assert.Equal(t, 0, r.Positions)
	assert.True(t, r.GrossValue.IsZero())
	assert.Equal(t, trading.RiskLow, r.Status)
	assert.Empty(t, r.Breaches)
	assert.Equal(t, []string{risk.RecAcceptable}, r.Recommendations)
}

func TestShortPositionsReduceBeta(t *testing.T) {
	positions := []trading.Position{
		position("AAPL", "Technology", 50000),
		position("QQQ", "ETF", -50000),
	}
	r := Assess(positions, Inputs{})

	assert.InDelta(t, 0.0, r.Beta, 1e-9)
	assert.InDelta(t, 0.5, r.Concentration, 1e-9)
	assert.True(t, r.NetValue.IsZero())
	assert.True(t, r.GrossValue.Equal(decimal.NewFromInt(100000)))
}

func TestLargestHoldingAssessment(t *testing.T) {
	q := trading.NewQuote("AAPL", 100, 100.05, 100, 1, time.Time{})
	r := Assess(threeSectors(), Inputs{
		AccountBalance: decimal.NewFromInt(200000),
		Quotes:         map[string]trading.Quote{"AAPL": q},
	})

	// 45,000 of 200,000 is 22.5%
	assert.Equal(t, trading.RiskHigh, r.Largest.PositionSize)
	assert.Equal(t, trading.RiskLow, r.Largest.Price)
	assert.Equal(t, trading.MaxLevel(r.Largest.PositionSize, r.Largest.Price, r.Largest.Liquidity, r.Largest.Time), r.Largest.Overall)
}

func TestWeightsFallBackWithoutValues(t *testing.T) {
	positions := []trading.Position{
		{Symbol: "AAPL", Sector: "Technology", Weight: 0.45},
		{Symbol: "JNJ", Sector: "Healthcare", Weight: 0.30},
		{Symbol: "XOM", Weight: 0.25},
	}
	r := Assess(positions, Inputs{})

	assert.InDelta(t, 0.45, r.Concentration, 1e-9)
	_, ok := r.Sector(Unclassified)
	assert.True(t, ok)
}
