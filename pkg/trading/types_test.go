package trading

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

func TestQuotePrices(t *testing.T) {
	q := NewQuote(" aapl", 100, 101, 0, 1.5, now)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.True(t, q.Valid())
	assert.True(t, q.Mid().Equal(decimal.RequireFromString("100.5")))
	assert.True(t, q.Mark().Equal(q.Mid()), "mark falls back to mid without a last trade")
	assert.True(t, q.Spread().Equal(decimal.NewFromInt(1)))

	ratio, ok := q.SpreadRatio()
	require.True(t, ok)
	assert.InDelta(t, 1/100.5, ratio, 1e-9)

	oneSided := NewQuote("AAPL", 100, 0, 0, 0, now)
	assert.True(t, oneSided.Spread().IsZero())
	_, ok = oneSided.SpreadRatio()
	assert.False(t, ok)

	assert.False(t, Quote{Symbol: "AAPL"}.Valid())
}

func TestPositionReprice(t *testing.T) {
	p := Position{
		Symbol:   "AAPL",
		Quantity: decimal.NewFromInt(10),
		AvgPrice: decimal.NewFromInt(150),
	}

	got := p.Reprice(NewQuote("AAPL", 159, 161, 160, 0, now))
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(1600)))
	assert.True(t, got.UnrealizedPnL.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, now, got.UpdatedAt)
	assert.True(t, p.MarketValue.IsZero(), "original must not change")

	short := Position{Symbol: "TSLA", Quantity: decimal.NewFromInt(-5), AvgPrice: decimal.NewFromInt(200)}
	got = short.Reprice(NewQuote("TSLA", 0, 0, 180, 0, now))
	assert.True(t, got.IsShort())
	assert.True(t, got.MarketValue.Equal(decimal.NewFromInt(-900)))
	assert.True(t, got.UnrealizedPnL.Equal(decimal.NewFromInt(100)))

	other := p.Reprice(NewQuote("MSFT", 1, 1, 1, 0, now))
	assert.Equal(t, p, other)
}

func TestPriceCondition(t *testing.T) {
	target := decimal.RequireFromString("180.00")
	above := PriceCondition{Op: OpAtOrAbove, Target: target}
	below := PriceCondition{Op: OpAtOrBelow, Target: target}
	strict := PriceCondition{Op: OpBelow, Target: target}

	tests := []struct {
		bid                 float64
		above, below, under bool
	}{
		{180.01, true, false, false},
		{180.00, true, true, false},
		{179.99, false, true, true},
		{0, false, false, false},
	}
	for _, tt := range tests {
		q := NewQuote("AAPL", tt.bid, tt.bid+0.02, 0, 0, now)
		assert.Equal(t, tt.above, above.Met(q), "above at %v", tt.bid)
		assert.Equal(t, tt.below, below.Met(q), "below at %v", tt.bid)
		assert.Equal(t, tt.under, strict.Met(q), "strict below at %v", tt.bid)
	}
}

func TestChangeCondition(t *testing.T) {
	c := ChangeCondition{Threshold: -5}
	assert.True(t, c.Met(Quote{ChangePercent: 5}))
	assert.True(t, c.Met(Quote{ChangePercent: -7.5}))
	assert.False(t, c.Met(Quote{ChangePercent: 4.99}))
	assert.False(t, Never{}.Met(Quote{ChangePercent: 100}))
}

func TestDeviation(t *testing.T) {
	dev, ok := Deviation(decimal.NewFromInt(90), decimal.NewFromInt(100))
	require.True(t, ok)
	assert.InDelta(t, 0.10, dev, 1e-12)

	_, ok = Deviation(decimal.NewFromInt(90), decimal.Zero)
	assert.False(t, ok)
}

func TestRiskLevelText(t *testing.T) {
	for _, l := range []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskExtreme} {
		parsed, err := ParseRiskLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseRiskLevel("catastrophic")
	assert.Error(t, err)

	out, err := json.Marshal(map[string]RiskLevel{"overall": RiskHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"overall":"high"}`, string(out))

	assert.Equal(t, RiskLow, MaxLevel())
	assert.Equal(t, RiskExtreme, MaxLevel(RiskMedium, RiskExtreme, RiskLow))
}

func TestLevelForRatio(t *testing.T) {
	bounds := [3]float64{1, 2, 3}
	assert.Equal(t, RiskLow, LevelForRatio(1, bounds))
	assert.Equal(t, RiskMedium, LevelForRatio(1.5, bounds))
	assert.Equal(t, RiskHigh, LevelForRatio(3, bounds))
	assert.Equal(t, RiskExtreme, LevelForRatio(3.01, bounds))
}
