package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/cost"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

type session bool

func (s session) IsOpen(time.Time) bool { return bool(s) }

func testValidator(open bool) *Validator {
	v := NewValidator(DefaultSettings(), session(open), cost.DefaultSchedule())
	v.Now = func() time.Time { return time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC) }
	return v
}

// wideLimits keeps the position limit out of the way of risk-fraction checks.
func wideLimits() risk.Limits {
	l := risk.DefaultLimits()
	l.MaxPositionSize = 1
	return l
}

func limitDraft(symbol, qty, price string) Draft {
	return Draft{Symbol: symbol, Side: SideBuy, Quantity: dec(qty), Terms: Limit{Price: dec(price)}}
}

func marketDraft(symbol string, side Side, qty string) Draft {
	return Draft{Symbol: symbol, Side: side, Quantity: dec(qty), Terms: Market{}}
}

func countErrors(r Result, kind ErrorKind) int {
	n := 0
	for _, e := range r.Errors {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func countWarnings(r Result, kind WarningKind) int {
	n := 0
	for _, w := range r.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

func TestInsufficientFunds(t *testing.T) {
	v := testValidator(true)
	q := quote("TSLA", 249.5, 250)

	res := v.Validate(marketDraft("TSLA", SideBuy, "10"), q, dec("2000"), risk.DefaultLimits())

	require.False(t, res.Valid())
	require.True(t, res.Has(KindInsufficientFunds))
	for _, e := range res.Errors {
		if e.Kind == KindInsufficientFunds {
			assert.True(t, e.Required.Equal(dec("2500")), "required = %s", e.Required)
			assert.True(t, e.Available.Equal(dec("2000")), "available = %s", e.Available)
		}
	}
	assert.True(t, res.Estimate.Priced)
	assert.True(t, res.Estimate.Notional.Equal(dec("2500")))
}

func TestZeroLimitPriceIsStructural(t *testing.T) {
	v := testValidator(true)
	d := limitDraft("AAPL", "5", "0")

	cases := []struct {
		name    string
		quote   *trading.Quote
		balance string
	}{
		{"with quote", quote("AAPL", 100, 101), "1000000"},
		{"without quote", nil, "1000000"},
		{"zero balance", quote("AAPL", 100, 101), "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(d, tc.quote, dec(tc.balance), risk.DefaultLimits())
			assert.False(t, res.Valid())
			assert.True(t, res.Has(KindInvalidLimitPrice))
		})
	}
}

func TestNonPositiveQuantityAlwaysInvalid(t *testing.T) {
	v := testValidator(true)
	drafts := []Draft{
		marketDraft("AAPL", SideBuy, "0"),
		marketDraft("AAPL", SideSell, "-1"),
		limitDraft("AAPL", "0", "100"),
		{Symbol: "AAPL", Quantity: dec("0"), Terms: TrailingStop{TrailPercent: dec("5")}},
	}
	for _, d := range drafts {
		res := v.Validate(d, quote("AAPL", 100, 101), dec("1000000"), wideLimits())
		assert.False(t, res.Valid(), d.String())
		assert.True(t, res.Has(KindInvalidQuantity), d.String())
	}
}

func TestMissingSymbol(t *testing.T) {
	res := testValidator(true).Validate(marketDraft("  ", SideBuy, "1"), nil, dec("1000"), wideLimits())
	assert.False(t, res.Valid())
	assert.True(t, res.Has(KindMissingSymbol))
}

func TestPriceDeviationWarning(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		want  string // empty means no warning
	}{
		{"within band", "105", ""},
		{"exactly ten percent", "110", ""},
		{"below band", "91", ""},
		{"above band", "112.4", "Limit price is 12% away from the current bid"},
		{"rounds half up", "110.5", "Limit price is 11% away from the current bid"},
		{"far below", "75", "Limit price is 25% away from the current bid"},
	}

	v := testValidator(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(limitDraft("AAPL", "1", tt.limit), quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
			if tt.want == "" {
				assert.Equal(t, 0, countWarnings(res, WarnPriceDeviation))
				return
			}
			require.Equal(t, 1, countWarnings(res, WarnPriceDeviation))
			for _, w := range res.Warnings {
				if w.Kind == WarnPriceDeviation {
					assert.Equal(t, tt.want, w.Message)
				}
			}
			assert.True(t, res.Valid(), "deviation must not block")
		})
	}
}

func TestDeviationSkippedWithoutQuote(t *testing.T) {
	res := testValidator(true).Validate(limitDraft("AAPL", "1", "500"), nil, dec("1000000"), wideLimits())
	assert.Equal(t, 0, countWarnings(res, WarnPriceDeviation))
	assert.True(t, res.Valid())
}

func TestRiskFraction(t *testing.T) {
	tests := []struct {
		name      string
		qty       string
		wantError bool
		wantWarn  bool
	}{
		{"low", "50", false, false},                // 5%
		{"at warn threshold", "100", false, false}, // 10%
		{"high", "150", false, true},               // 15%
		{"at ceiling", "200", false, true},         // 20%
		{"over ceiling", "250", true, false},       // 25%
		{"far over ceiling", "900", true, false},
	}

	v := testValidator(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(limitDraft("AAPL", tt.qty, "100"), quote("AAPL", 100, 100.05), dec("100000"), wideLimits())
			if tt.wantError {
				assert.Equal(t, 1, countErrors(res, KindExceedsRiskLimit))
				assert.Equal(t, 0, countWarnings(res, WarnHighRisk))
				assert.False(t, res.Valid())
				return
			}
			assert.Equal(t, 0, countErrors(res, KindExceedsRiskLimit))
			if tt.wantWarn {
				assert.Equal(t, 1, countWarnings(res, WarnHighRisk))
			} else {
				assert.Equal(t, 0, countWarnings(res, WarnHighRisk))
			}
			assert.True(t, res.Valid())
		})
	}
}

func TestPositionLimit(t *testing.T) {
	v := testValidator(true)
	limits := risk.DefaultLimits() // 10% max position

	res := v.Validate(limitDraft("AAPL", "150", "100"), quote("AAPL", 100, 100.05), dec("100000"), limits)
	require.True(t, res.Has(KindExceedsPositionLimit))
	for _, e := range res.Errors {
		if e.Kind == KindExceedsPositionLimit {
			assert.True(t, e.Requested.Equal(dec("15000")))
			assert.True(t, e.Limit.Equal(dec("10000")))
		}
	}

	res = v.Validate(limitDraft("AAPL", "100", "100"), quote("AAPL", 100, 100.05), dec("100000"), limits)
	assert.False(t, res.Has(KindExceedsPositionLimit))
}

func TestZeroBalanceExceedsCeiling(t *testing.T) {
	res := testValidator(true).Validate(limitDraft("AAPL", "1", "100"), nil, decimal.Zero, wideLimits())
	assert.True(t, res.Has(KindInsufficientFunds))
	assert.True(t, res.Has(KindExceedsRiskLimit))
}

func TestMarketOrderWithoutQuote(t *testing.T) {
	res := testValidator(true).Validate(marketDraft("AAPL", SideBuy, "10"), nil, dec("100"), wideLimits())

	assert.True(t, res.Valid())
	assert.False(t, res.Estimate.Priced)
	assert.Equal(t, 1, countWarnings(res, WarnNoQuote))
	assert.False(t, res.Has(KindInsufficientFunds))
}

func TestQuoteForOtherSymbolIsIgnored(t *testing.T) {
	res := testValidator(true).Validate(marketDraft("AAPL", SideBuy, "10"), quote("MSFT", 1, 1), dec("100"), wideLimits())
	assert.Equal(t, 1, countWarnings(res, WarnNoQuote))
	assert.Equal(t, 0, countWarnings(res, WarnPennyStock))
}

func TestMarketSellUsesBid(t *testing.T) {
	res := testValidator(true).Validate(marketDraft("AAPL", SideSell, "10"), quote("AAPL", 99, 101), dec("100000"), wideLimits())
	assert.True(t, res.Estimate.Price.Equal(dec("99")))
	assert.True(t, res.Estimate.Fees.Total.Equal(dec("1.03")), "fees = %s", res.Estimate.Fees.Total)
	assert.True(t, res.Estimate.Total.Equal(dec("991.03")))
}

func TestOrderTypeStructure(t *testing.T) {
	tests := []struct {
		name  string
		terms Terms
		side  Side
		want  ErrorKind // empty means valid
	}{
		{"stop loss without stop", StopLoss{}, SideSell, KindMissingStopLoss},
		{"stop loss ok", StopLoss{StopPrice: dec("95")}, SideSell, ""},
		{"take profit without trigger", TakeProfit{}, SideSell, KindMissingStopLoss},
		{"stop limit missing limit", StopLimit{StopPrice: dec("101")}, SideBuy, KindInvalidOrderCombination},
		{"stop limit missing stop", StopLimit{LimitPrice: dec("101")}, SideBuy, KindInvalidOrderCombination},
		{"stop limit ok", StopLimit{StopPrice: dec("101"), LimitPrice: dec("102")}, SideBuy, ""},
		{"bracket missing take profit", Bracket{StopLossPrice: dec("95")}, SideBuy, KindInvalidOrderCombination},
		{"bracket inverted", Bracket{StopLossPrice: dec("110"), TakeProfitPrice: dec("90")}, SideBuy, KindInvalidOrderCombination},
		{"bracket buy ok", Bracket{StopLossPrice: dec("95"), TakeProfitPrice: dec("110")}, SideBuy, ""},
		{"bracket sell ok", Bracket{StopLossPrice: dec("105"), TakeProfitPrice: dec("90")}, SideSell, ""},
		{"bracket limit entry", Bracket{EntryPrice: dec("98"), StopLossPrice: dec("97"), TakeProfitPrice: dec("99")}, SideBuy, ""},
		{"trailing zero", TrailingStop{}, SideSell, KindInvalidOrderCombination},
		{"trailing hundred", TrailingStop{TrailPercent: dec("100")}, SideSell, KindInvalidOrderCombination},
		{"trailing ok", TrailingStop{TrailPercent: dec("3")}, SideSell, ""},
	}

	v := testValidator(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Draft{Symbol: "AAPL", Side: tt.side, Quantity: dec("1"), Terms: tt.terms}
			res := v.Validate(d, quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
			if tt.want == "" {
				assert.True(t, res.Valid(), "errors: %v", res.Err())
				return
			}
			assert.Equal(t, 1, countErrors(res, tt.want), "errors: %v", res.Err())
			assert.False(t, res.Valid())
		})
	}
}

func TestStopPriceStructural(t *testing.T) {
	d := Draft{Symbol: "AAPL", Side: SideBuy, Quantity: dec("1"), Terms: Stop{}}
	res := testValidator(true).Validate(d, quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
	assert.True(t, res.Has(KindInvalidStopPrice))
}

func TestMarketClosedWarning(t *testing.T) {
	v := testValidator(false)

	res := v.Validate(marketDraft("AAPL", SideBuy, "1"), quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
	assert.Equal(t, 1, countWarnings(res, WarnMarketClosed))
	assert.True(t, res.Valid())

	res = v.Validate(limitDraft("AAPL", "1", "100"), quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
	assert.Equal(t, 0, countWarnings(res, WarnMarketClosed))

	res = testValidator(true).Validate(marketDraft("AAPL", SideBuy, "1"), quote("AAPL", 100, 100.05), dec("1000000"), wideLimits())
	assert.Equal(t, 0, countWarnings(res, WarnMarketClosed))
}

func TestPennyStockWarning(t *testing.T) {
	v := testValidator(true)

	res := v.Validate(limitDraft("PNNY", "10", "4.5"), quote("PNNY", 4.5, 4.55), dec("1000000"), wideLimits())
	assert.Equal(t, 1, countWarnings(res, WarnPennyStock))
	assert.True(t, res.Valid())

	res = v.Validate(limitDraft("AAPL", "10", "5"), quote("AAPL", 5, 5.01), dec("1000000"), wideLimits())
	assert.Equal(t, 0, countWarnings(res, WarnPennyStock))
}

func TestValidIsExactlyNoErrors(t *testing.T) {
	v := testValidator(false)
	quotes := []*trading.Quote{nil, quote("AAPL", 100, 100.05), quote("AAPL", 3, 3.1)}
	balances := []string{"0", "500", "100000"}
	qtys := []string{"-1", "0", "1", "300"}
	terms := []Terms{
		Market{}, Limit{Price: dec("100")}, Limit{}, Stop{StopPrice: dec("101")},
		StopLimit{}, StopLoss{}, TakeProfit{TriggerPrice: dec("120")},
		Bracket{StopLossPrice: dec("90"), TakeProfitPrice: dec("120")}, TrailingStop{TrailPercent: dec("2")},
	}

	for _, q := range quotes {
		for _, b := range balances {
			for _, qty := range qtys {
				for _, tm := range terms {
					d := Draft{Symbol: "AAPL", Side: SideBuy, Quantity: dec(qty), Terms: tm}
					res := v.Validate(d, q, dec(b), risk.DefaultLimits())
					assert.Equal(t, len(res.Errors) == 0, res.Valid())
					assert.Equal(t, res.Valid(), res.Err() == nil)
					assert.NotEmpty(t, res.Risk.Recommendations)
				}
			}
		}
	}
}

func TestEmbeddedAssessmentUsesFraction(t *testing.T) {
	res := testValidator(true).Validate(limitDraft("AAPL", "200", "100"), quote("AAPL", 100, 100.05), dec("100000"), wideLimits())

	assert.Equal(t, trading.RiskHigh, res.Risk.PositionSize)
	assert.InDelta(t, 0.20, res.Estimate.RiskFraction, 1e-9)
	assert.Contains(t, res.Risk.Recommendations, risk.RecReducePosition)
}

func TestErrJoinsErrors(t *testing.T) {
	res := testValidator(true).Validate(marketDraft("", SideBuy, "0"), nil, dec("100"), wideLimits())
	err := res.Err()
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindInvalidQuantity, verr.Kind)
	assert.Contains(t, err.Error(), string(KindMissingSymbol))
}

func TestPackageValidate(t *testing.T) {
	res := Validate(limitDraft("AAPL", "1", "100"), quote("AAPL", 100, 100.05), dec("100000"), risk.DefaultLimits())
	assert.True(t, res.Valid())
}
