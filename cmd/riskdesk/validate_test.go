package main

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/order"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

func TestTicketFields(t *testing.T) {
	tk := ticket{side: "SELL", kind: "bracket", tif: "gtc", qty: "5", stopLoss: "210", takeProfit: " 180 "}

	f, typ, err := tk.fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if typ != order.TypeBracket || f.Side != order.SideSell || f.TimeInForce != order.TIFGTC {
		t.Errorf("got %s %s %s", typ, f.Side, f.TimeInForce)
	}
	if !f.Quantity.Equal(decimal.NewFromInt(5)) || !f.TakeProfitPrice.Equal(decimal.NewFromInt(180)) {
		t.Errorf("qty %s take-profit %s", f.Quantity, f.TakeProfitPrice)
	}
	if !f.LimitPrice.IsZero() {
		t.Errorf("unset limit should stay zero, got %s", f.LimitPrice)
	}
}

func TestTicketTakeProfitStop(t *testing.T) {
	tk := ticket{side: "sell", kind: "take_profit", tif: "day", qty: "5", stop: "210"}

	f, typ, err := tk.fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if !f.TakeProfitPrice.Equal(decimal.NewFromInt(210)) {
		t.Fatalf("take-profit trigger = %s, want 210", f.TakeProfitPrice)
	}

	b := &order.Builder{}
	d := b.Build("AAPL", b.SelectType(f, typ, nil))
	tp, ok := d.Terms.(order.TakeProfit)
	if !ok || !tp.TriggerPrice.Equal(decimal.NewFromInt(210)) {
		t.Fatalf("terms = %#v", d.Terms)
	}

	res := order.Validate(d, nil, decimal.NewFromInt(100000), risk.DefaultLimits())
	for _, e := range res.Errors {
		if e.Kind == order.KindMissingStopLoss {
			t.Errorf("take_profit with --stop rejected: %s", e.Message)
		}
	}

	// an explicit --take-profit wins
	tk.takeProfit = "205"
	f, _, _ = tk.fields()
	if !f.TakeProfitPrice.Equal(decimal.NewFromInt(205)) {
		t.Errorf("take-profit = %s, want 205", f.TakeProfitPrice)
	}
}

func TestTicketFieldsErrors(t *testing.T) {
	tests := map[string]ticket{
		"side":  {side: "short", kind: "market", tif: "day", qty: "1"},
		"type":  {side: "buy", kind: "iceberg", tif: "day", qty: "1"},
		"tif":   {side: "buy", kind: "market", tif: "forever", qty: "1"},
		"price": {side: "buy", kind: "limit", tif: "day", qty: "1", limit: "abc"},
	}
	for name, tk := range tests {
		if _, _, err := tk.fields(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFirstNonZero(t *testing.T) {
	if got := firstNonZero(0, 0, 3, 4); got != 3 {
		t.Errorf("firstNonZero = %v", got)
	}
	if got := firstNonZero(); got != 0 {
		t.Errorf("firstNonZero() = %v", got)
	}
}

func TestRenderResult(t *testing.T) {
	d := order.Draft{Symbol: "AAPL", Side: order.SideBuy, Quantity: decimal.NewFromInt(2000), Terms: order.Market{}}
	res := order.Validate(d, nil, decimal.NewFromInt(1000), risk.DefaultLimits())

	out := renderResult(d, nil, res)
	if !strings.Contains(out, "AAPL") {
		t.Errorf("missing symbol in:\n%s", out)
	}
	if res.Valid() != strings.Contains(out, "ACCEPTED") {
		t.Errorf("verdict mismatch (valid=%v):\n%s", res.Valid(), out)
	}
}
