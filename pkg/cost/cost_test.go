package cost

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScheduleEstimate(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		qty      string
		price    string
		sell     bool
		want     string
	}{
		{
			name:     "minimum applies",
			schedule: DefaultSchedule(),
			qty:      "10",
			price:    "250",
			want:     "1.00",
		},
		{
			name:     "per share above minimum",
			schedule: DefaultSchedule(),
			qty:      "1000",
			price:    "50",
			want:     "5.00",
		},
		{
			name:     "capped by notional rate",
			schedule: DefaultSchedule(),
			qty:      "10",
			price:    "1",
			want:     "0.10",
		},
		{
			name:     "zero commission buy",
			schedule: Lookup("zero"),
			qty:      "100",
			price:    "100",
			want:     "0.00",
		},
		{
			name:     "zero commission sell pays regulatory fee",
			schedule: Lookup("zero"),
			qty:      "1000",
			price:    "100",
			sell:     true,
			want:     "2.78",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.schedule.Estimate(d(tt.qty), d(tt.price), tt.sell)
			if !got.Total.Equal(d(tt.want)) {
				t.Errorf("Estimate total = %s, want %s", got.Total, tt.want)
			}
		})
	}
}

func TestLookupFallsBack(t *testing.T) {
	s := Lookup("does-not-exist")
	if !s.Minimum.Equal(DefaultSchedule().Minimum) {
		t.Errorf("expected standard schedule fallback, got %+v", s)
	}
}

func TestTrackerAddOrder(t *testing.T) {
	tracker := NewTracker(DefaultSchedule())

	tracker.AddOrder(d("10"), d("250"), false)
	tracker.AddOrder(d("1000"), d("50"), false)

	stats := tracker.GetStats()
	if stats.Orders != 2 {
		t.Errorf("expected 2 orders, got %d", stats.Orders)
	}
	if !stats.Notional.Equal(d("52500")) {
		t.Errorf("expected notional 52500, got %s", stats.Notional)
	}
	if !stats.Fees.Equal(d("6")) {
		t.Errorf("expected fees 6, got %s", stats.Fees)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(DefaultSchedule())
	tracker.AddOrder(d("10"), d("10"), true)
	tracker.Reset()

	stats := tracker.GetStats()
	if stats.Orders != 0 || !stats.Fees.IsZero() || !stats.Notional.IsZero() {
		t.Errorf("expected empty stats after reset, got %+v", stats)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0.001", "<$0.01"},
		{"0.01", "$0.01"},
		{"1.234", "$1.23"},
		{"10.5", "$10.50"},
		{"-3", "-$3.00"},
		{"0", "$0.00"},
	}

	for _, tt := range tests {
		got := FormatMoney(d(tt.amount))
		if got != tt.want {
			t.Errorf("FormatMoney(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}
