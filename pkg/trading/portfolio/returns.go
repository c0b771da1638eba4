package portfolio

import "math"

// MaxDrawdown returns the largest peak-to-trough decline of the equity curve
// compounded from daily returns, as a positive fraction.
func MaxDrawdown(returns []float64) float64 {
	equity, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// Sharpe returns the annualized Sharpe ratio of daily returns against an
// annual risk-free rate. It is zero with fewer than two returns or no variance.
func Sharpe(returns []float64, riskFree float64, tradingDays int) float64 {
	n := len(returns)
	if n < 2 || tradingDays <= 0 {
		return 0
	}
	daily := riskFree / float64(tradingDays)

	mean := 0.0
	for _, r := range returns {
		mean += r - daily
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range returns {
		d := r - daily - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(n-1))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(float64(tradingDays))
}
