// Package portfolio aggregates position-level figures into portfolio risk
// metrics and an overall risk status.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading/risk"
)

// Unclassified is the sector name used for positions without a sector.
const Unclassified = "Unclassified"

// Status score normalizers. Each component contributes at most 1.
const (
	concentrationNorm = 0.40
	volatilityNorm    = 0.30
	drawdownNorm      = 0.20
	varNorm           = 0.05
)

var (
	sectorBounds = [2]float64{0.25, 0.40} // medium above the first, high above the second
	statusBounds = [3]float64{1, 2, 3}
)

// Settings are the modelling assumptions of the analyzer.
type Settings struct {
	DefaultBeta       float64 `mapstructure:"default_beta" yaml:"default_beta"`
	DefaultVolatility float64 `mapstructure:"default_volatility" yaml:"default_volatility"` // annualized
	Correlation       float64 `mapstructure:"correlation" yaml:"correlation"`               // pairwise, for modeled volatility
	Z                 float64 `mapstructure:"z" yaml:"z"`                                   // 1.96 for 95%
	TradingDays       int     `mapstructure:"trading_days" yaml:"trading_days"`
	HighBeta          float64 `mapstructure:"high_beta" yaml:"high_beta"`
}

// DefaultSettings returns beta 1.0, 30% volatility, 0.3 correlation and a
// 95% one-day horizon over 252 trading days.
func DefaultSettings() Settings {
	return Settings{
		DefaultBeta:       1.0,
		DefaultVolatility: 0.30,
		Correlation:       0.3,
		Z:                 1.96,
		TradingDays:       252,
		HighBeta:          1.3,
	}
}

// Inputs carries the figures that are supplied rather than derived from positions.
type Inputs struct {
	// Volatility, MaxDrawdown and Sharpe override the derived values when set.
	Volatility  *float64
	MaxDrawdown *float64
	Sharpe      *float64

	// DailyReturns is a series of simple daily returns, oldest first.
	DailyReturns []float64
	RiskFreeRate float64 // annual

	AccountBalance decimal.Decimal // zero means gross market value
	Limits         risk.Limits
	Quotes         map[string]trading.Quote
	At             time.Time
}

// Holding is one position's contribution.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Sector      string          `json:"sector"`
	MarketValue decimal.Decimal `json:"market_value"`
	Weight      float64         `json:"weight"`
	Beta        float64         `json:"beta"`
	Volatility  float64         `json:"volatility"`
	VaR         decimal.Decimal `json:"var"`
}

// SectorExposure is the summed weight of one sector.
type SectorExposure struct {
	Sector  string            `json:"sector"`
	Weight  float64           `json:"weight"`
	Level   trading.RiskLevel `json:"level"`
	Symbols []string          `json:"symbols"`
}

// Breach is a limit the portfolio currently exceeds.
type Breach struct {
	Limit   string  `json:"limit"`
	Value   float64 `json:"value"`
	Max     float64 `json:"max"`
	Message string  `json:"message"`
}

// Report is the result of a portfolio assessment.
type Report struct {
	Positions     int             `json:"positions"`
	NetValue      decimal.Decimal `json:"net_value"`
	GrossValue    decimal.Decimal `json:"gross_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`

	Beta        float64         `json:"beta"`
	Volatility  float64         `json:"volatility"`
	VaR95       decimal.Decimal `json:"var_95"`
	VaRRatio    float64         `json:"var_ratio"` // VaR95 over gross value
	MaxDrawdown float64         `json:"max_drawdown"`
	Sharpe      float64         `json:"sharpe"`

	Concentration float64 `json:"concentration"` // largest single weight
	HHI           float64 `json:"hhi"`
	Top5Weight    float64 `json:"top5_weight"`

	Holdings []Holding        `json:"holdings"`
	Sectors  []SectorExposure `json:"sectors"`

	Score           float64           `json:"score"`
	Status          trading.RiskLevel `json:"status"`
	Breaches        []Breach          `json:"breaches,omitempty"`
	Recommendations []string          `json:"recommendations"`
	Largest         risk.Assessment   `json:"largest"`
}

// Sector returns the exposure for name, if any position is in it.
func (r Report) Sector(name string) (SectorExposure, bool) {
	for _, s := range r.Sectors {
		if s.Sector == name {
			return s, true
		}
	}
	return SectorExposure{}, false
}

// Analyzer computes portfolio reports. It has no mutable state.
type Analyzer struct {
	Settings Settings
	Scorer   *risk.Scorer
}

// NewAnalyzer creates an analyzer. A nil scorer uses the default scorers
// without a market session.
func NewAnalyzer(settings Settings, scorer *risk.Scorer) *Analyzer {
	if scorer == nil {
		scorer = risk.NewScorer(nil)
	}
	return &Analyzer{Settings: settings, Scorer: scorer}
}

// Assess computes a report with the default analyzer.
func Assess(positions []trading.Position, in Inputs) Report {
	return NewAnalyzer(DefaultSettings(), nil).Assess(positions, in)
}

// Assess computes the portfolio report for positions.
func (a *Analyzer) Assess(positions []trading.Position, in Inputs) Report {
	r := Report{Positions: len(positions)}

	gross := decimal.Zero
	for _, p := range positions {
		r.NetValue = r.NetValue.Add(p.MarketValue)
		r.UnrealizedPnL = r.UnrealizedPnL.Add(p.UnrealizedPnL)
		gross = gross.Add(p.MarketValue.Abs())
	}
	r.GrossValue = gross

	r.Holdings = a.holdings(positions, gross)
	signed := make([]float64, len(r.Holdings))
	for i, h := range r.Holdings {
		w := h.Weight
		if positions[i].MarketValue.IsNegative() {
			w = -w
		}
		signed[i] = w
		r.Beta += w * h.Beta
		r.VaR95 = r.VaR95.Add(h.VaR)
	}
	r.VaR95 = r.VaR95.Round(2)
	if gross.IsPositive() {
		r.VaRRatio = r.VaR95.Div(gross).InexactFloat64()
	}

	if in.Volatility != nil {
		r.Volatility = *in.Volatility
	} else {
		r.Volatility = a.modeledVolatility(r.Holdings, signed)
	}
	if in.MaxDrawdown != nil {
		r.MaxDrawdown = math.Abs(*in.MaxDrawdown)
	} else {
		r.MaxDrawdown = MaxDrawdown(in.DailyReturns)
	}
	if in.Sharpe != nil {
		r.Sharpe = *in.Sharpe
	} else {
		r.Sharpe = Sharpe(in.DailyReturns, in.RiskFreeRate, a.tradingDays())
	}

	r.Concentration, r.HHI, r.Top5Weight = concentration(r.Holdings)
	r.Sectors = sectors(r.Holdings)

	r.Score = StatusScore(r.Concentration, r.Volatility, r.MaxDrawdown, r.VaRRatio)
	r.Status = statusLevel(r.Score)

	r.Breaches = breaches(r, in)
	r.Recommendations = a.recommend(r)
	r.Largest = a.largest(r.Holdings, in, gross)
	return r
}

func (a *Analyzer) holdings(positions []trading.Position, gross decimal.Decimal) []Holding {
	out := make([]Holding, len(positions))
	scale := a.Settings.Z / math.Sqrt(float64(a.tradingDays()))
	for i, p := range positions {
		h := Holding{
			Symbol:      trading.NormalizeSymbol(p.Symbol),
			Sector:      p.Sector,
			MarketValue: p.MarketValue,
			Beta:        a.Settings.DefaultBeta,
			Volatility:  a.Settings.DefaultVolatility,
		}
		if h.Sector == "" {
			h.Sector = Unclassified
		}
		if p.Beta != nil {
			h.Beta = *p.Beta
		}
		if p.Volatility != nil {
			h.Volatility = *p.Volatility
		}
		if gross.IsPositive() {
			h.Weight = p.MarketValue.Abs().Div(gross).InexactFloat64()
		} else {
			h.Weight = math.Abs(p.Weight)
		}
		h.VaR = p.MarketValue.Abs().Mul(decimal.NewFromFloat(h.Volatility * scale))
		out[i] = h
	}
	return out
}

// modeledVolatility applies a constant-correlation model:
// var = sum(w_i^2 s_i^2) + rho * sum_{i != j}(w_i w_j s_i s_j).
func (a *Analyzer) modeledVolatility(holdings []Holding, weights []float64) float64 {
	variance := 0.0
	for i := range holdings {
		for j := range holdings {
			cov := weights[i] * weights[j] * holdings[i].Volatility * holdings[j].Volatility
			if i != j {
				cov *= a.Settings.Correlation
			}
			variance += cov
		}
	}
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func (a *Analyzer) tradingDays() int {
	if a.Settings.TradingDays <= 0 {
		return 252
	}
	return a.Settings.TradingDays
}

func (a *Analyzer) recommend(r Report) []string {
	var recs []string
	for _, b := range r.Breaches {
		recs = append(recs, b.Message)
	}
	if len(r.Holdings) > 0 && r.Concentration > concentrationNorm/2 {
		top := r.Holdings[0]
		for _, h := range r.Holdings {
			if h.Weight > top.Weight {
				top = h
			}
		}
		recs = append(recs, fmt.Sprintf("Diversify: %s is %.0f%% of the portfolio", top.Symbol, top.Weight*100))
	}
	for _, s := range r.Sectors {
		if s.Level == trading.RiskHigh {
			recs = append(recs, fmt.Sprintf("Reduce exposure to %s (%.0f%%)", s.Sector, s.Weight*100))
		}
	}
	if a.Settings.HighBeta > 0 && r.Beta > a.Settings.HighBeta {
		recs = append(recs, fmt.Sprintf("Portfolio beta %.2f is high; consider lower-beta positions or a hedge", r.Beta))
	}
	if len(recs) == 0 {
		recs = append(recs, risk.RecAcceptable)
	}
	return recs
}

// largest scores the biggest holding with the shared order scorer.
func (a *Analyzer) largest(holdings []Holding, in Inputs, gross decimal.Decimal) risk.Assessment {
	balance := in.AccountBalance
	if !balance.IsPositive() {
		balance = gross
	}
	ri := risk.Input{AccountBalance: balance, At: in.At}
	if len(holdings) > 0 {
		top := holdings[0]
		for _, h := range holdings[1:] {
			if h.MarketValue.Abs().GreaterThan(top.MarketValue.Abs()) {
				top = h
			}
		}
		ri.PositionValue = top.MarketValue
		if q, ok := in.Quotes[top.Symbol]; ok {
			ri.Quote = &q
		}
	}
	return a.Scorer.Assess(ri)
}

// StatusScore sums the four normalized components, each capped at 1.
func StatusScore(concentration, volatility, drawdown, varRatio float64) float64 {
	return capped(concentration/concentrationNorm) +
		capped(volatility/volatilityNorm) +
		capped(math.Abs(drawdown)/drawdownNorm) +
		capped(varRatio/varNorm)
}

func capped(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// statusLevel buckets a 0..4 score: below 1 low, below 2 medium, below 3 high.
func statusLevel(score float64) trading.RiskLevel {
	switch {
	case score < statusBounds[0]:
		return trading.RiskLow
	case score < statusBounds[1]:
		return trading.RiskMedium
	case score < statusBounds[2]:
		return trading.RiskHigh
	default:
		return trading.RiskExtreme
	}
}

// SectorLevel tags a sector weight: above 40% high, above 25% medium.
func SectorLevel(weight float64) trading.RiskLevel {
	switch {
	case weight > sectorBounds[1]:
		return trading.RiskHigh
	case weight > sectorBounds[0]:
		return trading.RiskMedium
	default:
		return trading.RiskLow
	}
}

func concentration(holdings []Holding) (largest, hhi, top5 float64) {
	weights := make([]float64, len(holdings))
	for i, h := range holdings {
		weights[i] = h.Weight
		hhi += h.Weight * h.Weight
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	for i, w := range weights {
		if i == 0 {
			largest = w
		}
		if i < 5 {
			top5 += w
		}
	}
	return largest, hhi, top5
}

func sectors(holdings []Holding) []SectorExposure {
	index := make(map[string]int)
	var out []SectorExposure
	for _, h := range holdings {
		i, ok := index[h.Sector]
		if !ok {
			i = len(out)
			index[h.Sector] = i
			out = append(out, SectorExposure{Sector: h.Sector})
		}
		out[i].Weight += h.Weight
		out[i].Symbols = append(out[i].Symbols, h.Symbol)
	}
	for i := range out {
		out[i].Level = SectorLevel(out[i].Weight)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

func breaches(r Report, in Inputs) []Breach {
	l := in.Limits
	var out []Breach
	check := func(name string, value, max float64, format string) {
		if max > 0 && value > max {
			out = append(out, Breach{
				Limit:   name,
				Value:   value,
				Max:     max,
				Message: fmt.Sprintf(format, value*100, max*100),
			})
		}
	}

	check("max_position_size", r.Concentration, l.MaxPositionSize, "Largest position is %.1f%% of the portfolio, above the %.1f%% limit")
	if len(r.Sectors) > 0 {
		check("max_sector_exposure", r.Sectors[0].Weight, l.MaxSectorExposure,
			r.Sectors[0].Sector+" exposure is %.1f%%, above the %.1f%% limit")
	}
	check("max_volatility", r.Volatility, l.MaxVolatility, "Volatility %.1f%% exceeds the %.1f%% limit")
	check("max_drawdown", r.MaxDrawdown, l.MaxDrawdown, "Drawdown %.1f%% exceeds the %.1f%% limit")
	check("max_var", r.VaRRatio, l.MaxVaR, "One-day VaR is %.1f%% of the portfolio, above the %.1f%% limit")
	if n := len(in.DailyReturns); n > 0 && in.DailyReturns[n-1] < 0 {
		check("max_daily_loss", -in.DailyReturns[n-1], l.MaxDailyLoss, "Daily loss %.1f%% exceeds the %.1f%% limit")
	}
	return out
}
