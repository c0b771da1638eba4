package risk

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BoggsSystems/hingetrade-sub000/pkg/trading"
)

// Recommendation texts.
const (
	RecReducePosition = "Consider reducing position size"
	RecAddStopLoss    = "Consider adding a stop loss"
	RecAcceptable     = "Risk is within acceptable limits"
)

var (
	positionBounds  = [3]float64{0.05, 0.15, 0.30}   // share of balance
	changeBounds    = [3]float64{2, 5, 10}           // absolute percent move
	spreadBounds    = [3]float64{0.001, 0.005, 0.02} // spread over mid
	reduceThreshold = 0.10
)

// Input is what the scorers see for one position or order.
type Input struct {
	PositionValue  decimal.Decimal
	AccountBalance decimal.Decimal
	Quote          *trading.Quote // nil when no current price is known
	At             time.Time

	// Protective is set for orders whose purpose is to limit a loss.
	Protective bool
	HasStop    bool
}

// Fraction returns |PositionValue| / AccountBalance. A non-positive balance
// with a non-zero value is unbounded.
func (in Input) Fraction() float64 {
	value := in.PositionValue.Abs()
	if !in.AccountBalance.IsPositive() {
		if value.IsZero() {
			return 0
		}
		return math.Inf(1)
	}
	return value.Div(in.AccountBalance).InexactFloat64()
}

// DimensionScorer rates one risk dimension.
type DimensionScorer interface {
	Score(in Input) trading.RiskLevel
}

// ScorerFunc adapts a function to DimensionScorer.
type ScorerFunc func(in Input) trading.RiskLevel

// Score implements DimensionScorer.
func (f ScorerFunc) Score(in Input) trading.RiskLevel { return f(in) }

// Fixed always returns level.
func Fixed(level trading.RiskLevel) DimensionScorer {
	return ScorerFunc(func(Input) trading.RiskLevel { return level })
}

// Session reports whether the market is open.
type Session interface {
	IsOpen(t time.Time) bool
}

// PositionSizeScorer rates the position's share of the balance.
func PositionSizeScorer() DimensionScorer {
	return ScorerFunc(func(in Input) trading.RiskLevel {
		return trading.LevelForRatio(in.Fraction(), positionBounds)
	})
}

// PriceScorer rates the size of the day's move.
func PriceScorer() DimensionScorer {
	return ScorerFunc(func(in Input) trading.RiskLevel {
		if in.Quote == nil {
			return trading.RiskMedium
		}
		return trading.LevelForRatio(math.Abs(in.Quote.ChangePercent), changeBounds)
	})
}

// LiquidityScorer rates the bid/ask spread.
func LiquidityScorer() DimensionScorer {
	return ScorerFunc(func(in Input) trading.RiskLevel {
		if in.Quote == nil {
			return trading.RiskMedium
		}
		ratio, ok := in.Quote.SpreadRatio()
		if !ok {
			return trading.RiskMedium
		}
		return trading.LevelForRatio(ratio, spreadBounds)
	})
}

// TimeScorer rates execution timing: inside the session is low risk.
func TimeScorer(session Session) DimensionScorer {
	return ScorerFunc(func(in Input) trading.RiskLevel {
		if session == nil || in.At.IsZero() {
			return trading.RiskMedium
		}
		if session.IsOpen(in.At) {
			return trading.RiskLow
		}
		return trading.RiskMedium
	})
}

// Assessment is a four-dimension risk rating.
type Assessment struct {
	PositionSize    trading.RiskLevel `json:"position_size"`
	Price           trading.RiskLevel `json:"price"`
	Liquidity       trading.RiskLevel `json:"liquidity"`
	Time            trading.RiskLevel `json:"time"`
	Overall         trading.RiskLevel `json:"overall"`
	Recommendations []string          `json:"recommendations"`
}

// Scorer combines the four dimension scorers.
type Scorer struct {
	PositionSize DimensionScorer
	Price        DimensionScorer
	Liquidity    DimensionScorer
	Time         DimensionScorer
}

// NewScorer returns the default scorers. session may be nil.
func NewScorer(session Session) *Scorer {
	return &Scorer{
		PositionSize: PositionSizeScorer(),
		Price:        PriceScorer(),
		Liquidity:    LiquidityScorer(),
		Time:         TimeScorer(session),
	}
}

// Assess scores in. Overall is the maximum of the four dimensions and
// Recommendations is never empty.
func (s *Scorer) Assess(in Input) Assessment {
	a := Assessment{
		PositionSize: score(s.PositionSize, in),
		Price:        score(s.Price, in),
		Liquidity:    score(s.Liquidity, in),
		Time:         score(s.Time, in),
	}
	a.Overall = trading.MaxLevel(a.PositionSize, a.Price, a.Liquidity, a.Time)
	a.Recommendations = recommend(in)
	return a
}

func score(d DimensionScorer, in Input) trading.RiskLevel {
	if d == nil {
		return trading.RiskMedium
	}
	return d.Score(in)
}

func recommend(in Input) []string {
	var recs []string
	if in.Fraction() > reduceThreshold {
		recs = append(recs, RecReducePosition)
	}
	if in.Protective && !in.HasStop {
		recs = append(recs, RecAddStopLoss)
	}
	if len(recs) == 0 {
		recs = append(recs, RecAcceptable)
	}
	return recs
}
