package scoring

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Graded is the marked outcome of one question of the frozen question set.
type Graded struct {
	Earned decimal.Decimal
	Points decimal.Decimal
}

// Result is the aggregated score of an attempt.
type Result struct {
	Score      decimal.Decimal
	MaxScore   decimal.Decimal
	Percentage decimal.Decimal
	Passed     bool
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score sums earned and configured points and derives the percentage, rounded to one decimal
// place, and the pass flag. An empty question set scores 0%.
func (*Engine) Score(graded []Graded, passPercentage decimal.Decimal) Result {
	r := Result{
		Score:      decimal.Zero,
		MaxScore:   decimal.Zero,
		Percentage: decimal.Zero,
	}

	for _, g := range graded {
		earned := g.Earned
		if earned.GreaterThan(g.Points) {
			earned = g.Points
		}
		if earned.IsNegative() {
			earned = decimal.Zero
		}

		r.Score = r.Score.Add(earned)
		r.MaxScore = r.MaxScore.Add(g.Points)
	}

	if r.MaxScore.IsPositive() {
		r.Percentage = r.Score.Div(r.MaxScore).Mul(hundred).Round(1)
	}

	r.Passed = r.Percentage.GreaterThanOrEqual(passPercentage)
	return r
}
