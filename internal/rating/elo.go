package rating

import "math"

// Result tags the outcome of a finished game from side 1's perspective.
type Result string

const (
	Side1Win Result = "side1_win"
	Side2Win Result = "side2_win"
	Draw     Result = "draw"
)

// Outcome carries the post-game ratings and the applied deltas.
type Outcome struct {
	NewRating1 float64
	NewRating2 float64
	Delta1     float64
	Delta2     float64
	IsUpset    bool
	Multiplier float64
}

// Engine computes Elo-style rating deltas. Stateless; identical inputs
// always produce identical outputs, so a retried persistence never
// recomputes a different delta.
type Engine struct {
	K         float64
	Min       float64
	Max       float64
	UpsetMult float64
}

func NewEngine(k, min, max, upsetMult float64) Engine {
	if k <= 0 {
		k = 20
	}
	if upsetMult < 1 {
		upsetMult = 1
	}
	if max <= min {
		min, max = 100, 3500
	}
	return Engine{K: k, Min: min, Max: max, UpsetMult: upsetMult}
}

// Compute returns the rating outcome for two sides with the given result.
// An upset is a decisive win by the side with the strictly lower pre-game
// rating; it doubles both deltas while keeping them zero-sum.
func (e Engine) Compute(r1, r2 float64, result Result) Outcome {
	e1 := expected(r1, r2)
	e2 := 1 - e1

	var s1, s2 float64
	switch result {
	case Side1Win:
		s1, s2 = 1, 0
	case Side2Win:
		s1, s2 = 0, 1
	default:
		s1, s2 = 0.5, 0.5
	}

	upset := (result == Side1Win && r1 < r2) || (result == Side2Win && r2 < r1)
	mult := 1.0
	if upset {
		mult = e.UpsetMult
	}

	d1 := round2(e.K * mult * (s1 - e1))
	d2 := round2(e.K * mult * (s2 - e2))

	return Outcome{
		NewRating1: e.clamp(r1 + d1),
		NewRating2: e.clamp(r2 + d2),
		Delta1:     d1,
		Delta2:     d2,
		IsUpset:    upset,
		Multiplier: mult,
	}
}

func expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

func (e Engine) clamp(r float64) float64 {
	if r < e.Min {
		return e.Min
	}
	if r > e.Max {
		return e.Max
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
