package rating

import (
	"math"
	"testing"
)

func testEngine() Engine {
	return NewEngine(20, 100, 3500, 2)
}

func TestEqualRatingsWin(t *testing.T) {
	e := testEngine()
	out := e.Compute(1200, 1200, Side1Win)
	if out.Delta1 != 10 || out.Delta2 != -10 {
		t.Fatalf("expected +10/-10 for equal ratings, got %v/%v", out.Delta1, out.Delta2)
	}
	if out.IsUpset {
		t.Fatalf("equal ratings cannot be an upset")
	}
	if out.NewRating1 != 1210 || out.NewRating2 != 1190 {
		t.Fatalf("unexpected new ratings: %v/%v", out.NewRating1, out.NewRating2)
	}
}

func TestZeroSumAfterRounding(t *testing.T) {
	e := testEngine()
	cases := [][2]float64{{1000, 1190}, {1234.56, 1187.21}, {1500, 900}, {1200.5, 1200.49}}
	for _, c := range cases {
		for _, res := range []Result{Side1Win, Side2Win} {
			out := e.Compute(c[0], c[1], res)
			if out.Delta1+out.Delta2 != 0 {
				t.Fatalf("deltas not zero-sum for %v %s: %v + %v", c, res, out.Delta1, out.Delta2)
			}
		}
	}
}

func TestUpsetDoubling(t *testing.T) {
	single := NewEngine(20, 100, 3500, 1)
	doubled := testEngine()

	base := single.Compute(1000, 1400, Side1Win)
	up := doubled.Compute(1000, 1400, Side1Win)
	if !up.IsUpset || up.Multiplier != 2 {
		t.Fatalf("expected upset with multiplier 2, got upset=%v mult=%v", up.IsUpset, up.Multiplier)
	}
	if base.IsUpset && base.Multiplier != 1 {
		t.Fatalf("single-multiplier engine must not scale")
	}
	if math.Abs(up.Delta1-2*base.Delta1) > 1e-9 {
		t.Fatalf("upset delta %v is not double base delta %v", up.Delta1, base.Delta1)
	}
}

func TestDrawNeverUpset(t *testing.T) {
	e := testEngine()
	out := e.Compute(1000, 1400, Draw)
	if out.IsUpset {
		t.Fatalf("a draw is never an upset")
	}
	// In a draw the lower-rated side gains and the higher-rated side loses.
	if out.Delta1 <= 0 || out.Delta2 >= 0 {
		t.Fatalf("unexpected draw deltas: %v/%v", out.Delta1, out.Delta2)
	}
}

func TestDeterministic(t *testing.T) {
	e := testEngine()
	a := e.Compute(1321.77, 1180.03, Side2Win)
	b := e.Compute(1321.77, 1180.03, Side2Win)
	if a != b {
		t.Fatalf("engine not deterministic: %+v vs %+v", a, b)
	}
}

func TestClampBand(t *testing.T) {
	e := NewEngine(20, 100, 3500, 2)
	out := e.Compute(102, 110, Side2Win)
	if out.NewRating1 != 100 {
		t.Fatalf("expected clamp to band floor, got %v", out.NewRating1)
	}
	out = e.Compute(3499, 3490, Side1Win)
	if out.NewRating1 != 3500 {
		t.Fatalf("expected clamp to band ceiling, got %v", out.NewRating1)
	}
}
