package plan

import (
	"fmt"
	"math"

	"github.com/openacid/slimarray/polyfit"
	"nyiyui.ca/hato/shingo"
)

// Point is one calibration measurement.
type Point struct {
	Step     int   `yaml:"step" json:"step"`
	Velocity int64 `yaml:"velocity" json:"velocity"` // µm/s
}

// Relation maps speed steps to velocities.
type Relation struct {
	Coeffs []float64
	// y = f(x)
	// x : speed step
	// y : µm/s
}

// Linear is the relation y = scale·x.
func Linear(scale int64) Relation {
	return Relation{Coeffs: []float64{0, float64(scale)}}
}

// Fit fits a relation through ps: quadratic with three or more points, linear with two.
// With fewer points it returns fallback.
func Fit(ps []Point, fallback Relation) Relation {
	if len(ps) < 2 {
		return fallback
	}
	xs := make([]float64, len(ps))
	ys := make([]float64, len(ps))
	for i, p := range ps {
		xs[i] = float64(p.Step)
		ys[i] = float64(p.Velocity)
	}
	degree := 2
	if len(ps) == 2 {
		degree = 1
	}
	fit := polyfit.NewFit(xs, ys, degree)
	return Relation{
		Coeffs: fit.Solve(),
	}
}

// Velocity returns the velocity (µm/s) at s. Stopped trains have no velocity, and negative results are clamped.
func (r Relation) Velocity(s shingo.Speed) int64 {
	if !s.Moving() || len(r.Coeffs) == 0 {
		return 0
	}
	x := float64(s)
	var y float64
	for i := len(r.Coeffs) - 1; i >= 0; i-- {
		y = y*x + r.Coeffs[i]
	}
	if y < 0 || math.IsNaN(y) {
		return 0
	}
	return int64(y)
}

// SolveForX solves for the speed step giving velocity y.
func (r Relation) SolveForX(y float64) (x float64, ok bool) {
	const min = 0
	const max = float64(shingo.SpeedMax)
	switch len(r.Coeffs) {
	case 0, 1:
		return 0, false
	case 2:
		// x=(y-a)/b
		x := (y - r.Coeffs[0]) / r.Coeffs[1]
		return x, x >= min && x <= max
	case 3:
		// 0=ax^2+bx+c-y
		a := r.Coeffs[2]
		b := r.Coeffs[1]
		c := r.Coeffs[0] - y
		if a == 0 {
			x := -c / b
			return x, x >= min && x <= max
		}
		xa := (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
		xb := (-b - math.Sqrt(b*b-4*a*c)) / (2 * a)
		xaInRange := xa >= min && xa <= max
		xbInRange := xb >= min && xb <= max
		switch {
		case xaInRange && !xbInRange:
			return xa, true
		case !xaInRange && xbInRange:
			return xb, true
		case xaInRange && xbInRange:
			return math.Min(xa, xb), true
		default:
			return 0, false
		}
	default:
		panic(fmt.Sprintf("only linear and quadratic equations supported (%d coeffs given)", len(r.Coeffs)))
	}
}
