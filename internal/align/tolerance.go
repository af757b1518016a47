package align

import (
	"math"

	"github.com/524D/mzalign/internal/spot"
)

// Tolerance holds the matching window per dimension. Mz must be positive,
// a secondary tolerance <= 0 disables that dimension.
type Tolerance struct {
	Mz    float64
	RT    float64
	Drift float64
	CCS   float64
}

// Within reports whether b is inside the tolerance box around a
func (t Tolerance) Within(a, b spot.Coordinate) bool {
	if math.Abs(a.Mz-b.Mz) > t.Mz {
		return false
	}
	if t.RT > 0 && math.Abs(a.RT-b.RT) > t.RT {
		return false
	}
	if t.Drift > 0 && math.Abs(a.Drift-b.Drift) > t.Drift {
		return false
	}
	if t.CCS > 0 && math.Abs(a.CCS-b.CCS) > t.CCS {
		return false
	}
	return true
}

// Factor returns the Gaussian similarity of two coordinates,
// exp(-0.5*(d/tol)^2) multiplied over all enabled dimensions, or 0 if b is
// outside the tolerance box
func (t Tolerance) Factor(a, b spot.Coordinate) float64 {
	if !t.Within(a, b) {
		return 0
	}
	f := gauss(a.Mz-b.Mz, t.Mz)
	if t.RT > 0 {
		f *= gauss(a.RT-b.RT, t.RT)
	}
	if t.Drift > 0 {
		f *= gauss(a.Drift-b.Drift, t.Drift)
	}
	if t.CCS > 0 {
		f *= gauss(a.CCS-b.CCS, t.CCS)
	}
	return f
}

func gauss(d, tol float64) float64 {
	r := d / tol
	return math.Exp(-0.5 * r * r)
}
