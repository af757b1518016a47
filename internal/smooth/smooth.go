// Package smooth implements the chromatogram smoothing applied before a
// gap-filled peak is located in raw signal.
package smooth

import (
	"errors"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Method is a smoothing algorithm
type Method int

const (
	None Method = iota
	SimpleMovingAverage
	LinearWeightedMovingAverage
	Gaussian
)

// gaussSigma is the relative width of the Gaussian kernel; with this value
// the kernel edges weigh about 14% of the center, close to a binomial filter
const gaussSigma = 0.5

// ErrUnknownMethod is returned by ParseMethod for unrecognized names
var ErrUnknownMethod = errors.New("smooth: unknown smoothing method")

// ParseMethod converts a method name, as used in parameter files
func ParseMethod(name string) (Method, error) {
	switch strings.ToUpper(name) {
	case ``, `NONE`:
		return None, nil
	case `SMA`, `SIMPLE`:
		return SimpleMovingAverage, nil
	case `LWMA`, `LINEAR`:
		return LinearWeightedMovingAverage, nil
	case `GAUSS`, `GAUSSIAN`:
		return Gaussian, nil
	}
	return None, ErrUnknownMethod
}

func (m Method) String() string {
	switch m {
	case SimpleMovingAverage:
		return `SMA`
	case LinearWeightedMovingAverage:
		return `LWMA`
	case Gaussian:
		return `GAUSS`
	}
	return `NONE`
}

// Smoother applies a fixed, symmetric kernel. The zero value does not
// smooth.
type Smoother struct {
	kernel []float64
}

// New creates a smoother. Level is the half width of the kernel in samples,
// level <= 0 disables smoothing.
func New(m Method, level int) Smoother {
	if m == None || level <= 0 {
		return Smoother{}
	}
	n := 2*level + 1
	var k []float64
	switch m {
	case SimpleMovingAverage:
		k = window.Rectangular(ones(n))
	case LinearWeightedMovingAverage:
		// gonum's triangular window is zero at both ends, so generate two
		// extra points and drop them to get weights 1, 2, ..., level+1, ..., 1
		k = window.Triangular(ones(n + 2))[1 : n+1]
	case Gaussian:
		k = window.Gaussian{Sigma: gaussSigma}.Transform(ones(n))
	default:
		return Smoother{}
	}
	floats.Scale(1/floats.Sum(k), k)
	return Smoother{kernel: k}
}

// Level returns the half width of the kernel
func (s Smoother) Level() int {
	if len(s.kernel) == 0 {
		return 0
	}
	return len(s.kernel) / 2
}

// Apply returns a smoothed copy of y. Near the edges, where the kernel
// extends beyond the data, the result is normalized by the weight of the
// part of the kernel that overlaps the data.
func (s Smoother) Apply(y []float64) []float64 {
	out := make([]float64, len(y))
	if len(s.kernel) == 0 {
		copy(out, y)
		return out
	}
	half := len(s.kernel) / 2
	for i := range y {
		var sum, weight float64
		for j, w := range s.kernel {
			k := i + j - half
			if k < 0 || k >= len(y) {
				continue
			}
			sum += w * y[k]
			weight += w
		}
		out[i] = sum / weight
	}
	return out
}

func ones(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}
