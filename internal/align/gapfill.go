package align

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzalign/internal/smooth"
	"github.com/524D/mzalign/internal/spot"
)

// Extent of the raw signal window around the expected peak, in peak widths
const gapFillWindow = 1.5

// Sample is one raw signal point of an extracted ion chromatogram
type Sample struct {
	Time      float64
	Mz        float64
	Intensity float64
}

// RawSignal gives random access to the raw data of the analysis files
type RawSignal interface {
	// LoadWindow returns the samples of file fileID at m/z center.Mz with
	// retention times within center.RT ± halfWidth, sorted by time
	LoadWindow(ctx context.Context, fileID int, center spot.Coordinate, halfWidth float64) ([]Sample, error)
}

// Releaser is implemented by raw signal providers that cache file data.
// Release is called once gap filling of a file is complete.
type Releaser interface {
	Release(fileID int)
}

// WidthEstimator derives the expected peak width for a gap from the files
// that did detect the feature
type WidthEstimator struct {
	median float64
	upper  float64 // mean + 3 sd
}

// NewWidthEstimator computes the dataset statistics from all detected
// peak widths. Non-positive widths are ignored.
func NewWidthEstimator(widths []float64) WidthEstimator {
	w := make([]float64, 0, len(widths))
	for _, x := range widths {
		if x > 0 && !math.IsInf(x, 0) {
			w = append(w, x)
		}
	}
	if len(w) == 0 {
		return WidthEstimator{}
	}
	sort.Float64s(w)
	med := stat.Quantile(0.5, stat.Empirical, w, nil)
	mean, sd := stat.MeanStdDev(w, nil)
	if len(w) == 1 {
		sd = 0
	}
	return WidthEstimator{median: med, upper: mean + 3*sd}
}

// Estimate returns the average sibling width, clipped to
// [median, mean + 3 sd] of the dataset. Without siblings the dataset
// median is used.
func (e WidthEstimator) Estimate(siblings []float64) float64 {
	var sum float64
	var n int
	for _, w := range siblings {
		if w > 0 {
			sum += w
			n++
		}
	}
	if n == 0 {
		return e.median
	}
	w := sum / float64(n)
	if w < e.median {
		w = e.median
	}
	if w > e.upper {
		w = e.upper
	}
	return w
}

// GapFiller recovers a feature from raw signal for slots that have no
// detection
type GapFiller struct {
	raw      RawSignal
	smoother smooth.Smoother
	log      *slog.Logger
}

// NewGapFiller returns a gap filler. raw may be nil, in which case every
// gap is filled with a default feature.
func NewGapFiller(raw RawSignal, smoother smooth.Smoother, log *slog.Logger) *GapFiller {
	if log == nil {
		log = slog.Default()
	}
	return &GapFiller{raw: raw, smoother: smoother, log: log}
}

// Fill populates an absent slot. A missing or unusable signal window
// results in a default feature; only cancellation is returned as error.
func (g *GapFiller) Fill(ctx context.Context, slot *spot.AlignedSlot, center spot.Coordinate, width float64) error {
	if slot.IsDetected() {
		return nil
	}
	if g.raw == nil || width <= 0 {
		setDefault(slot, center)
		return nil
	}
	samples, err := g.raw.LoadWindow(ctx, slot.FileID, center, gapFillWindow*width)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		g.log.Warn("raw signal unavailable, using default feature",
			"file", slot.FileID, "mz", center.Mz, "rt", center.RT, "err", err)
		setDefault(slot, center)
		return nil
	}
	f, ok := synthesize(samples, center, width, g.smoother)
	if !ok {
		setDefault(slot, center)
		return nil
	}
	slot.PeakFeature = f
	return nil
}

func (g *GapFiller) release(fileID int) {
	if r, ok := g.raw.(Releaser); ok {
		r.Release(fileID)
	}
}

func setDefault(slot *spot.AlignedSlot, center spot.Coordinate) {
	var f spot.PeakFeature
	f.PeakID = spot.DefaultPeakID
	f.IsotopeParentPeakID = spot.AbsentPeakID
	f.Coordinate = center
	slot.PeakFeature = f
}

// synthesize builds a feature from the samples around the expected
// center. Starting at the sample closest to center.RT it moves uphill to
// the nearest local maximum (staying within half a peak width of the
// center) and extends to the local minima on both sides.
func synthesize(samples []Sample, center spot.Coordinate, width float64, sm smooth.Smoother) (spot.PeakFeature, bool) {
	var f spot.PeakFeature
	usable := false
	for _, s := range samples {
		if s.Intensity > 0 {
			usable = true
			break
		}
	}
	if !usable {
		return f, false
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })

	raw := make([]float64, len(samples))
	for i, s := range samples {
		raw[i] = s.Intensity
	}
	y := sm.Apply(raw)

	apex := sort.Search(len(samples), func(i int) bool { return samples[i].Time >= center.RT })
	if apex == len(samples) || (apex > 0 && center.RT-samples[apex-1].Time < samples[apex].Time-center.RT) {
		apex--
	}
	maxShift := width / 2
	for {
		if apex > 0 && y[apex-1] > y[apex] && math.Abs(samples[apex-1].Time-center.RT) <= maxShift {
			apex--
		} else if apex < len(y)-1 && y[apex+1] > y[apex] && math.Abs(samples[apex+1].Time-center.RT) <= maxShift {
			apex++
		} else {
			break
		}
	}
	left := apex
	for left > 0 && y[left-1] < y[left] {
		left--
	}
	right := apex
	for right < len(y)-1 && y[right+1] < y[right] {
		right++
	}

	var area, mzSum, mzWeight float64
	for i := left; i <= right; i++ {
		if i < right {
			area += (samples[i+1].Time - samples[i].Time) * (y[i] + y[i+1]) / 2
		}
		if samples[i].Intensity > 0 {
			mzSum += samples[i].Mz * samples[i].Intensity
			mzWeight += samples[i].Intensity
		}
	}
	baseline := (samples[right].Time - samples[left].Time) * (y[left] + y[right]) / 2

	f.PeakID = spot.GapFilledPeakID
	f.IsotopeParentPeakID = spot.AbsentPeakID
	f.Coordinate = center
	f.RT = samples[apex].Time
	if mzWeight > 0 {
		f.Mz = mzSum / mzWeight
	}
	f.Height = y[apex]
	f.AreaAboveZero = area
	f.AreaAboveBaseline = math.Max(area-baseline, 0)
	f.PeakWidth = samples[right].Time - samples[left].Time
	f.EstimatedNoise = noiseLevel(raw)
	if f.EstimatedNoise > 0 {
		f.SignalToNoise = f.Height / f.EstimatedNoise
	}
	return f, true
}

// noiseLevel is the median of the positive intensities in the window
func noiseLevel(intens []float64) float64 {
	pos := make([]float64, 0, len(intens))
	for _, x := range intens {
		if x > 0 {
			pos = append(pos, x)
		}
	}
	if len(pos) == 0 {
		return 0
	}
	sort.Float64s(pos)
	return stat.Quantile(0.5, stat.Empirical, pos, nil)
}
