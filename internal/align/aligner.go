// Package align builds cross-file alignment spots from per-file peak
// feature lists: master list construction, joining, gap filling and
// packing.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/smooth"
	"github.com/524D/mzalign/internal/spot"
)

// ErrInvalidArgument is returned for inconsistent aligner input
var ErrInvalidArgument = errors.New("align: invalid argument")

// FeatureSource supplies the detected features of a file. The returned
// list must be sorted ascending by m/z; this is not checked.
type FeatureSource interface {
	GetFeatures(ctx context.Context, file spot.File) ([]spot.PeakFeature, error)
}

// Annotator attaches identity match candidates to the features of a file
type Annotator interface {
	Annotate(ctx context.Context, file spot.File, features []spot.PeakFeature) error
}

// Observer receives per-file counts while an alignment runs. Calls may
// come from several goroutines.
type Observer interface {
	FeaturesLoaded(file spot.File, n int)
	SlotsFilled(file spot.File, detected, gapFilled, defaulted int)
}

// Params controls the alignment
type Params struct {
	Tolerance       Tolerance
	ReferenceFileID int
	Threads         int // <= 0 means GOMAXPROCS
	Smoothing       smooth.Method
	SmoothingLevel  int
	MzMin, MzMax    float64 // features outside are ignored, MzMax <= 0 is no upper limit
}

// Aligner runs the alignment pipeline over a fixed set of files
type Aligner struct {
	params  Params
	files   []spot.File
	source  FeatureSource
	eval    match.Evaluator
	filler  *GapFiller
	log     *slog.Logger
	threads int

	// Optional hooks
	Annotator Annotator
	Observer  Observer

	mu     sync.Mutex
	loaded int
}

// NewAligner checks the parameters and returns an aligner. File ids must
// equal their index. raw may be nil to disable raw signal gap filling.
func NewAligner(params Params, files []spot.File, source FeatureSource, raw RawSignal,
	ev match.Evaluator, log *slog.Logger) (*Aligner, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidArgument)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: no feature source", ErrInvalidArgument)
	}
	for i, f := range files {
		if f.ID != i {
			return nil, fmt.Errorf("%w: file %q has id %d at index %d", ErrInvalidArgument, f.Name, f.ID, i)
		}
	}
	if params.ReferenceFileID < 0 || params.ReferenceFileID >= len(files) {
		return nil, fmt.Errorf("%w: reference file %d out of range", ErrInvalidArgument, params.ReferenceFileID)
	}
	if !(params.Tolerance.Mz > 0) {
		return nil, fmt.Errorf("%w: m/z tolerance must be positive", ErrInvalidArgument)
	}
	sm := smooth.New(params.Smoothing, params.SmoothingLevel)
	if log == nil {
		log = slog.Default()
	}
	threads := params.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return &Aligner{
		params:  params,
		files:   files,
		source:  source,
		eval:    ev,
		filler:  NewGapFiller(raw, sm, log),
		log:     log,
		threads: threads,
	}, nil
}

// Align loads, merges, joins, gap fills and packs all files. The spots are
// ordered by m/z and numbered from 0. On error or cancellation no spots are
// returned.
func (a *Aligner) Align(ctx context.Context) ([]*spot.AlignmentSpot, error) {
	t := time.Now()
	lists, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Info("features loaded", "files", len(a.files), "elapsed", time.Since(t))

	t = time.Now()
	master := BuildMasterList(a.params.Tolerance, a.params.ReferenceFileID, lists)
	a.log.Info("master list built", "entries", len(master), "elapsed", time.Since(t))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t = time.Now()
	columns, err := a.join(ctx, master, lists)
	if err != nil {
		return nil, err
	}
	a.log.Info("features joined", "elapsed", time.Since(t))

	spots := make([]*spot.AlignmentSpot, len(master))
	for j, m := range master {
		slots := make([]spot.AlignedSlot, len(a.files))
		for i := range a.files {
			slots[i] = columns[i][j]
		}
		spots[j] = Pack(j, m, slots, a.eval)
	}
	return spots, nil
}

// load reads the feature lists of all files in parallel. lists[i] belongs
// to file i regardless of completion order.
func (a *Aligner) load(ctx context.Context) ([][]spot.PeakFeature, error) {
	lists := make([][]spot.PeakFeature, len(a.files))
	a.loaded = 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.threads)
	for i := range a.files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file := a.files[i]
			features, err := a.source.GetFeatures(gctx, file)
			if err != nil {
				return fmt.Errorf("load features of %s: %w", file.Name, err)
			}
			features = a.inMzRange(features)
			if a.Annotator != nil && len(features) > 0 {
				if err := a.Annotator.Annotate(gctx, file, features); err != nil {
					return fmt.Errorf("annotate %s: %w", file.Name, err)
				}
			}
			lists[i] = features
			if a.Observer != nil {
				a.Observer.FeaturesLoaded(file, len(features))
			}
			a.progress(file, len(features))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

func (a *Aligner) progress(file spot.File, n int) {
	a.mu.Lock()
	a.loaded++
	done := a.loaded
	a.mu.Unlock()
	a.log.Debug("loaded", "file", file.Name, "features", n, "done", done, "total", len(a.files))
}

// inMzRange drops features outside the configured m/z range
func (a *Aligner) inMzRange(features []spot.PeakFeature) []spot.PeakFeature {
	lo, hi := a.params.MzMin, a.params.MzMax
	if hi <= 0 {
		hi = math.Inf(1)
	}
	if lo <= 0 && math.IsInf(hi, 1) {
		return features
	}
	out := make([]spot.PeakFeature, 0, len(features))
	for _, f := range features {
		if f.Mz >= lo && f.Mz <= hi {
			out = append(out, f)
		}
	}
	return out
}

// join matches every file against the frozen master list and fills the
// gaps. Files are processed in parallel, each owning its own column.
func (a *Aligner) join(ctx context.Context, master []spot.MasterEntry, lists [][]spot.PeakFeature) ([][]spot.AlignedSlot, error) {
	columns := make([][]spot.AlignedSlot, len(a.files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.threads)
	for i := range a.files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			columns[i] = Join(master, i, lists[i], a.params.Tolerance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	widths := make([]float64, len(master))
	var all []float64
	for j := range master {
		var sum float64
		var n int
		for i := range columns {
			s := &columns[i][j]
			if s.IsDetected() && s.PeakWidth > 0 {
				sum += s.PeakWidth
				n++
				all = append(all, s.PeakWidth)
			}
		}
		if n > 0 {
			widths[j] = sum / float64(n)
		}
	}
	est := NewWidthEstimator(all)

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(a.threads)
	for i := range a.files {
		g.Go(func() error {
			col := columns[i]
			var detected, filled, defaulted int
			for j := range col {
				if err := gctx.Err(); err != nil {
					return err
				}
				s := &col[j]
				if s.IsDetected() {
					detected++
					continue
				}
				var sib []float64
				if widths[j] > 0 {
					sib = []float64{widths[j]}
				}
				if err := a.filler.Fill(gctx, s, master[j].Coordinate, est.Estimate(sib)); err != nil {
					return fmt.Errorf("gap fill %s: %w", a.files[i].Name, err)
				}
				if s.PeakID == spot.DefaultPeakID {
					defaulted++
				} else {
					filled++
				}
			}
			a.filler.release(i)
			if a.Observer != nil {
				a.Observer.SlotsFilled(a.files[i], detected, filled, defaulted)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return columns, nil
}
