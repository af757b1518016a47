// Package refine post-processes alignment spots into the final feature
// table: duplicate removal, blank filtering, renumbering, group statistics
// and isotope/adduct grouping.
package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/spot"
)

// ErrInvalidArgument is returned for a refiner that cannot work on its
// input
var ErrInvalidArgument = errors.New("refine: invalid argument")

// Params controls the refinement
type Params struct {
	Tolerance align.Tolerance // near-duplicate window on spot centers

	BlankFilter         bool
	FoldChange          float64 // sample/blank height ratio to keep a spot
	KeepIdentified      bool    // blank filter spares reference matched spots
	KeepSuggested       bool    // blank filter spares spots with a suggested match
	KeepRemovableAndTag bool    // tag blank spots instead of removing them

	IonMode spot.IonMode
	Threads int // statistics workers, <= 0 means GOMAXPROCS
}

// Refiner runs the refinement steps over a spot collection
type Refiner struct {
	params  Params
	eval    match.Evaluator
	files   []spot.File
	log     *slog.Logger
	threads int
}

// NewRefiner checks its arguments and returns a refiner
func NewRefiner(params Params, ev match.Evaluator, files []spot.File, log *slog.Logger) (*Refiner, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: no match evaluator", ErrInvalidArgument)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidArgument)
	}
	if !(params.Tolerance.Mz > 0) {
		return nil, fmt.Errorf("%w: m/z tolerance must be positive", ErrInvalidArgument)
	}
	if params.BlankFilter && !(params.FoldChange > 0) {
		return nil, fmt.Errorf("%w: blank filter fold change must be positive", ErrInvalidArgument)
	}
	if log == nil {
		log = slog.Default()
	}
	threads := params.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return &Refiner{params: params, eval: ev, files: files, log: log, threads: threads}, nil
}

// Refine returns the refined spots, renumbered from 0. The spots are
// modified in place; removed spots are dropped from the result but the
// order of the input slice is not changed. Running
// Refine on its own output leaves ids and groups unchanged.
func (r *Refiner) Refine(ctx context.Context, spots []*spot.AlignmentSpot) ([]*spot.AlignmentSpot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, sp := range spots {
		if sp == nil {
			return nil, fmt.Errorf("%w: spot %d is nil", ErrInvalidArgument, i)
		}
		if len(sp.Slots) != len(r.files) {
			return nil, fmt.Errorf("%w: spot %d has %d slots for %d files",
				ErrInvalidArgument, sp.ID, len(sp.Slots), len(r.files))
		}
	}
	t := time.Now()
	n := len(spots)
	// Passes below compact the slice, the caller's collection stays intact
	spots = append([]*spot.AlignmentSpot(nil), spots...)

	r.deduplicate(spots)
	spots = r.clean(spots)
	r.log.Debug("near duplicates removed", "before", n, "after", len(spots))
	if r.params.BlankFilter {
		before := len(spots)
		spots = r.blankFilter(spots)
		r.log.Debug("blank filter", "before", before, "after", len(spots))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	renumber(spots)
	resetIsotopes(spots)
	if err := r.statistics(ctx, spots); err != nil {
		return nil, err
	}
	r.assignLinks(spots)
	groups := assignGroups(spots)
	r.defaultAdducts(spots)

	r.log.Info("alignment refined", "spots", len(spots), "removed", n-len(spots),
		"groups", groups, "elapsed", time.Since(t))
	return spots, nil
}

// renumber assigns dense ids in collection order and remaps all spot
// references. References to removed spots are dropped.
func renumber(spots []*spot.AlignmentSpot) {
	newID := make(map[int]int, len(spots))
	for i, sp := range spots {
		newID[sp.ID] = i
	}
	for i, sp := range spots {
		sp.PriorID = sp.ID
		sp.ID = i

		links := sp.Links[:0]
		for _, l := range sp.Links {
			if id, ok := newID[l.SpotID]; ok {
				l.SpotID = id
				links = append(links, l)
			}
		}
		sp.Links = links

		if id, ok := newID[sp.IsotopeParentID]; ok {
			sp.IsotopeParentID = id
		} else {
			sp.IsotopeParentID = i
		}
		if sp.InternalStandardID >= 0 {
			if id, ok := newID[sp.InternalStandardID]; ok {
				sp.InternalStandardID = id
			} else {
				sp.InternalStandardID = -1
			}
		}
	}
}

func resetIsotopes(spots []*spot.AlignmentSpot) {
	for _, sp := range spots {
		sp.IsotopeWeight = 0
		sp.IsotopeParentID = sp.ID
	}
}

func (r *Refiner) defaultAdducts(spots []*spot.AlignmentSpot) {
	for _, sp := range spots {
		if sp.Adduct == "" {
			sp.Adduct = spot.DefaultAdduct(r.params.IonMode, sp.Charge)
		}
	}
}
