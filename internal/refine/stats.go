package refine

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/524D/mzalign/internal/spot"
)

// classes groups the sample files by class label, in label order
func (r *Refiner) classes() [][]int {
	byClass := map[string][]int{}
	for _, f := range r.files {
		if f.Type == spot.FileSample {
			byClass[f.Class] = append(byClass[f.Class], f.ID)
		}
	}
	names := make([]string, 0, len(byClass))
	for name := range byClass {
		names = append(names, name)
	}
	sort.Strings(names)
	groups := make([][]int, len(names))
	for i, name := range names {
		groups[i] = byClass[name]
	}
	return groups
}

// anovaApplicable reports whether a one-way ANOVA is defined: two or more
// classes, with at least one class holding more than one file
func anovaApplicable(groups [][]int) bool {
	if len(groups) < 2 {
		return false
	}
	for _, g := range groups {
		if len(g) >= 2 {
			return true
		}
	}
	return false
}

// statistics computes fold change and ANOVA p-value per spot in parallel
func (r *Refiner) statistics(ctx context.Context, spots []*spot.AlignmentSpot) error {
	groups := r.classes()
	anova := anovaApplicable(groups)
	if !anova {
		r.log.Debug("ANOVA skipped", "classes", len(groups))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.threads)
	for _, sp := range spots {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			heights := classHeights(sp, groups)
			sp.FoldChange = foldChange(heights)
			sp.AnovaPValue = -1
			if anova {
				sp.AnovaPValue = anovaPValue(heights)
			}
			return nil
		})
	}
	return g.Wait()
}

func classHeights(sp *spot.AlignmentSpot, groups [][]int) [][]float64 {
	h := make([][]float64, len(groups))
	for i, ids := range groups {
		h[i] = make([]float64, len(ids))
		for j, id := range ids {
			h[i][j] = sp.Slots[id].Height
		}
	}
	return h
}

// foldChange is the ratio of the highest to the lowest class mean, 0 when
// there are fewer than two classes or the lowest mean is not positive
func foldChange(heights [][]float64) float64 {
	if len(heights) < 2 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, h := range heights {
		m := stat.Mean(h, nil)
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	if lo <= 0 {
		return 0
	}
	return hi / lo
}

// anovaPValue runs a one-way ANOVA over the classes and returns the
// probability of an F statistic at least as large
func anovaPValue(heights [][]float64) float64 {
	var n int
	var sum float64
	for _, h := range heights {
		n += len(h)
		sum += floats.Sum(h)
	}
	k := len(heights)
	grand := sum / float64(n)
	var ssb, ssw float64
	for _, h := range heights {
		m := stat.Mean(h, nil)
		ssb += float64(len(h)) * (m - grand) * (m - grand)
		for _, x := range h {
			ssw += (x - m) * (x - m)
		}
	}
	d1, d2 := float64(k-1), float64(n-k)
	if ssw == 0 {
		if ssb == 0 {
			return 1
		}
		return 0
	}
	f := (ssb / d1) / (ssw / d2)
	return distuv.F{D1: d1, D2: d2}.Survival(f)
}
