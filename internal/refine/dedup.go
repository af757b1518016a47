package refine

import (
	"sort"

	"github.com/524D/mzalign/internal/spot"
)

type identity struct {
	source    spot.MatchSource
	libraryID int
}

// deduplicate keeps, per identity, only the best scoring spot. The other
// spots carrying that identity lose their match. Equal scores keep the
// spot that comes first.
func (r *Refiner) deduplicate(spots []*spot.AlignmentSpot) {
	best := map[identity]int{}
	for i, sp := range spots {
		if !sp.Match.IsMatched() {
			continue
		}
		key := identity{sp.Match.Source, sp.Match.LibraryID}
		j, ok := best[key]
		if !ok {
			best[key] = i
			continue
		}
		if sp.Match.TotalScore > spots[j].Match.TotalScore {
			spots[j].Match = spot.NoMatch()
			best[key] = i
		} else {
			sp.Match = spot.NoMatch()
		}
	}
}

// cleanPass orders candidates for near-duplicate removal: library
// matches, then any spot the evaluator confirms, then text DB matches,
// then everything else
func (r *Refiner) cleanPass(sp *spot.AlignmentSpot) int {
	switch {
	case !sp.Match.IsMatched():
		return 3
	case sp.Match.Source == spot.SourceLibrary:
		return 0
	case r.eval.IsReferenceMatched(sp.Match):
		return 1
	case sp.Match.Source == spot.SourceTextDB:
		return 2
	}
	return 3
}

// clean drops spots whose center lies within tolerance of a spot accepted
// earlier. Candidates are visited pass by pass; identified passes by
// descending score, the last pass by descending average height.
// Survivors keep their input order.
func (r *Refiner) clean(spots []*spot.AlignmentSpot) []*spot.AlignmentSpot {
	order := make([]int, len(spots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := spots[order[a]], spots[order[b]]
		pa, pb := r.cleanPass(sa), r.cleanPass(sb)
		if pa != pb {
			return pa < pb
		}
		if pa < 3 {
			return sa.Match.TotalScore > sb.Match.TotalScore
		}
		return sa.Height.Avg > sb.Height.Avg
	})

	tol := r.params.Tolerance
	var accepted []*spot.AlignmentSpot // sorted by center m/z
	keep := make([]bool, len(spots))
	for _, i := range order {
		c := spots[i].Center
		lo := sort.Search(len(accepted), func(k int) bool {
			return accepted[k].Center.Mz >= c.Mz-tol.Mz
		})
		dup := false
		for k := lo; k < len(accepted) && accepted[k].Center.Mz <= c.Mz+tol.Mz; k++ {
			if tol.Within(accepted[k].Center, c) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		keep[i] = true
		pos := sort.Search(len(accepted), func(k int) bool {
			return accepted[k].Center.Mz > c.Mz
		})
		accepted = append(accepted, nil)
		copy(accepted[pos+1:], accepted[pos:])
		accepted[pos] = spots[i]
	}

	out := spots[:0]
	for i, sp := range spots {
		if keep[i] {
			out = append(out, sp)
		}
	}
	return out
}
