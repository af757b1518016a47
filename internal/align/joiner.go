package align

import (
	"sort"

	"github.com/524D/mzalign/internal/spot"
)

// column accumulates the matches of one file against the master list.
// Each join call owns its column, it is never shared between files.
type column struct {
	bestFactor []float64 // 0 = unset
	slots      []spot.AlignedSlot
}

func newColumn(fileID int, master []spot.MasterEntry) *column {
	c := &column{
		bestFactor: make([]float64, len(master)),
		slots:      make([]spot.AlignedSlot, len(master)),
	}
	for i, m := range master {
		c.slots[i] = spot.NewAbsentSlot(fileID, m.Coordinate)
	}
	return c
}

// Join matches the features of one file against the master list and
// returns one slot per master entry. Each feature goes to the entry with
// the highest match factor, and stays there only if no feature with a
// higher factor claims the same entry. This greedy assignment is not
// globally optimal: a feature that loses its best entry is not moved to
// its second best. On equal factors the earlier feature is kept.
// Slots without a feature are left absent for gap filling.
func Join(master []spot.MasterEntry, fileID int, features []spot.PeakFeature, tol Tolerance) []spot.AlignedSlot {
	col := newColumn(fileID, master)
	for _, f := range features {
		lo := sort.Search(len(master), func(i int) bool {
			return master[i].Mz >= f.Mz-tol.Mz
		})
		best := -1
		bestFactor := 0.0
		for i := lo; i < len(master) && master[i].Mz <= f.Mz+tol.Mz; i++ {
			fac := tol.Factor(master[i].Coordinate, f.Coordinate)
			if fac > bestFactor {
				best = i
				bestFactor = fac
			}
		}
		if best < 0 {
			continue
		}
		if bestFactor > col.bestFactor[best] {
			col.bestFactor[best] = bestFactor
			col.slots[best].PeakFeature = f
		}
	}
	return col.slots
}
