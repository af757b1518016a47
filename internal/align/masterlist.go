package align

import (
	"math"

	"github.com/524D/mzalign/internal/spot"
)

// MasterListBuilder merges per-file feature lists into one list of
// representative coordinates ordered by m/z. While building, the list is
// bounded by two sentinel entries at -Inf and +Inf, so scans over
// neighbors never need a bounds check.
type MasterListBuilder struct {
	tol     Tolerance
	entries []spot.MasterEntry
}

// NewMasterListBuilder returns a builder with an empty (sentinel only) list
func NewMasterListBuilder(tol Tolerance) *MasterListBuilder {
	return &MasterListBuilder{
		tol: tol,
		entries: []spot.MasterEntry{
			sentinel(math.Inf(-1)),
			sentinel(math.Inf(1)),
		},
	}
}

func sentinel(mz float64) spot.MasterEntry {
	return spot.MasterEntry{
		Coordinate: spot.Coordinate{Mz: mz},
		FileID:     -1,
		PeakID:     spot.AbsentPeakID,
	}
}

// Seed adds all features of the reference file without duplicate
// checking. Features must be sorted by m/z.
func (b *MasterListBuilder) Seed(fileID int, features []spot.PeakFeature) {
	b.merge(fileID, features, false)
}

// Merge adds the features of a file that are not yet represented in the
// list. Features must be sorted by m/z. A feature is represented when an
// entry lies within tolerance in all enabled dimensions; the first
// writer wins.
func (b *MasterListBuilder) Merge(fileID int, features []spot.PeakFeature) {
	b.merge(fileID, features, true)
}

// merge walks a single cursor through the current list. Entries smaller
// than the candidate are copied to the new list, so the previous neighbor
// of a candidate is the tail of the new list (which may be a candidate of
// the same file) and the next neighbor is at the cursor.
func (b *MasterListBuilder) merge(fileID int, features []spot.PeakFeature, dedup bool) {
	old := b.entries
	out := make([]spot.MasterEntry, 0, len(old)+len(features))
	out = append(out, old[0])
	cursor := 1
	for _, f := range features {
		if math.IsNaN(f.Mz) || math.IsInf(f.Mz, 0) {
			continue
		}
		for old[cursor].Mz < f.Mz {
			out = append(out, old[cursor])
			cursor++
		}
		if dedup && b.represented(f.Coordinate, out, old[cursor:]) {
			continue
		}
		out = append(out, spot.MasterEntry{
			Coordinate: f.Coordinate,
			FileID:     fileID,
			PeakID:     f.PeakID,
		})
	}
	out = append(out, old[cursor:]...)
	b.entries = out
}

// represented checks the entries inside the m/z tolerance window on both
// sides of the cursor
func (b *MasterListBuilder) represented(c spot.Coordinate, before, after []spot.MasterEntry) bool {
	for i := len(before) - 1; before[i].Mz >= c.Mz-b.tol.Mz; i-- {
		if b.tol.Within(before[i].Coordinate, c) {
			return true
		}
	}
	for i := 0; after[i].Mz <= c.Mz+b.tol.Mz; i++ {
		if b.tol.Within(after[i].Coordinate, c) {
			return true
		}
	}
	return false
}

// Len returns the number of entries, excluding sentinels
func (b *MasterListBuilder) Len() int {
	return len(b.entries) - 2
}

// Entries returns the master list with the sentinels removed
func (b *MasterListBuilder) Entries() []spot.MasterEntry {
	out := make([]spot.MasterEntry, len(b.entries)-2)
	copy(out, b.entries[1:len(b.entries)-1])
	return out
}

// BuildMasterList seeds the list with the reference file and merges the
// other files in order. lists[i] holds the sorted features of file i.
func BuildMasterList(tol Tolerance, referenceFileID int, lists [][]spot.PeakFeature) []spot.MasterEntry {
	b := NewMasterListBuilder(tol)
	if referenceFileID >= 0 && referenceFileID < len(lists) {
		b.Seed(referenceFileID, lists[referenceFileID])
	}
	for i, features := range lists {
		if i == referenceFileID {
			continue
		}
		b.Merge(i, features)
	}
	return b.Entries()
}
