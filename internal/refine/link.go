package refine

import (
	"sort"

	"github.com/524D/mzalign/internal/spot"
)

type peakKey struct {
	fileID, peakID int
}

// assignLinks translates the per-file peak links of the spots' slots into
// spot links. Reference matched spots are processed first, from their
// representative slot; the others follow by descending average height,
// from their most intense slot. Spot ids must equal collection indexes.
func (r *Refiner) assignLinks(spots []*spot.AlignmentSpot) {
	owner := map[peakKey]int{}
	for _, sp := range spots {
		sp.Links = nil
		sp.GroupID = -1
		for i := range sp.Slots {
			s := &sp.Slots[i]
			if s.IsDetected() {
				owner[peakKey{s.FileID, s.PeakID}] = sp.ID
			}
		}
	}

	done := make([]bool, len(spots))
	for _, sp := range spots {
		if !r.eval.IsReferenceMatched(sp.Match) {
			continue
		}
		if fid := sp.RepresentativeFileID; fid >= 0 && fid < len(sp.Slots) && sp.Slots[fid].IsDetected() {
			linkFromSlot(spots, owner, sp, &sp.Slots[fid])
			done[sp.ID] = true
		}
	}

	order := make([]*spot.AlignmentSpot, len(spots))
	copy(order, spots)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Height.Avg > order[j].Height.Avg
	})
	for _, sp := range order {
		if done[sp.ID] {
			continue
		}
		best := -1
		for i := range sp.Slots {
			if sp.Slots[i].IsDetected() && (best < 0 || sp.Slots[i].Height > sp.Slots[best].Height) {
				best = i
			}
		}
		if best >= 0 {
			linkFromSlot(spots, owner, sp, &sp.Slots[best])
		}
		done[sp.ID] = true
	}
}

func linkFromSlot(spots []*spot.AlignmentSpot, owner map[peakKey]int, sp *spot.AlignmentSpot, s *spot.AlignedSlot) {
	for _, l := range s.Links {
		target, ok := owner[peakKey{s.FileID, l.PeakID}]
		if !ok || target == sp.ID {
			continue
		}
		addLink(sp, spots[target], l.Kind)
		if l.Kind == spot.LinkIsotope && s.IsotopeWeight > 0 && l.PeakID == s.IsotopeParentPeakID && sp.IsotopeWeight == 0 {
			sp.IsotopeWeight = s.IsotopeWeight
			sp.IsotopeParentID = target
		}
	}
}

// addLink registers a relation on both spots unless already present
func addLink(a, b *spot.AlignmentSpot, kind spot.LinkKind) {
	if !a.HasLink(b.ID, kind) {
		a.Links = append(a.Links, spot.SpotLink{SpotID: b.ID, Kind: kind})
	}
	if !b.HasLink(a.ID, kind) {
		b.Links = append(b.Links, spot.SpotLink{SpotID: a.ID, Kind: kind})
	}
}

// Group assignment states
const (
	unassigned = iota
	queued
	assigned
)

// assignGroups numbers the connected components of the link graph,
// ignoring weak links. Every spot ends with a group id >= 0. Returns the
// number of groups.
func assignGroups(spots []*spot.AlignmentSpot) int {
	state := make([]int, len(spots))
	adj := make([][]int, len(spots))
	for _, sp := range spots {
		for _, l := range sp.Links {
			if !l.Kind.IsWeak() {
				adj[sp.ID] = append(adj[sp.ID], l.SpotID)
			}
		}
	}
	group := 0
	var queue []int
	for start := range spots {
		if state[start] != unassigned {
			continue
		}
		state[start] = queued
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			spots[id].GroupID = group
			state[id] = assigned
			for _, next := range adj[id] {
				if state[next] == unassigned {
					state[next] = queued
					queue = append(queue, next)
				}
			}
		}
		group++
	}
	return group
}
