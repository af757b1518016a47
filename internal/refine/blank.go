package refine

import (
	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/spot"
)

// blankFilter removes spots whose maximum sample height is below
// FoldChange times the average blank height. Spots without blank signal
// are kept. Without blank or sample files nothing is removed.
func (r *Refiner) blankFilter(spots []*spot.AlignmentSpot) []*spot.AlignmentSpot {
	var blanks, samples []int
	for _, f := range r.files {
		switch f.Type {
		case spot.FileBlank:
			blanks = append(blanks, f.ID)
		case spot.FileSample:
			samples = append(samples, f.ID)
		}
	}
	if len(blanks) == 0 || len(samples) == 0 {
		r.log.Warn("blank filter skipped, need blank and sample files",
			"blanks", len(blanks), "samples", len(samples))
		return spots
	}

	out := spots[:0]
	for _, sp := range spots {
		if !r.isBlank(sp, blanks, samples) {
			out = append(out, sp)
			continue
		}
		if r.protected(sp) {
			out = append(out, sp)
			continue
		}
		if r.params.KeepRemovableAndTag {
			sp.BlankFilterTagged = true
			out = append(out, sp)
		}
	}
	return out
}

func (r *Refiner) isBlank(sp *spot.AlignmentSpot, blanks, samples []int) bool {
	var blankSum float64
	for _, id := range blanks {
		blankSum += sp.Slots[id].Height
	}
	blankAvg := blankSum / float64(len(blanks))
	if blankAvg <= 0 {
		return false
	}
	var sampleMax float64
	for _, id := range samples {
		if h := sp.Slots[id].Height; h > sampleMax {
			sampleMax = h
		}
	}
	return sampleMax < r.params.FoldChange*blankAvg
}

func (r *Refiner) protected(sp *spot.AlignmentSpot) bool {
	if r.params.KeepIdentified && r.eval.IsReferenceMatched(sp.Match) {
		return true
	}
	if r.params.KeepSuggested && match.IsSuggested(r.eval, sp.Match) {
		return true
	}
	return false
}
