package align

import (
	"math"

	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/spot"
)

// statAcc accumulates average, maximum and minimum
type statAcc struct {
	sum, max, min float64
	n             int
}

func (a *statAcc) add(x float64) {
	if a.n == 0 || x > a.max {
		a.max = x
	}
	if a.n == 0 || x < a.min {
		a.min = x
	}
	a.sum += x
	a.n++
}

func (a *statAcc) stat() spot.Stat {
	if a.n == 0 {
		return spot.Stat{}
	}
	return spot.Stat{Avg: a.sum / float64(a.n), Max: a.max, Min: a.min}
}

func (a *statAcc) rng(dflt float64) spot.Range {
	if a.n == 0 {
		return spot.Range{Min: dflt, Max: dflt}
	}
	return spot.Range{Min: a.min, Max: a.max}
}

func (a *statAcc) avg(dflt float64) float64 {
	if a.n == 0 {
		return dflt
	}
	return a.sum / float64(a.n)
}

// Pack aggregates the slots of one master entry into an alignment spot.
// Statistics are computed over detected slots only. slots must hold one
// slot per file, ordered by file id; the spot takes ownership of it.
func Pack(id int, entry spot.MasterEntry, slots []spot.AlignedSlot, ev match.Evaluator) *spot.AlignmentSpot {
	sp := spot.NewAlignmentSpot(id, slots)

	var height, sn, noise, width, mz, rt, drift, ccs statAcc
	mono := 0
	detected := 0
	bestMatch := -1
	bestScore := math.Inf(-1)
	var topHit spot.MatchResult
	highest := -1

	for i := range slots {
		s := &slots[i]
		if !s.IsDetected() {
			continue
		}
		detected++
		height.add(s.Height)
		sn.add(s.SignalToNoise)
		noise.add(s.EstimatedNoise)
		width.add(s.PeakWidth)
		mz.add(s.Mz)
		rt.add(s.RT)
		drift.add(s.Drift)
		ccs.add(s.CCS)
		if s.IsotopeWeight == 0 {
			mono++
		}
		if highest < 0 || s.Height > slots[highest].Height {
			highest = i
		}
		if ev != nil {
			if hit, ok := ev.SelectTopHit(ev.FilterByThreshold(s.Matches)); ok && hit.TotalScore > bestScore {
				bestScore = hit.TotalScore
				bestMatch = i
				topHit = hit
			}
		}
	}

	sp.Height = height.stat()
	sp.SignalToNoise = sn.stat()
	sp.EstimatedNoise = noise.stat()
	sp.PeakWidth = width.stat()
	sp.Center = spot.Coordinate{
		Mz:    mz.avg(entry.Mz),
		RT:    rt.avg(entry.RT),
		Drift: drift.avg(entry.Drift),
		CCS:   ccs.avg(entry.CCS),
	}
	sp.MzRange = mz.rng(entry.Mz)
	sp.RTRange = rt.rng(entry.RT)
	sp.DriftRange = drift.rng(entry.Drift)
	sp.CCSRange = ccs.rng(entry.CCS)
	if len(slots) > 0 {
		sp.FillPercentage = float64(detected) / float64(len(slots))
	}
	if detected > 0 {
		sp.MonoIsotopicPercentage = float64(mono) / float64(detected)
	}

	rep := bestMatch
	if rep < 0 {
		rep = highest
	}
	if rep < 0 {
		sp.RepresentativeFileID = entry.FileID
		return sp
	}
	r := &slots[rep]
	sp.RepresentativeFileID = r.FileID
	if bestMatch >= 0 {
		sp.Match = topHit
	}
	sp.Adduct = r.Adduct
	sp.Charge = r.Charge
	sp.IsotopeWeight = r.IsotopeWeight
	return sp
}
