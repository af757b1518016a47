// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/524D/mzalign/internal/config"
	"github.com/524D/mzalign/internal/spot"
)

// debugRange returns the range of spot ids to print. When no range is
// given, MZALIGN_DEBUG=1 selects all spots. A range that selects no
// existing spot prints nothing.
func debugRange(debugSpots string, numSpots int) (int, int, bool) {
	if debugSpots == `` {
		if os.Getenv("MZALIGN_DEBUG") != `1` {
			return 0, 0, false
		}
		debugSpots = `:`
	}
	debugMin, debugMax, err := config.ParseIntRange(debugSpots, 0, numSpots-1)
	if err != nil {
		return 0, 0, false
	}
	return debugMin, debugMax, true
}

// checkDebugRange validates a --debug spot range before any work is done
func checkDebugRange(debugSpots string) error {
	if debugSpots == `` {
		return nil
	}
	if !strings.Contains(debugSpots, `:`) {
		return fmt.Errorf("%w: %q has no ':'", config.ErrRangeSpec, debugSpots)
	}
	_, _, err := config.ParseIntRange(debugSpots, 0, math.MaxInt)
	return err
}

func slotStatus(s *spot.AlignedSlot) string {
	switch s.PeakID {
	case spot.AbsentPeakID:
		return `absent`
	case spot.GapFilledPeakID:
		return `gapfilled`
	case spot.DefaultPeakID:
		return `default`
	}
	return fmt.Sprintf("peak:%d", s.PeakID)
}

func debugLogSpots(w io.Writer, spots []*spot.AlignmentSpot, debugSpots string) {
	debugMin, debugMax, ok := debugRange(debugSpots, len(spots))
	if !ok {
		return
	}
	for _, sp := range spots {
		if sp.ID < debugMin || sp.ID > debugMax {
			continue
		}
		fmt.Fprintf(w, "Spot:%d (prior %d) mz:%f rt:%f fill:%0.2f group:%d adduct:%s",
			sp.ID, sp.PriorID, sp.Center.Mz, sp.Center.RT, sp.FillPercentage, sp.GroupID, sp.Adduct)
		if sp.Match.IsMatched() {
			fmt.Fprintf(w, " match:%s(%s %d, %0.3f)", sp.Match.Name, sp.Match.Source, sp.Match.LibraryID, sp.Match.TotalScore)
		}
		if sp.AnovaPValue >= 0 {
			fmt.Fprintf(w, " fc:%f p:%g", sp.FoldChange, sp.AnovaPValue)
		}
		fmt.Fprintf(w, "\n")
		for i := range sp.Slots {
			s := &sp.Slots[i]
			fmt.Fprintf(w, "%d %s mz:%f rt:%f height:%f area:%f width:%f sn:%0.1f\n",
				s.FileID, slotStatus(s), s.Mz, s.RT, s.Height, s.AreaAboveZero, s.PeakWidth, s.SignalToNoise)
		}
		for _, l := range sp.Links {
			fmt.Fprintf(w, "  link %s -> %d\n", l.Kind, l.SpotID)
		}
	}
}
