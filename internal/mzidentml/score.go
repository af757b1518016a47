package mzidentml

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/524D/mzalign/internal/config"
)

type scoreRange struct {
	minScore float64 // Minimum score to accept
	maxScore float64 // Maximum score to accept
	priority int     // Priority of the score, lowest is best
}

// ScoreFilter selects identifications by their score CV terms. Terms are
// looked up by accession or by name.
type ScoreFilter map[string]scoreRange

var scoreFilterRe = regexp.MustCompile(`([^\(]+)\(([^\)]*)\)`)

// ParseScoreFilter parses a filter like "MS:1002257(0.0:1e-2)MS:1002466(0.99:)".
// Terms that come first take priority when an identification carries
// several of them.
func ParseScoreFilter(scoreFilterStr string) (ScoreFilter, error) {
	scoreFilt := make(ScoreFilter)
	for n, matchedStrings := range scoreFilterRe.FindAllStringSubmatch(scoreFilterStr, -1) {
		scoreName := matchedStrings[1]
		if _, ok := scoreFilt[scoreName]; ok {
			return nil, fmt.Errorf("%w: %s defined more than once", ErrScoreFilter, scoreName)
		}
		minScore, maxScore, err := config.ParseFloat64Range(matchedStrings[2],
			-math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid range for score %s", ErrScoreFilter, scoreName)
		}
		scoreFilt[scoreName] = scoreRange{minScore: minScore, maxScore: maxScore, priority: n}
	}
	return scoreFilt, nil
}

// Accept reports whether the highest priority score term of the
// identification is inside its range. Identifications without any of the
// filter's terms are rejected.
func (f ScoreFilter) Accept(ident Identification) (bool, error) {
	ok := false
	curPrio := math.MaxInt32
	for _, cv := range ident.Cv {
		filt, found := f[cv.Accession]
		if !found {
			filt, found = f[cv.Name]
		}
		if !found || filt.priority >= curPrio {
			continue
		}
		score, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return false, fmt.Errorf("%w: invalid score value %s", ErrScoreFilter, cv.Value)
		}
		curPrio = filt.priority
		ok = score >= filt.minScore && score <= filt.maxScore
	}
	return ok, nil
}
