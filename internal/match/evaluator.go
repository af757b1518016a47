// Package match defines how identity match results produced by an external
// annotator are judged by the alignment.
package match

import "github.com/524D/mzalign/internal/spot"

// Evaluator decides which identity matches are acceptable. Implementations
// are injected into the spot packer and the refiner.
type Evaluator interface {
	// FilterByThreshold returns the results that pass the minimum score
	FilterByThreshold(results []spot.MatchResult) []spot.MatchResult
	// SelectTopHit returns the best result, false if there is none
	SelectTopHit(results []spot.MatchResult) (spot.MatchResult, bool)
	// IsReferenceMatched reports whether a result is a confirmed identity
	IsReferenceMatched(result spot.MatchResult) bool
}

// ScoreEvaluator judges results by their total score only
type ScoreEvaluator struct {
	SuggestThreshold   float64 // minimum score to keep a result at all
	ReferenceThreshold float64 // minimum score for a confirmed identity
}

// NewScoreEvaluator returns an evaluator with the given thresholds
func NewScoreEvaluator(suggest, reference float64) *ScoreEvaluator {
	return &ScoreEvaluator{SuggestThreshold: suggest, ReferenceThreshold: reference}
}

func (e *ScoreEvaluator) FilterByThreshold(results []spot.MatchResult) []spot.MatchResult {
	var out []spot.MatchResult
	for _, r := range results {
		if r.IsMatched() && r.TotalScore >= e.SuggestThreshold {
			out = append(out, r)
		}
	}
	return out
}

// SelectTopHit returns the highest scoring result. On equal scores the
// first one wins.
func (e *ScoreEvaluator) SelectTopHit(results []spot.MatchResult) (spot.MatchResult, bool) {
	best := -1
	for i, r := range results {
		if !r.IsMatched() {
			continue
		}
		if best < 0 || r.TotalScore > results[best].TotalScore {
			best = i
		}
	}
	if best < 0 {
		return spot.NoMatch(), false
	}
	return results[best], true
}

func (e *ScoreEvaluator) IsReferenceMatched(result spot.MatchResult) bool {
	return result.IsMatched() && result.TotalScore >= e.ReferenceThreshold
}

// IsSuggested reports whether a result carries an identity that did not
// reach the reference threshold
func IsSuggested(e Evaluator, result spot.MatchResult) bool {
	return result.IsMatched() && !e.IsReferenceMatched(result)
}
