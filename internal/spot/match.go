package spot

import (
	"fmt"
	"strings"
)

// MatchSource identifies the database that produced an identity match
type MatchSource int

const (
	SourceNone      MatchSource = iota
	SourceLibrary               // spectral library (MSP like)
	SourceReference             // generic reference match, e.g. database search
	SourceTextDB                // text database (m/z, rt list)
)

var sourceNames = []string{"none", "library", "reference", "textdb"}

func (s MatchSource) String() string {
	if int(s) >= 0 && int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// ParseMatchSource converts a name as written by String
func ParseMatchSource(name string) (MatchSource, error) {
	for i, n := range sourceNames {
		if strings.EqualFold(n, name) {
			return MatchSource(i), nil
		}
	}
	return SourceNone, fmt.Errorf("unknown match source %q", name)
}

func (s MatchSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *MatchSource) UnmarshalText(b []byte) error {
	v, err := ParseMatchSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MatchResult is the outcome of a chemical identity search for one feature
type MatchResult struct {
	Source     MatchSource `json:"source"`
	LibraryID  int         `json:"libraryId"` // -1 = no match
	Name       string      `json:"name,omitempty"`
	TotalScore float64     `json:"totalScore"`
}

// NoMatch returns the result for an unidentified feature
func NoMatch() MatchResult {
	return MatchResult{Source: SourceNone, LibraryID: -1}
}

// IsMatched reports whether the result refers to a library entry
func (m MatchResult) IsMatched() bool {
	return m.Source != SourceNone && m.LibraryID >= 0
}
