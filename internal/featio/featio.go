// Package featio reads per-file feature lists and reads and writes
// alignment results as JSON.
package featio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/524D/mzalign/internal/spot"
)

// ErrUnknownFile is returned when a result refers to a file that is not
// in its file list
var ErrUnknownFile = errors.New("featio: unknown file")

// JSONSource implements align.FeatureSource for files holding a JSON
// array of peak features
type JSONSource struct {
	log *slog.Logger
}

// NewJSONSource returns a feature source. A nil logger uses slog.Default.
func NewJSONSource(log *slog.Logger) *JSONSource {
	if log == nil {
		log = slog.Default()
	}
	return &JSONSource{log: log}
}

// GetFeatures reads the feature list of file. A file without feature path
// has no detections. The list is returned sorted by m/z.
func (s *JSONSource) GetFeatures(ctx context.Context, file spot.File) ([]spot.PeakFeature, error) {
	if file.FeaturePath == "" {
		s.log.Warn("no feature list, file has no detections", "file", file.Name)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(file.FeaturePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	features, err := ReadFeatures(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.FeaturePath, err)
	}
	return features, nil
}

// ReadFeatures decodes a JSON array of peak features and sorts it by m/z.
// Missing isotope parents default to the feature itself.
func ReadFeatures(r io.Reader) ([]spot.PeakFeature, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	features := make([]spot.PeakFeature, len(raw))
	for i, m := range raw {
		features[i].IsotopeParentPeakID = spot.AbsentPeakID
		if err := json.Unmarshal(m, &features[i]); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if features[i].IsotopeParentPeakID == spot.AbsentPeakID {
			features[i].IsotopeParentPeakID = features[i].PeakID
		}
	}
	sort.SliceStable(features, func(i, j int) bool { return features[i].Mz < features[j].Mz })
	return features, nil
}

// WriteFeatures writes features as an indented JSON array
func WriteFeatures(w io.Writer, features []spot.PeakFeature) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `)
	return e.Encode(features)
}

// Result is the output of one alignment run
type Result struct {
	RunID   string                `json:"runId"`
	Created time.Time             `json:"created"`
	Version string                `json:"version,omitempty"`
	Files   []spot.File           `json:"files"`
	Spots   []*spot.AlignmentSpot `json:"spots"`
}

// WriteResult writes r as indented JSON
func WriteResult(w io.Writer, r Result) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	return e.Encode(r)
}

// ReadResult decodes a result written by WriteResult and checks that
// every slot refers to a known file
func ReadResult(r io.Reader) (Result, error) {
	var res Result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return res, err
	}
	for _, s := range res.Spots {
		if len(s.Slots) != len(res.Files) {
			return res, fmt.Errorf("%w: spot %d has %d slots for %d files",
				ErrUnknownFile, s.ID, len(s.Slots), len(res.Files))
		}
		for i := range s.Slots {
			if s.Slots[i].FileID != i {
				return res, fmt.Errorf("%w: spot %d slot %d has file id %d",
					ErrUnknownFile, s.ID, i, s.Slots[i].FileID)
			}
		}
	}
	return res, nil
}

// WriteResultFile writes r to path
func WriteResultFile(path string, r Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteResult(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadResultFile reads a result from path
func ReadResultFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return ReadResult(f)
}

// Summary holds the counts printed by the inspect command
type Summary struct {
	Spots      int
	Groups     int
	Identified int
	Tagged     int
	// Fill[i] counts spots detected in i+1 files
	Fill []int
}

// Summarize counts spots, groups and the fill distribution of r
func Summarize(r Result) Summary {
	sum := Summary{Spots: len(r.Spots), Fill: make([]int, len(r.Files))}
	groups := make(map[int]struct{})
	for _, s := range r.Spots {
		if s.GroupID >= 0 {
			groups[s.GroupID] = struct{}{}
		}
		if s.Match.IsMatched() {
			sum.Identified++
		}
		if s.BlankFilterTagged {
			sum.Tagged++
		}
		if n := s.DetectedCount(); n > 0 && n <= len(sum.Fill) {
			sum.Fill[n-1]++
		}
	}
	sum.Groups = len(groups)
	return sum
}
