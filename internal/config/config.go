// Package config holds the alignment parameters: defaults, loading from
// YAML or JSON files, environment overrides and validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/refine"
	"github.com/524D/mzalign/internal/smooth"
	"github.com/524D/mzalign/internal/spot"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("config: invalid parameters")

// Params are all recognized parameters of an alignment run
type Params struct {
	// Matching windows; a secondary tolerance <= 0 disables the dimension
	MzTolerance    float64 `yaml:"mz_tolerance" json:"mz_tolerance"`
	RTTolerance    float64 `yaml:"rt_tolerance" json:"rt_tolerance"`
	DriftTolerance float64 `yaml:"drift_tolerance" json:"drift_tolerance"`
	CCSTolerance   float64 `yaml:"ccs_tolerance" json:"ccs_tolerance"`

	ReferenceFile int     `yaml:"reference_file" json:"reference_file"`
	Threads       int     `yaml:"threads" json:"threads"`
	MzMin         float64 `yaml:"mz_min" json:"mz_min"`
	MzMax         float64 `yaml:"mz_max" json:"mz_max"` // 0 = no upper limit

	// Gap filling
	Smoothing      string  `yaml:"smoothing" json:"smoothing"`
	SmoothingLevel int     `yaml:"smoothing_level" json:"smoothing_level"`
	RawMzPPM       float64 `yaml:"raw_mz_ppm" json:"raw_mz_ppm"` // m/z window for raw signal extraction

	// Refinement
	IonMode             spot.IonMode `yaml:"ion_mode" json:"ion_mode"`
	BlankFilter         bool         `yaml:"blank_filter" json:"blank_filter"`
	FoldChange          float64      `yaml:"fold_change" json:"fold_change"`
	KeepIdentified      bool         `yaml:"keep_identified" json:"keep_identified"`
	KeepSuggested       bool         `yaml:"keep_suggested" json:"keep_suggested"`
	KeepRemovableAndTag bool         `yaml:"keep_removable_and_tag" json:"keep_removable_and_tag"`

	// Identification
	SuggestThreshold   float64 `yaml:"suggest_threshold" json:"suggest_threshold"`
	ReferenceThreshold float64 `yaml:"reference_threshold" json:"reference_threshold"`
	ScoreFilter        string  `yaml:"score_filter" json:"score_filter"` // mzIdentML score filter
	IdentPPM           float64 `yaml:"ident_ppm" json:"ident_ppm"`
	IdentRTTolerance   float64 `yaml:"ident_rt_tolerance" json:"ident_rt_tolerance"`

	Files []spot.File `yaml:"files" json:"files"`
}

// Default returns the parameters used when a file leaves them out
func Default() Params {
	return Params{
		MzTolerance:        0.015,
		RTTolerance:        0.1,
		Threads:            0,
		Smoothing:          smooth.LinearWeightedMovingAverage.String(),
		SmoothingLevel:     3,
		RawMzPPM:           10,
		IonMode:            spot.Positive,
		FoldChange:         5,
		KeepIdentified:     true,
		SuggestThreshold:   0.5,
		ReferenceThreshold: 0.8,
		ScoreFilter:        "MS:1002257(0.0:1e-2)MS:1001330(0.0:1e-2)MS:1001159(0.0:1e-2)MS:1002466(0.99:)",
		IdentPPM:           10,
		IdentRTTolerance:   0.5,
	}
}

// Load reads a parameter file on top of the defaults, applies environment
// overrides and validates the result. File ids are set to their position
// in the file list.
func Load(path string) (Params, error) {
	p := Default()
	if err := loadFile(path, &p); err != nil {
		return p, fmt.Errorf("load parameters: %w", err)
	}
	for i := range p.Files {
		p.Files[i].ID = i
	}
	p.ApplyEnv()
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func loadFile(path string, p *Params) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, p); err != nil {
		if jsonErr := json.Unmarshal(data, p); jsonErr != nil {
			return fmt.Errorf("parse %s (tried YAML and JSON): YAML error: %v, JSON error: %w", path, err, jsonErr)
		}
	}
	return nil
}

// ApplyEnv overrides parameters from MZALIGN_* environment variables.
// Values that do not parse are ignored.
func (p *Params) ApplyEnv() {
	envFloat("MZALIGN_MZ_TOLERANCE", &p.MzTolerance)
	envFloat("MZALIGN_RT_TOLERANCE", &p.RTTolerance)
	envFloat("MZALIGN_DRIFT_TOLERANCE", &p.DriftTolerance)
	envFloat("MZALIGN_CCS_TOLERANCE", &p.CCSTolerance)
	envFloat("MZALIGN_FOLD_CHANGE", &p.FoldChange)
	envInt("MZALIGN_THREADS", &p.Threads)
	envInt("MZALIGN_REFERENCE_FILE", &p.ReferenceFile)
	envInt("MZALIGN_SMOOTHING_LEVEL", &p.SmoothingLevel)
	if v := os.Getenv("MZALIGN_SMOOTHING"); v != "" {
		p.Smoothing = v
	}
	if v := os.Getenv("MZALIGN_BLANK_FILTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.BlankFilter = b
		}
	}
	if v := os.Getenv("MZALIGN_ION_MODE"); v != "" {
		var m spot.IonMode
		if err := m.UnmarshalText([]byte(v)); err == nil {
			p.IonMode = m
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// Validate checks the parameters for consistency
func (p *Params) Validate() error {
	if !(p.MzTolerance > 0) {
		return fmt.Errorf("%w: mz_tolerance must be positive", ErrInvalidConfig)
	}
	if len(p.Files) == 0 {
		return fmt.Errorf("%w: no files", ErrInvalidConfig)
	}
	for i, f := range p.Files {
		if f.ID != i {
			return fmt.Errorf("%w: file %q has id %d at position %d", ErrInvalidConfig, f.Name, f.ID, i)
		}
	}
	if p.ReferenceFile < 0 || p.ReferenceFile >= len(p.Files) {
		return fmt.Errorf("%w: reference_file %d out of range", ErrInvalidConfig, p.ReferenceFile)
	}
	if p.Threads < 0 {
		return fmt.Errorf("%w: threads must not be negative", ErrInvalidConfig)
	}
	if p.MzMax > 0 && p.MzMin >= p.MzMax {
		return fmt.Errorf("%w: mz_min must be below mz_max", ErrInvalidConfig)
	}
	if _, err := smooth.ParseMethod(p.Smoothing); err != nil {
		return fmt.Errorf("%w: smoothing %q: %v", ErrInvalidConfig, p.Smoothing, err)
	}
	if p.SmoothingLevel < 0 {
		return fmt.Errorf("%w: smoothing_level must not be negative", ErrInvalidConfig)
	}
	if p.BlankFilter && !(p.FoldChange > 0) {
		return fmt.Errorf("%w: fold_change must be positive", ErrInvalidConfig)
	}
	if p.ReferenceThreshold < p.SuggestThreshold {
		return fmt.Errorf("%w: reference_threshold below suggest_threshold", ErrInvalidConfig)
	}
	return nil
}

// Tolerance returns the matching windows
func (p *Params) Tolerance() align.Tolerance {
	return align.Tolerance{Mz: p.MzTolerance, RT: p.RTTolerance, Drift: p.DriftTolerance, CCS: p.CCSTolerance}
}

// AlignParams returns the parameters of the alignment stage. Call after
// Validate.
func (p *Params) AlignParams() align.Params {
	m, _ := smooth.ParseMethod(p.Smoothing)
	return align.Params{
		Tolerance:       p.Tolerance(),
		ReferenceFileID: p.ReferenceFile,
		Threads:         p.Threads,
		Smoothing:       m,
		SmoothingLevel:  p.SmoothingLevel,
		MzMin:           p.MzMin,
		MzMax:           p.MzMax,
	}
}

// RefineParams returns the parameters of the refinement stage
func (p *Params) RefineParams() refine.Params {
	return refine.Params{
		Tolerance:           p.Tolerance(),
		BlankFilter:         p.BlankFilter,
		FoldChange:          p.FoldChange,
		KeepIdentified:      p.KeepIdentified,
		KeepSuggested:       p.KeepSuggested,
		KeepRemovableAndTag: p.KeepRemovableAndTag,
		IonMode:             p.IonMode,
		Threads:             p.Threads,
	}
}

// Evaluator returns the match evaluator for the configured thresholds
func (p *Params) Evaluator() *match.ScoreEvaluator {
	return match.NewScoreEvaluator(p.SuggestThreshold, p.ReferenceThreshold)
}
