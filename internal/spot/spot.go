// Package spot holds the data that flows through the alignment pipeline:
// per-file peak features, the master list, aligned slots and the
// alignment spots that are the final output.
package spot

import "math"

// Peak ID markers for slots that are not bound to a detected feature
const (
	AbsentPeakID    = -1 // No feature matched, waiting for gap filling
	GapFilledPeakID = -2 // Feature synthesized from raw signal
	DefaultPeakID   = -3 // No usable raw signal, zero height/area
)

// Coordinate is a position in the (m/z, retention time, drift, CCS) space.
// Mz is the primary coordinate, the others are optional secondary
// dimensions.
type Coordinate struct {
	Mz    float64 `json:"mz"`
	RT    float64 `json:"rt"`
	Drift float64 `json:"drift,omitempty"`
	CCS   float64 `json:"ccs,omitempty"`
}

// PeakFeature is a single detection in a single file
type PeakFeature struct {
	PeakID int `json:"peakId"`
	Coordinate
	Height              float64       `json:"height"`
	AreaAboveZero       float64       `json:"areaAboveZero"`
	AreaAboveBaseline   float64       `json:"areaAboveBaseline"`
	PeakWidth           float64       `json:"peakWidth"`
	SignalToNoise       float64       `json:"signalToNoise"`
	EstimatedNoise      float64       `json:"estimatedNoise"`
	IsotopeWeight       int           `json:"isotopeWeight"`       // 0 = monoisotopic
	IsotopeParentPeakID int           `json:"isotopeParentPeakId"` // PeakID of monoisotopic peak
	Charge              int           `json:"charge,omitempty"`
	Adduct              string        `json:"adduct,omitempty"`
	Links               []PeakLink    `json:"links,omitempty"`
	Matches             []MatchResult `json:"matches,omitempty"`
}

// PeakLink relates a feature to another feature of the same file
type PeakLink struct {
	PeakID int      `json:"peakId"`
	Kind   LinkKind `json:"kind"`
}

// MasterEntry is the representative coordinate of an alignment group
type MasterEntry struct {
	Coordinate
	FileID int // File the entry was seeded from
	PeakID int // Feature the entry was seeded from
}

// IsSentinel reports whether the entry is one of the ±Inf list bounds
func (m MasterEntry) IsSentinel() bool {
	return math.IsInf(m.Mz, 0)
}

// AlignedSlot is one (master entry, file) cell
type AlignedSlot struct {
	FileID int `json:"fileId"`
	PeakFeature
}

// IsDetected reports whether the slot is bound to a real detection
func (s *AlignedSlot) IsDetected() bool {
	return s.PeakID >= 0
}

// IsGapFilled reports whether the slot was recovered from raw signal,
// including the zero-height default feature.
func (s *AlignedSlot) IsGapFilled() bool {
	return s.PeakID == GapFilledPeakID || s.PeakID == DefaultPeakID
}

// NewAbsentSlot returns a placeholder slot for a file
func NewAbsentSlot(fileID int, c Coordinate) AlignedSlot {
	var s AlignedSlot
	s.FileID = fileID
	s.PeakID = AbsentPeakID
	s.IsotopeParentPeakID = AbsentPeakID
	s.Coordinate = c
	return s
}

// Stat is an average/max/min triple over detected slots
type Stat struct {
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// Range holds the minimum and maximum of a coordinate
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SpotLink relates two alignment spots
type SpotLink struct {
	SpotID int      `json:"spotId"`
	Kind   LinkKind `json:"kind"`
}

// AlignmentSpot is a cross-file group representing one chemical feature
type AlignmentSpot struct {
	ID      int        `json:"id"`
	PriorID int        `json:"priorId"`
	Center  Coordinate `json:"center"`

	MzRange    Range `json:"mzRange"`
	RTRange    Range `json:"rtRange"`
	DriftRange Range `json:"driftRange"`
	CCSRange   Range `json:"ccsRange"`

	Height         Stat `json:"height"`
	SignalToNoise  Stat `json:"signalToNoise"`
	EstimatedNoise Stat `json:"estimatedNoise"`
	PeakWidth      Stat `json:"peakWidth"`

	FillPercentage         float64 `json:"fillPercentage"`
	MonoIsotopicPercentage float64 `json:"monoIsotopicPercentage"`

	RepresentativeFileID int         `json:"representativeFileId"`
	Match                MatchResult `json:"match"`
	Adduct               string      `json:"adduct"`
	Charge               int         `json:"charge"`
	IsotopeWeight        int         `json:"isotopeWeight"`
	IsotopeParentID      int         `json:"isotopeParentId"`

	Links              []SpotLink `json:"links,omitempty"`
	GroupID            int        `json:"groupId"`
	InternalStandardID int        `json:"internalStandardId"`
	FoldChange         float64    `json:"foldChange"`
	AnovaPValue        float64    `json:"anovaPValue"`
	BlankFilterTagged  bool       `json:"blankFilterTagged,omitempty"`

	Slots []AlignedSlot `json:"slots"`
}

// NewAlignmentSpot returns a spot with all reference ids unassigned
func NewAlignmentSpot(id int, slots []AlignedSlot) *AlignmentSpot {
	return &AlignmentSpot{
		ID:                   id,
		PriorID:              id,
		RepresentativeFileID: -1,
		IsotopeParentID:      id,
		GroupID:              -1,
		InternalStandardID:   -1,
		AnovaPValue:          -1,
		Match:                NoMatch(),
		Slots:                slots,
	}
}

// DetectedCount returns the number of slots bound to a real detection
func (s *AlignmentSpot) DetectedCount() int {
	n := 0
	for i := range s.Slots {
		if s.Slots[i].IsDetected() {
			n++
		}
	}
	return n
}

// HasLink reports whether a link to spot id of the given kind exists
func (s *AlignmentSpot) HasLink(id int, kind LinkKind) bool {
	for _, l := range s.Links {
		if l.SpotID == id && l.Kind == kind {
			return true
		}
	}
	return false
}
