package spot

import (
	"encoding/json"
	"math"
	"testing"
)

func TestSlotState(t *testing.T) {
	s := NewAbsentSlot(3, Coordinate{Mz: 100})
	if s.IsDetected() || s.IsGapFilled() {
		t.Errorf("absent slot: detected=%v gapfilled=%v", s.IsDetected(), s.IsGapFilled())
	}
	s.PeakID = GapFilledPeakID
	if s.IsDetected() || !s.IsGapFilled() {
		t.Errorf("gap filled slot: detected=%v gapfilled=%v", s.IsDetected(), s.IsGapFilled())
	}
	s.PeakID = DefaultPeakID
	if !s.IsGapFilled() {
		t.Errorf("default slot should count as gap filled")
	}
	s.PeakID = 0
	if !s.IsDetected() {
		t.Errorf("peak 0 should be detected")
	}
}

func TestNewAlignmentSpot(t *testing.T) {
	sp := NewAlignmentSpot(7, nil)
	if sp.GroupID != -1 || sp.InternalStandardID != -1 || sp.IsotopeParentID != 7 {
		t.Errorf("unexpected initial ids %+v", sp)
	}
	if sp.Match.IsMatched() {
		t.Errorf("new spot should be unidentified")
	}
}

func TestSentinel(t *testing.T) {
	if !(MasterEntry{Coordinate: Coordinate{Mz: math.Inf(-1)}}).IsSentinel() {
		t.Errorf("-Inf entry is a sentinel")
	}
	if (MasterEntry{Coordinate: Coordinate{Mz: 1}}).IsSentinel() {
		t.Errorf("finite entry is not a sentinel")
	}
}

func TestEnumText(t *testing.T) {
	f := PeakFeature{
		PeakID: 1,
		Links:  []PeakLink{{PeakID: 2, Kind: LinkFoundInUpperMsMs}},
		Matches: []MatchResult{
			{Source: SourceTextDB, LibraryID: 4, TotalScore: 0.5},
		},
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var g PeakFeature
	if err := json.Unmarshal(b, &g); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if g.Links[0].Kind != LinkFoundInUpperMsMs || g.Matches[0].Source != SourceTextDB {
		t.Errorf("enum round trip failed: %s", b)
	}
	if !LinkCorrelation.IsWeak() || LinkAdduct.IsWeak() {
		t.Errorf("weak link classification wrong")
	}
	var ft FileType
	if err := ft.UnmarshalText([]byte("Blank")); err != nil || ft != FileBlank {
		t.Errorf("FileType parse: %v %v", ft, err)
	}
}

func TestDefaultAdduct(t *testing.T) {
	tests := []struct {
		mode   IonMode
		charge int
		want   string
	}{
		{Positive, 0, "[M+H]+"},
		{Positive, 1, "[M+H]+"},
		{Positive, 2, "[M+2H]2+"},
		{Negative, 1, "[M-H]-"},
		{Negative, -3, "[M-3H]3-"},
	}
	for _, test := range tests {
		if got := DefaultAdduct(test.mode, test.charge); got != test.want {
			t.Errorf("DefaultAdduct(%v, %d) = %q, want %q", test.mode, test.charge, got, test.want)
		}
	}
	var m IonMode
	if err := m.UnmarshalText([]byte("NEG")); err != nil || m != Negative {
		t.Errorf("IonMode parse: %v %v", m, err)
	}
}
