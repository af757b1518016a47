package refine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/match"
	"github.com/524D/mzalign/internal/spot"
)

var testTol = align.Tolerance{Mz: 0.01}

func newTestRefiner(t *testing.T, params Params, files []spot.File) *Refiner {
	t.Helper()
	if params.Tolerance.Mz == 0 {
		params.Tolerance = testTol
	}
	r, err := NewRefiner(params, match.NewScoreEvaluator(0.5, 0.8), files, nil)
	require.NoError(t, err)
	return r
}

// newSpot builds a spot with one detected slot per height, peak ids
// equal to the spot id
func newSpot(id int, mz float64, heights ...float64) *spot.AlignmentSpot {
	slots := make([]spot.AlignedSlot, len(heights))
	var sum float64
	for i, h := range heights {
		slots[i].FileID = i
		slots[i].PeakID = id
		slots[i].Mz = mz
		slots[i].Height = h
		sum += h
	}
	sp := spot.NewAlignmentSpot(id, slots)
	sp.Center = spot.Coordinate{Mz: mz}
	sp.Height.Avg = sum / float64(len(heights))
	sp.RepresentativeFileID = 0
	return sp
}

func sampleFiles(n int) []spot.File {
	files := make([]spot.File, n)
	for i := range files {
		files[i] = spot.File{ID: i, Type: spot.FileSample}
	}
	return files
}

func TestNewRefinerInvalid(t *testing.T) {
	ev := match.NewScoreEvaluator(0.5, 0.8)
	_, err := NewRefiner(Params{Tolerance: testTol}, nil, sampleFiles(1), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewRefiner(Params{Tolerance: testTol}, ev, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewRefiner(Params{}, ev, sampleFiles(1), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewRefiner(Params{Tolerance: testTol, BlankFilter: true}, ev, sampleFiles(1), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRefineSlotCount(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(2))
	_, err := r.Refine(context.Background(), []*spot.AlignmentSpot{newSpot(0, 100, 1)})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = r.Refine(context.Background(), []*spot.AlignmentSpot{nil})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeduplicate(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{newSpot(0, 100, 1), newSpot(1, 200, 1), newSpot(2, 300, 1)}
	spots[0].Match = spot.MatchResult{Source: spot.SourceLibrary, LibraryID: 7, TotalScore: 0.6}
	spots[1].Match = spot.MatchResult{Source: spot.SourceLibrary, LibraryID: 7, TotalScore: 0.9}
	spots[2].Match = spot.MatchResult{Source: spot.SourceTextDB, LibraryID: 7, TotalScore: 0.6}
	r.deduplicate(spots)
	assert.False(t, spots[0].Match.IsMatched())
	assert.Equal(t, 7, spots[1].Match.LibraryID)
	assert.True(t, spots[2].Match.IsMatched(), "other sources keep their identity")
}

func TestClean(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100.000, 50),
		newSpot(1, 100.005, 10),
		newSpot(2, 100.003, 100),
		newSpot(3, 200, 1),
	}
	spots[1].Match = spot.MatchResult{Source: spot.SourceReference, LibraryID: 1, TotalScore: 0.9}
	out := r.clean(spots)
	require.Len(t, out, 2)
	// the identified spot wins over the more intense ones, order is kept
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 3, out[1].ID)
}

func TestCleanHeightOrder(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100.000, 50),
		newSpot(1, 100.008, 80),
		newSpot(2, 100.016, 60),
	}
	out := r.clean(spots)
	// 100.008 is accepted first and removes both neighbors
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestCleanConfirmedFirst(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100.000, 1),
		newSpot(1, 100.004, 100),
	}
	// a text DB hit above the reference threshold is confirmed, a reference
	// hit below it is not
	spots[0].Match = spot.MatchResult{Source: spot.SourceTextDB, LibraryID: 1, TotalScore: 0.9}
	spots[1].Match = spot.MatchResult{Source: spot.SourceReference, LibraryID: 2, TotalScore: 0.6}
	out := r.clean(spots)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].ID)
}

func blankFiles() []spot.File {
	return []spot.File{
		{ID: 0, Name: "s1", Type: spot.FileSample, Class: "a"},
		{ID: 1, Name: "s2", Type: spot.FileSample, Class: "a"},
		{ID: 2, Name: "blank", Type: spot.FileBlank},
	}
}

func TestBlankFilter(t *testing.T) {
	params := Params{BlankFilter: true, FoldChange: 5}
	spots := func() []*spot.AlignmentSpot {
		return []*spot.AlignmentSpot{
			newSpot(0, 100, 100, 90, 500),  // blank 5x sample
			newSpot(1, 200, 1000, 900, 50), // real feature
			newSpot(2, 300, 100, 100, 0),   // no blank signal
			newSpot(3, 400, 10, 10, 100),
		}
	}

	r := newTestRefiner(t, params, blankFiles())
	out, err := r.Refine(context.Background(), spots())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].PriorID)
	assert.Equal(t, 2, out[1].PriorID)
	assert.Equal(t, []int{0, 1}, []int{out[0].ID, out[1].ID})

	// protected identity
	params.KeepIdentified = true
	r = newTestRefiner(t, params, blankFiles())
	in := spots()
	in[0].Match = spot.MatchResult{Source: spot.SourceLibrary, LibraryID: 1, TotalScore: 0.95}
	in[3].Match = spot.MatchResult{Source: spot.SourceLibrary, LibraryID: 2, TotalScore: 0.6}
	out, err = r.Refine(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 0, out[0].PriorID)

	// suggested identity
	params.KeepSuggested = true
	r = newTestRefiner(t, params, blankFiles())
	in = spots()
	in[3].Match = spot.MatchResult{Source: spot.SourceLibrary, LibraryID: 2, TotalScore: 0.6}
	out, err = r.Refine(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 3, out[2].PriorID)

	// tag instead of remove
	r = newTestRefiner(t, Params{BlankFilter: true, FoldChange: 5, KeepRemovableAndTag: true}, blankFiles())
	out, err = r.Refine(context.Background(), spots())
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.True(t, out[0].BlankFilterTagged)
	assert.False(t, out[1].BlankFilterTagged)
}

func TestStatistics(t *testing.T) {
	files := []spot.File{
		{ID: 0, Type: spot.FileSample, Class: "ctrl"},
		{ID: 1, Type: spot.FileSample, Class: "ctrl"},
		{ID: 2, Type: spot.FileSample, Class: "treated"},
		{ID: 3, Type: spot.FileSample, Class: "treated"},
		{ID: 4, Type: spot.FileQC, Class: "ctrl"},
	}
	r := newTestRefiner(t, Params{Threads: 2}, files)
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100, 10, 12, 40, 44, 1000),
		newSpot(1, 200, 10, 10, 10, 10, 0),
	}
	require.NoError(t, r.statistics(context.Background(), spots))
	assert.InDelta(t, 42.0/11, spots[0].FoldChange, 1e-9)
	assert.Less(t, spots[0].AnovaPValue, 0.01)
	assert.GreaterOrEqual(t, spots[0].AnovaPValue, 0.0)
	assert.InDelta(t, 1, spots[1].FoldChange, 1e-9)
	assert.Equal(t, 1.0, spots[1].AnovaPValue)
}

func TestStatisticsDegenerate(t *testing.T) {
	files := []spot.File{
		{ID: 0, Type: spot.FileSample, Class: "a"},
		{ID: 1, Type: spot.FileSample, Class: "b"},
	}
	r := newTestRefiner(t, Params{}, files)
	spots := []*spot.AlignmentSpot{newSpot(0, 100, 10, 20)}
	require.NoError(t, r.statistics(context.Background(), spots))
	assert.Equal(t, -1.0, spots[0].AnovaPValue, "one file per class")
	assert.InDelta(t, 2, spots[0].FoldChange, 1e-9)

	r = newTestRefiner(t, Params{}, sampleFiles(2))
	require.NoError(t, r.statistics(context.Background(), spots))
	assert.Equal(t, -1.0, spots[0].AnovaPValue, "single class")
	assert.Equal(t, 0.0, spots[0].FoldChange)
}

func TestStatisticsCancel(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Refine(ctx, []*spot.AlignmentSpot{newSpot(0, 100, 1)})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRefineCancelKeepsInput(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100, 10),
		newSpot(1, 100.004, 50),
		newSpot(2, 200, 10),
	}
	in := append([]*spot.AlignmentSpot(nil), spots...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.Refine(ctx, spots)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
	assert.Equal(t, in, spots)
	for i, sp := range spots {
		assert.Equal(t, i, sp.ID)
	}
}

func TestRefineKeepsInputOrder(t *testing.T) {
	r := newTestRefiner(t, Params{}, sampleFiles(1))
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100, 10),
		newSpot(1, 100.004, 50),
		newSpot(2, 200, 10),
	}
	in := append([]*spot.AlignmentSpot(nil), spots...)
	out, err := r.Refine(context.Background(), spots)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].PriorID)
	assert.Equal(t, 2, out[1].PriorID)
	for i := range in {
		assert.Same(t, in[i], spots[i])
	}
}

// linkedSpots returns spots 0..3 in one file: 1 is the M+1 isotope of 0,
// 2 is an adduct of 0 and 3 only correlates with 2
func linkedSpots() []*spot.AlignmentSpot {
	spots := []*spot.AlignmentSpot{
		newSpot(0, 100, 1000),
		newSpot(1, 101.003, 200),
		newSpot(2, 122, 500),
		newSpot(3, 300, 50),
		newSpot(4, 400, 10),
	}
	s := func(i int) *spot.AlignedSlot { return &spots[i].Slots[0] }
	s(0).Links = []spot.PeakLink{{PeakID: 1, Kind: spot.LinkIsotope}, {PeakID: 2, Kind: spot.LinkAdduct}}
	s(1).IsotopeWeight = 1
	s(1).IsotopeParentPeakID = 0
	s(1).Links = []spot.PeakLink{{PeakID: 0, Kind: spot.LinkIsotope}}
	s(2).Links = []spot.PeakLink{{PeakID: 0, Kind: spot.LinkAdduct}, {PeakID: 3, Kind: spot.LinkCorrelation}}
	return spots
}

func TestLinksAndGroups(t *testing.T) {
	r := newTestRefiner(t, Params{IonMode: spot.Negative}, sampleFiles(1))
	out, err := r.Refine(context.Background(), linkedSpots())
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.True(t, out[0].HasLink(1, spot.LinkIsotope))
	assert.True(t, out[1].HasLink(0, spot.LinkIsotope))
	assert.True(t, out[2].HasLink(0, spot.LinkAdduct))
	assert.True(t, out[3].HasLink(2, spot.LinkCorrelation))
	assert.Len(t, out[0].Links, 2, "links are registered once")

	assert.Equal(t, 1, out[1].IsotopeWeight)
	assert.Equal(t, 0, out[1].IsotopeParentID)
	assert.Equal(t, 0, out[0].IsotopeWeight)

	for _, sp := range out {
		assert.GreaterOrEqual(t, sp.GroupID, 0)
		assert.Equal(t, "[M-H]-", sp.Adduct)
	}
	assert.Equal(t, out[0].GroupID, out[1].GroupID)
	assert.Equal(t, out[0].GroupID, out[2].GroupID)
	assert.NotEqual(t, out[2].GroupID, out[3].GroupID, "weak links do not group")
	assert.NotEqual(t, out[3].GroupID, out[4].GroupID)
}

func TestRefineIdempotent(t *testing.T) {
	files := blankFiles()
	r := newTestRefiner(t, Params{BlankFilter: true, FoldChange: 5, KeepRemovableAndTag: true}, files)
	in := []*spot.AlignmentSpot{
		newSpot(0, 100, 1000, 900, 10),
		newSpot(1, 100.004, 10, 10, 10),
		newSpot(2, 101.003, 300, 250, 0),
		newSpot(3, 250, 100, 90, 500),
	}
	in[0].Slots[0].Links = []spot.PeakLink{{PeakID: 2, Kind: spot.LinkIsotope}}
	first, err := r.Refine(context.Background(), in)
	require.NoError(t, err)

	type snap struct{ id, group int }
	var before []snap
	for _, sp := range first {
		before = append(before, snap{sp.ID, sp.GroupID})
	}
	second, err := r.Refine(context.Background(), first)
	require.NoError(t, err)
	var after []snap
	for _, sp := range second {
		after = append(after, snap{sp.ID, sp.GroupID})
	}
	assert.Equal(t, before, after)
	assert.Len(t, second, 3)
}
