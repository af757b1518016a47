package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzalign/internal/featio"
	"github.com/524D/mzalign/internal/spot"
)

func testResult() featio.Result {
	files := []spot.File{
		{ID: 0, Name: "a", Type: spot.FileSample, Class: "x"},
		{ID: 1, Name: "b", Type: spot.FileBlank},
	}
	s0 := spot.NewAlignmentSpot(0, []spot.AlignedSlot{
		{FileID: 0, PeakFeature: spot.PeakFeature{PeakID: 3, Coordinate: spot.Coordinate{Mz: 100, RT: 1}, Height: 10}},
		spot.NewAbsentSlot(1, spot.Coordinate{Mz: 100, RT: 1}),
	})
	s0.Center = spot.Coordinate{Mz: 100, RT: 1}
	s0.GroupID = 0
	s0.Match = spot.MatchResult{Source: spot.SourceReference, LibraryID: 2, Name: "GA", TotalScore: 0.95}
	s0.Links = []spot.SpotLink{{SpotID: 1, Kind: spot.LinkAdduct}}
	s1 := spot.NewAlignmentSpot(1, []spot.AlignedSlot{
		{FileID: 0, PeakFeature: spot.PeakFeature{PeakID: 4, Coordinate: spot.Coordinate{Mz: 101, RT: 1}, Height: 5}},
		{FileID: 1, PeakFeature: spot.PeakFeature{PeakID: 0, Coordinate: spot.Coordinate{Mz: 101, RT: 1}, Height: 4}},
	})
	s1.GroupID = 0
	s1.Links = []spot.SpotLink{{SpotID: 0, Kind: spot.LinkAdduct}}
	return featio.Result{
		Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Files:   files,
		Spots:   []*spot.AlignmentSpot{s0, s1},
	}
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.db")
	w, err := NewWriter(path)
	require.NoError(t, err)

	runID, err := w.WriteResult(testResult())
	require.NoError(t, err)
	_, err = uuid.Parse(runID)
	assert.NoError(t, err, "run id should be a uuid")

	// A second run goes into the same file
	r := testResult()
	r.RunID = "fixed"
	runID2, err := w.WriteResult(r)
	require.NoError(t, err)
	assert.Equal(t, "fixed", runID2)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var runs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM RunTable`).Scan(&runs))
	assert.Equal(t, 2, runs)

	var created string
	var spots, files int
	require.NoError(t, db.QueryRow(`SELECT Created, FileCount, SpotCount FROM RunTable WHERE RunId = ?`, runID).
		Scan(&created, &files, &spots))
	assert.Equal(t, "2024-05-01T12:00:00Z", created)
	assert.Equal(t, 2, files)
	assert.Equal(t, 2, spots)

	var source string
	var libID sql.NullInt64
	var name sql.NullString
	var pValue float64
	require.NoError(t, db.QueryRow(`
		SELECT MatchSource, LibraryId, MatchName, AnovaPValue FROM SpotTable
		WHERE RunId = ? AND SpotId = 0`, runID).Scan(&source, &libID, &name, &pValue))
	assert.Equal(t, "reference", source)
	assert.Equal(t, sql.NullInt64{Int64: 2, Valid: true}, libID)
	assert.Equal(t, "GA", name.String)
	assert.Equal(t, -1.0, pValue)

	require.NoError(t, db.QueryRow(`
		SELECT MatchSource, LibraryId FROM SpotTable
		WHERE RunId = ? AND SpotId = 1`, runID).Scan(&source, &libID))
	assert.Equal(t, "none", source)
	assert.False(t, libID.Valid)

	var peakID int
	require.NoError(t, db.QueryRow(`
		SELECT PeakId FROM SlotTable WHERE RunId = ? AND SpotId = 0 AND FileId = 1`, runID).Scan(&peakID))
	assert.Equal(t, spot.AbsentPeakID, peakID)

	var links int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM LinkTable WHERE RunId = ? AND Kind = 'adduct'`, runID).Scan(&links))
	assert.Equal(t, 2, links)

	var fileType string
	require.NoError(t, db.QueryRow(`SELECT Type FROM FileTable WHERE RunId = ? AND FileId = 1`, runID).Scan(&fileType))
	assert.Equal(t, "blank", fileType)
}

func TestWriteResultDuplicateRun(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "result.db"))
	require.NoError(t, err)
	defer w.Close()

	r := testResult()
	r.RunID = "run-1"
	_, err = w.WriteResult(r)
	require.NoError(t, err)
	_, err = w.WriteResult(r)
	require.Error(t, err, "run ids are unique")
}
