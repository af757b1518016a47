// Package store exports alignment results to SQLite databases
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/524D/mzalign/internal/featio"
	"github.com/524D/mzalign/internal/spot"
)

// Date format for RunTable (ISO 8601)
const createdFormat = time.RFC3339

const schema = `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId TEXT PRIMARY KEY,
		Created TEXT,
		Version TEXT,
		FileCount INTEGER,
		SpotCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS FileTable (
		RunId TEXT REFERENCES RunTable(RunId),
		FileId INTEGER,
		Name TEXT,
		Type TEXT,
		Class TEXT,
		PRIMARY KEY (RunId, FileId)
	);

	CREATE TABLE IF NOT EXISTS SpotTable (
		RunId TEXT REFERENCES RunTable(RunId),
		SpotId INTEGER,
		PriorId INTEGER,
		Mz DOUBLE,
		RetentionTime DOUBLE,
		Drift DOUBLE,
		CCS DOUBLE,
		HeightAvg DOUBLE,
		HeightMax DOUBLE,
		HeightMin DOUBLE,
		FillPercentage DOUBLE,
		MonoIsotopicPercentage DOUBLE,
		RepresentativeFileId INTEGER,
		MatchSource TEXT,
		LibraryId INTEGER,
		MatchName TEXT,
		MatchScore DOUBLE,
		Adduct TEXT,
		Charge INTEGER,
		IsotopeWeight INTEGER,
		IsotopeParentId INTEGER,
		GroupId INTEGER,
		InternalStandardId INTEGER,
		FoldChange DOUBLE,
		AnovaPValue DOUBLE,
		BlankFilterTagged BOOL,
		PRIMARY KEY (RunId, SpotId)
	);

	CREATE TABLE IF NOT EXISTS SlotTable (
		RunId TEXT,
		SpotId INTEGER,
		FileId INTEGER,
		PeakId INTEGER,
		Mz DOUBLE,
		RetentionTime DOUBLE,
		Height DOUBLE,
		AreaAboveZero DOUBLE,
		AreaAboveBaseline DOUBLE,
		PeakWidth DOUBLE,
		SignalToNoise DOUBLE,
		PRIMARY KEY (RunId, SpotId, FileId),
		FOREIGN KEY (RunId, SpotId) REFERENCES SpotTable(RunId, SpotId)
	);

	CREATE TABLE IF NOT EXISTS LinkTable (
		RunId TEXT,
		SpotId INTEGER,
		LinkedSpotId INTEGER,
		Kind TEXT
	);
	`

// Writer writes alignment runs to a SQLite database file. Several runs
// can be stored in the same file.
type Writer struct {
	db         *sql.DB
	outputPath string
}

// NewWriter opens or creates the database and its tables
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Writer{db: db, outputPath: outputPath}, nil
}

// WriteResult stores a complete run in one transaction and returns its
// run id. A result without run id gets a new random one.
func (w *Writer) WriteResult(r featio.Result) (string, error) {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	tx, err := w.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := writeRun(tx, r); err != nil {
		tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return r.RunID, nil
}

func writeRun(tx *sql.Tx, r featio.Result) error {
	_, err := tx.Exec(`
		INSERT INTO RunTable (RunId, Created, Version, FileCount, SpotCount)
		VALUES (?, ?, ?, ?, ?)
	`, r.RunID, r.Created.UTC().Format(createdFormat), r.Version, len(r.Files), len(r.Spots))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	fileStmt, err := tx.Prepare(`
		INSERT INTO FileTable (RunId, FileId, Name, Type, Class)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare file statement: %w", err)
	}
	defer fileStmt.Close()
	for _, f := range r.Files {
		if _, err := fileStmt.Exec(r.RunID, f.ID, f.Name, f.Type.String(), f.Class); err != nil {
			return fmt.Errorf("failed to insert file %d: %w", f.ID, err)
		}
	}

	spotStmt, err := tx.Prepare(`
		INSERT INTO SpotTable (
			RunId, SpotId, PriorId, Mz, RetentionTime, Drift, CCS,
			HeightAvg, HeightMax, HeightMin, FillPercentage, MonoIsotopicPercentage,
			RepresentativeFileId, MatchSource, LibraryId, MatchName, MatchScore,
			Adduct, Charge, IsotopeWeight, IsotopeParentId, GroupId,
			InternalStandardId, FoldChange, AnovaPValue, BlankFilterTagged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare spot statement: %w", err)
	}
	defer spotStmt.Close()
	slotStmt, err := tx.Prepare(`
		INSERT INTO SlotTable (
			RunId, SpotId, FileId, PeakId, Mz, RetentionTime, Height,
			AreaAboveZero, AreaAboveBaseline, PeakWidth, SignalToNoise
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot statement: %w", err)
	}
	defer slotStmt.Close()
	linkStmt, err := tx.Prepare(`
		INSERT INTO LinkTable (RunId, SpotId, LinkedSpotId, Kind) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link statement: %w", err)
	}
	defer linkStmt.Close()

	for _, s := range r.Spots {
		if err := writeSpot(spotStmt, r.RunID, s); err != nil {
			return err
		}
		for i := range s.Slots {
			sl := &s.Slots[i]
			_, err := slotStmt.Exec(r.RunID, s.ID, sl.FileID, sl.PeakID, sl.Mz, sl.RT,
				sl.Height, sl.AreaAboveZero, sl.AreaAboveBaseline, sl.PeakWidth, sl.SignalToNoise)
			if err != nil {
				return fmt.Errorf("failed to insert slot %d/%d: %w", s.ID, sl.FileID, err)
			}
		}
		for _, l := range s.Links {
			if _, err := linkStmt.Exec(r.RunID, s.ID, l.SpotID, l.Kind.String()); err != nil {
				return fmt.Errorf("failed to insert link %d-%d: %w", s.ID, l.SpotID, err)
			}
		}
	}
	return nil
}

func writeSpot(stmt *sql.Stmt, runID string, s *spot.AlignmentSpot) error {
	// Unmatched spots have no library entry
	var libID, name interface{}
	if s.Match.IsMatched() {
		libID = s.Match.LibraryID
		name = s.Match.Name
	}
	_, err := stmt.Exec(
		runID,
		s.ID,
		s.PriorID,
		s.Center.Mz,
		s.Center.RT,
		s.Center.Drift,
		s.Center.CCS,
		s.Height.Avg,
		s.Height.Max,
		s.Height.Min,
		s.FillPercentage,
		s.MonoIsotopicPercentage,
		s.RepresentativeFileID,
		s.Match.Source.String(),
		libID,
		name,
		s.Match.TotalScore,
		s.Adduct,
		s.Charge,
		s.IsotopeWeight,
		s.IsotopeParentID,
		s.GroupID,
		s.InternalStandardID,
		s.FoldChange,
		s.AnovaPValue,
		s.BlankFilterTagged,
	)
	if err != nil {
		return fmt.Errorf("failed to insert spot %d: %w", s.ID, err)
	}
	return nil
}

// Close closes the database connection
func (w *Writer) Close() error {
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
