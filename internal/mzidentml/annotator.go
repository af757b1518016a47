package mzidentml

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/524D/mzalign/internal/spot"
)

// Annotator attaches the peptide identifications of a file's mzIdentML to
// the features of that file. Features match an identification when the
// precursor m/z is within ppm and the retention time within rtTol minutes.
type Annotator struct {
	filter ScoreFilter
	ppm    float64
	rtTol  float64 // <= 0 disables the retention time check
	log    *slog.Logger

	mu  sync.Mutex
	ids map[string]int // peptide key -> library id, shared by all files
}

// NewAnnotator returns an annotator. A nil filter accepts every
// identification.
func NewAnnotator(filter ScoreFilter, ppm, rtTol float64, log *slog.Logger) *Annotator {
	if log == nil {
		log = slog.Default()
	}
	return &Annotator{filter: filter, ppm: ppm, rtTol: rtTol, log: log, ids: make(map[string]int)}
}

type precursor struct {
	mz    float64
	rt    float64
	libID int
	name  string
}

// Annotate implements align.Annotator. Files without mzIdentML are left
// untouched. On cancellation part of the features may carry matches.
func (a *Annotator) Annotate(ctx context.Context, file spot.File, features []spot.PeakFeature) error {
	if file.MzIDPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(file.MzIDPath)
	if err != nil {
		return err
	}
	defer f.Close()
	mzID, err := Read(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", file.MzIDPath, err)
	}
	prec, err := a.precursors(ctx, &mzID)
	if err != nil {
		return fmt.Errorf("%s: %w", file.MzIDPath, err)
	}
	n, err := a.match(ctx, features, prec)
	if err != nil {
		return err
	}
	a.log.Debug("annotated features", "file", file.Name, "identifications", len(prec), "matched", n)
	return nil
}

// precursors returns the accepted identifications sorted by m/z
func (a *Annotator) precursors(ctx context.Context, m *MzIdentML) ([]precursor, error) {
	prec := make([]precursor, 0, m.NumIdents())
	for i := 0; i < m.NumIdents(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ident, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		if a.filter != nil {
			ok, err := a.filter.Accept(ident)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		mz, err := PrecursorMz(ident)
		if err != nil {
			a.log.Warn("skipping identification", "spectrum", ident.SpecID, "peptide", ident.PepSeq, "error", err)
			continue
		}
		prec = append(prec, precursor{
			mz:    mz,
			rt:    ident.RetentionTime,
			libID: a.libraryID(ident),
			name:  ident.PepSeq,
		})
	}
	sort.Slice(prec, func(i, j int) bool { return prec[i].mz < prec[j].mz })
	return prec, nil
}

// libraryID returns a stable id for peptide, modification mass and charge
func (a *Annotator) libraryID(ident Identification) int {
	key := ident.PepSeq + "/" + strconv.FormatFloat(ident.ModMass, 'f', 4, 64) + "/" + strconv.Itoa(ident.Charge)
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.ids[key]
	if !ok {
		id = len(a.ids)
		a.ids[key] = id
	}
	return id
}

// match adds the best scoring candidate per library id to every feature
// and returns the number of features that got at least one
func (a *Annotator) match(ctx context.Context, features []spot.PeakFeature, prec []precursor) (int, error) {
	matched := 0
	for i := range features {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		ft := &features[i]
		mzMin := ft.Mz * (1 - a.ppm*1e-6)
		mzMax := ft.Mz * (1 + a.ppm*1e-6)
		best := make(map[int]int) // library id -> index in ft.Matches
		k := sort.Search(len(prec), func(j int) bool { return prec[j].mz >= mzMin })
		for ; k < len(prec) && prec[k].mz <= mzMax; k++ {
			p := prec[k]
			score := gauss((p.mz-ft.Mz)/ft.Mz*1e6, a.ppm)
			if a.rtTol > 0 && p.rt >= 0 {
				d := p.rt - ft.RT
				if math.Abs(d) > a.rtTol {
					continue
				}
				score *= gauss(d, a.rtTol)
			}
			r := spot.MatchResult{Source: spot.SourceReference, LibraryID: p.libID, Name: p.name, TotalScore: score}
			if j, ok := best[p.libID]; ok {
				if score > ft.Matches[j].TotalScore {
					ft.Matches[j] = r
				}
				continue
			}
			best[p.libID] = len(ft.Matches)
			ft.Matches = append(ft.Matches, r)
		}
		if len(best) > 0 {
			matched++
		}
	}
	return matched, nil
}

func gauss(d, tol float64) float64 {
	r := d / tol
	return math.Exp(-0.5 * r * r)
}
