package mzml

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/spot"
)

type rtSpec struct {
	rt   float64
	spec int
}

type rtSpecs []rtSpec

func (a rtSpecs) Len() int           { return len(a) }
func (a rtSpecs) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a rtSpecs) Less(i, j int) bool { return a[i].rt < a[j].rt }

// decodedPeaks holds the peaks of one MS1 spectrum once decoded
type decodedPeaks struct {
	once  sync.Once
	peaks []Peak
	err   error
}

// Signal extracts chromatograms from the MS1 spectra of one mzML file.
// Spectra are decoded on first use and kept. It is safe for concurrent use.
type Signal struct {
	mzML  MzML
	ppm   float64
	ms1   rtSpecs
	cache []decodedPeaks // parallel to ms1
}

// NewSignal indexes the MS1 spectra of f by retention time. ppm is the
// m/z window used when extracting chromatograms.
func NewSignal(f MzML, ppm float64) (*Signal, error) {
	numSpecs := f.NumSpecs()
	ms1 := make(rtSpecs, 0, numSpecs)
	for i := 0; i < numSpecs; i++ {
		level, err := f.MSLevel(i)
		if err != nil {
			return nil, err
		}
		if level != 1 {
			continue
		}
		rt, err := f.RetentionTime(i)
		if err != nil {
			return nil, err
		}
		ms1 = append(ms1, rtSpec{rt: rt, spec: i})
	}
	if len(ms1) == 0 {
		return nil, ErrNoMS1
	}
	sort.Sort(ms1)
	return &Signal{mzML: f, ppm: ppm, ms1: ms1, cache: make([]decodedPeaks, len(ms1))}, nil
}

// Chromatogram returns, for every MS1 spectrum with retention time in
// [rtMin, rtMax], the most intense peak within the ppm window around mz.
// Spectra without a peak in the window give a zero intensity sample.
func (s *Signal) Chromatogram(ctx context.Context, mz, rtMin, rtMax float64) ([]align.Sample, error) {
	mzMin := mz * (1 - s.ppm*1e-6)
	mzMax := mz * (1 + s.ppm*1e-6)
	i1 := sort.Search(len(s.ms1), func(i int) bool { return s.ms1[i].rt >= rtMin })
	i2 := sort.Search(len(s.ms1), func(i int) bool { return s.ms1[i].rt > rtMax })
	samples := make([]align.Sample, 0, i2-i1)
	for i := i1; i < i2; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		peaks, err := s.peaks(i)
		if err != nil {
			return nil, err
		}
		p := maxPeakInMzWindow(mzMin, mzMax, peaks)
		smp := align.Sample{Time: s.ms1[i].rt, Mz: p.Mz, Intensity: p.Intens}
		if p.Intens == 0 {
			smp.Mz = mz
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

// peaks returns the decoded peaks of the i-th MS1 spectrum
func (s *Signal) peaks(i int) ([]Peak, error) {
	c := &s.cache[i]
	c.once.Do(func() {
		c.peaks, c.err = s.mzML.ReadScan(s.ms1[i].spec)
	})
	return c.peaks, c.err
}

// maxPeakInMzWindow returns the most intense peak of the m/z sorted peaks
// within [mzMin, mzMax]
func maxPeakInMzWindow(mzMin, mzMax float64, peaks []Peak) Peak {
	i1 := sort.Search(len(peaks), func(i int) bool { return peaks[i].Mz >= mzMin })
	i2 := sort.Search(len(peaks), func(i int) bool { return peaks[i].Mz > mzMax })

	var peak Peak
	for i := i1; i < i2; i++ {
		if peaks[i].Intens > peak.Intens {
			peak = peaks[i]
		}
	}
	return peak
}

type openSignal struct {
	once sync.Once
	sig  *Signal
	err  error
}

// SignalSet gives the gap filler access to the mzML files of an
// experiment. Files are read on first use and kept in memory.
type SignalSet struct {
	ppm   float64
	paths map[int]string

	mu   sync.Mutex
	open map[int]*openSignal
}

// NewSignalSet returns a raw signal provider for the files that have an
// mzML path
func NewSignalSet(files []spot.File, ppm float64) *SignalSet {
	paths := make(map[int]string)
	for _, f := range files {
		if f.MzMLPath != "" {
			paths[f.ID] = f.MzMLPath
		}
	}
	return &SignalSet{ppm: ppm, paths: paths, open: make(map[int]*openSignal)}
}

// Len returns the number of files with raw signal
func (s *SignalSet) Len() int {
	return len(s.paths)
}

// LoadWindow implements align.RawSignal. A file without mzML gives an
// empty window.
func (s *SignalSet) LoadWindow(ctx context.Context, fileID int, center spot.Coordinate, halfWidth float64) ([]align.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.signal(fileID)
	if err != nil || sig == nil {
		return nil, err
	}
	return sig.Chromatogram(ctx, center.Mz, center.RT-halfWidth, center.RT+halfWidth)
}

// Release drops the cached data of a file
func (s *SignalSet) Release(fileID int) {
	s.mu.Lock()
	delete(s.open, fileID)
	s.mu.Unlock()
}

func (s *SignalSet) signal(fileID int) (*Signal, error) {
	path, ok := s.paths[fileID]
	if !ok {
		return nil, nil
	}
	s.mu.Lock()
	o, ok := s.open[fileID]
	if !ok {
		o = &openSignal{}
		s.open[fileID] = o
	}
	s.mu.Unlock()

	o.once.Do(func() {
		o.sig, o.err = readSignal(path, s.ppm)
	})
	return o.sig, o.err
}

func readSignal(path string, ppm float64) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sig, err := NewSignal(m, ppm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sig, nil
}
