// Package mzml reads mzML files and extracts chromatograms from their MS1
// spectra for gap filling.
package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// Decode the mzML element only, an indexedmzML wrapper is skipped
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		switch t := t.(type) {
		case xml.StartElement:
			if t.Name.Local == "mzML" {
				if err := d.DecodeElement(&mzML.content, &t); err != nil {
					return mzML, err
				}
			}
		}
	}

	err := mzML.buildIndex()
	return mzML, err
}

type arrayKind int

const (
	otherArray arrayKind = iota
	mzArray
	intensityArray
)

// arrayEncoding describes how the values of a binaryDataArray are stored
type arrayEncoding struct {
	kind   arrayKind
	zlib   bool
	bits64 bool
}

// numpress lists the MS-Numpress compression terms, with and without zlib
var numpress = map[string]bool{
	"MS:1002312": true,
	"MS:1002313": true,
	"MS:1002314": true,
	"MS:1002746": true,
	"MS:1002747": true,
	"MS:1002748": true,
}

func encodingOf(a *binaryDataArray) (arrayEncoding, error) {
	var enc arrayEncoding
	for _, cv := range a.CvPar {
		switch {
		case cv.Accession == "MS:1000514":
			enc.kind = mzArray
		case cv.Accession == "MS:1000515":
			enc.kind = intensityArray
		case cv.Accession == "MS:1000574":
			enc.zlib = true
		case cv.Accession == "MS:1000523":
			enc.bits64 = true
		case numpress[cv.Accession]:
			return enc, fmt.Errorf("%w (CV term %s)", ErrUnsupportedCompression, cv.Accession)
		}
	}
	return enc, nil
}

// decodeArray returns the raw little endian bytes of a, inflated if needed
func decodeArray(a *binaryDataArray, enc arrayEncoding) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Binary)
	if err != nil || !enc.zlib {
		return data, err
	}
	z, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer z.Close()
	return io.ReadAll(z)
}

// fillPeaks stores the m/z or intensity values of a into p. Other arrays
// are ignored.
func fillPeaks(p []Peak, a *binaryDataArray) error {
	enc, err := encodingOf(a)
	if err != nil || enc.kind == otherArray {
		return err
	}
	data, err := decodeArray(a, enc)
	if err != nil {
		return err
	}
	width := 4
	if enc.bits64 {
		width = 8
	}
	n := min(len(data)/width, len(p))
	for i := 0; i < n; i++ {
		var v float64
		if enc.bits64 {
			v = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		} else {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		if enc.kind == mzArray {
			p[i].Mz = v
		} else {
			p[i].Intens = v
		}
	}
	return nil
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// specCV returns the first CV term with the given accession in the
// spectrum, or in its scans when inScans is set
func (f *MzML) specCV(scanIndex int, accession string, inScans bool) (CVParam, bool, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return CVParam{}, false, ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	lists := [][]CVParam{spec.CvPar}
	if inScans {
		lists = lists[:0]
		for _, scan := range spec.ScanList.Scan {
			lists = append(lists, scan.CvPar)
		}
	}
	for _, cvs := range lists {
		for _, cv := range cvs {
			if cv.Accession == accession {
				return cv, true, nil
			}
		}
	}
	return CVParam{}, false, nil
}

// RetentionTime returns the scan start time of a spectrum in minutes, or
// -1 if the spectrum has none
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	cv, ok, err := f.specCV(scanIndex, "MS:1000016", true)
	if err != nil || !ok {
		return -1, err
	}
	rt, err := strconv.ParseFloat(cv.Value, 64)
	if cv.UnitAccession == "UO:0000010" { // seconds
		rt /= 60
	}
	return rt, err
}

// ReadScan returns the peaks of the spectrum at position scanIndex in the
// file. Use ScanIndex to look up a spectrum by its id.
func (f *MzML) ReadScan(scanIndex int) ([]Peak, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	p := make([]Peak, spec.DefaultArrayLength)
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		if err := fillPeaks(p, &spec.BinaryDataArrayList.BinaryDataArray[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Centroid reports whether the spectrum holds centroided peaks
func (f *MzML) Centroid(scanIndex int) (bool, error) {
	_, ok, err := f.specCV(scanIndex, "MS:1000127", false)
	return ok, err
}

// MSLevel returns the MS level of a spectrum. A spectrum without level is
// taken as MS1.
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	cv, ok, err := f.specCV(scanIndex, "MS:1000511", false)
	if err != nil || !ok {
		return 1, err
	}
	level, err := strconv.Atoi(cv.Value)
	return level, err
}

// buildIndex maps spectrum positions to ids and back. Spectra must be
// stored in index order.
func (f *MzML) buildIndex() error {
	specs := f.content.Run.SpectrumList.Spectrum
	f.index2id = make([]string, len(specs))
	f.id2Index = make(map[string]int, len(specs))
	for i, spec := range specs {
		if spec.Index != i {
			return ErrInvalidScanIndex
		}
		f.index2id[i] = spec.ID
		f.id2Index[spec.ID] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}
