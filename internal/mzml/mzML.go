package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the contents of the mzML file
type MzML struct {
	content  mzMLContent
	index2id []string
	id2Index map[string]int
}

// Peak contains the actual ms peak info
type Peak struct {
	Mz     float64
	Intens float64
}

// The mzML content that we read. Only the parts needed to extract
// chromatograms from the spectra are parsed.
type mzMLContent struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Run     run      `xml:"run"`
}

type run struct {
	ID           string       `xml:"id,attr,omitempty"`
	SpectrumList spectrumList `xml:"spectrumList,omitempty"`
}

type spectrumList struct {
	Count    int        `xml:"count,attr,omitempty"`
	Spectrum []spectrum `xml:"spectrum,omitempty"`
}

type spectrum struct {
	Index               int                 `xml:"index,attr"`
	ID                  string              `xml:"id,attr"`
	DefaultArrayLength  int64               `xml:"defaultArrayLength,attr"`
	CvPar               []CVParam           `xml:"cvParam,omitempty"`
	ScanList            scanList            `xml:"scanList"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam,omitempty"`
	Binary        string    `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnsupportedCompression means the binary data uses a compression
	// that cannot be decoded
	ErrUnsupportedCompression = errors.New("MzML: unsupported binary compression")
	// ErrNoMS1 means the file has no MS1 spectra to extract signal from
	ErrNoMS1 = errors.New("MzML: no MS1 spectra")
)
