// Package mzidentml reads peptide identifications from mzIdentML files and
// attaches them to detected features as reference matches.
package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&mzIdentML.content); err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildPepID2Sequence()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

func (m *MzIdentML) buildPepID2Sequence() {
	m.seqID2PepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.seqID2PepIdx[p.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			var iRef identRef
			iRef.specIDIdx = i
			iRef.specResultIdx = j
			m.identList = append(m.identList, iRef)
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	specIDIdx := m.identList[i].specIDIdx
	specResultIdx := m.identList[i].specResultIdx

	result := &m.content.SpectrumIdentificationResult[specIDIdx]
	item := &result.SpectrumIdentificationItem[specResultIdx]
	pepIdx, ok := m.seqID2PepIdx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w: unknown peptide %q", ErrInvalidIdentIndex, item.PeptideRef)
	}
	ident.PepSeq = m.content.Peptide[pepIdx].PeptideSequence
	ident.PepID = m.content.Peptide[pepIdx].ID
	ident.Charge = item.ChargeState
	for _, mod := range m.content.Peptide[pepIdx].Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}
	ident.ExperimentalMz = item.ExperimentalMassToCharge
	ident.CalculatedMz = item.CalculatedMassToCharge
	ident.SpecID = result.SpectrumID
	rt, err := retentionTime(result.CvPar)
	if err != nil {
		return ident, fmt.Errorf("spectrum %s: %w", result.SpectrumID, err)
	}
	ident.RetentionTime = rt
	// Collect CV terms/values for the identification, the scores are in there
	ident.Cv = append(ident.Cv, item.CvPar...)

	return ident, nil
}

// CV terms that report the retention time, lowest value is preferred
var rtTermPriority = map[string]int{
	"MS:1000016": 1, // scan start time
	"MS:1000894": 2, // retention time
	"MS:1000826": 3, // elution time
	"MS:1001114": 4, // retention time (deprecated)
}

// retentionTime returns the retention time in minutes from the preferred
// CV term, or -1 if there is none. Values without a minute unit are taken
// as seconds.
func retentionTime(cvs []CVParam) (float64, error) {
	rt := -1.0
	prio := math.MaxInt32
	for _, cv := range cvs {
		p, ok := rtTermPriority[cv.Accession]
		if !ok || p >= prio {
			continue
		}
		v, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return -1, err
		}
		if cv.UnitAccession != "UO:0000031" && cv.UnitAccession != "MS:1000038" {
			v /= 60
		}
		rt, prio = v, p
	}
	return rt, nil
}
