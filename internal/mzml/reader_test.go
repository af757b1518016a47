package mzml

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/524D/mzalign/internal/align"
	"github.com/524D/mzalign/internal/spot"
)

func encode64(vals []float64, compress bool) string {
	var b bytes.Buffer
	for _, v := range vals {
		binary.Write(&b, binary.LittleEndian, math.Float64bits(v))
	}
	data := b.Bytes()
	if compress {
		var z bytes.Buffer
		w := zlib.NewWriter(&z)
		w.Write(data)
		w.Close()
		data = z.Bytes()
	}
	return base64.StdEncoding.EncodeToString(data)
}

func encode32(vals []float32) string {
	var b bytes.Buffer
	for _, v := range vals {
		binary.Write(&b, binary.LittleEndian, math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(b.Bytes())
}

func spectrumXML(index, msLevel int, rt, rtUnit, extraCv, mzArray, intArray string, n int) string {
	return fmt.Sprintf(`
      <spectrum index="%d" id="scan=%d" defaultArrayLength="%d">
        <cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="%d"/>
        %s
        <scanList count="1">
          <scan>
            <cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="%s" unitCvRef="UO" unitAccession="%s"/>
          </scan>
        </scanList>
        <binaryDataArrayList count="2">
          %s
          %s
        </binaryDataArrayList>
      </spectrum>`, index, index+1, n, msLevel, extraCv, rt, rtUnit, mzArray, intArray)
}

func array(kind, bits, compression, data string) string {
	return fmt.Sprintf(`<binaryDataArray>
            <cvParam cvRef="MS" accession="%s"/>
            <cvParam cvRef="MS" accession="%s"/>
            <cvParam cvRef="MS" accession="%s"/>
            <binary>%s</binary>
          </binaryDataArray>`, bits, compression, kind, data)
}

const (
	cvMzArray  = "MS:1000514"
	cvIntArray = "MS:1000515"
	cv64       = "MS:1000523"
	cv32       = "MS:1000521"
	cvZlib     = "MS:1000574"
	cvNoComp   = "MS:1000576"
	uoMinute   = "UO:0000031"
	uoSecond   = "UO:0000010"
)

func testMzML() string {
	specs := []string{
		spectrumXML(0, 1, "1.0", uoMinute, "",
			array(cvMzArray, cv64, cvZlib, encode64([]float64{199.999, 200.0, 300}, true)),
			array(cvIntArray, cv64, cvZlib, encode64([]float64{5, 100, 7}, true)), 3),
		spectrumXML(1, 2, "1.05", uoMinute, "",
			array(cvMzArray, cv64, cvNoComp, encode64([]float64{200.0}, false)),
			array(cvIntArray, cv64, cvNoComp, encode64([]float64{1000}, false)), 1),
		spectrumXML(2, 1, "66", uoSecond, "",
			array(cvMzArray, cv32, cvNoComp, encode32([]float32{200.001})),
			array(cvIntArray, cv32, cvNoComp, encode32([]float32{150})), 1),
		spectrumXML(3, 1, "1.2", uoMinute, `<cvParam cvRef="MS" accession="MS:1000127" name="centroid spectrum"/>`,
			array(cvMzArray, cv64, cvNoComp, encode64([]float64{250}, false)),
			array(cvIntArray, cv64, cvNoComp, encode64([]float64{10}, false)), 1),
	}
	return `<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
  <mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
    <run id="test">
      <spectrumList count="4">` + strings.Join(specs, "") + `
      </spectrumList>
    </run>
  </mzML>
</indexedmzML>
`
}

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testMzML()))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if n := f.NumSpecs(); n != 4 {
		t.Errorf("NumSpecs: %d, should be 4", n)
	}
	p, err := f.ReadScan(0)
	if err != nil {
		t.Fatalf("ReadScan: error return %v", err)
	}
	want := []Peak{{199.999, 5}, {200.0, 100}, {300, 7}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("ReadScan mismatch (-want +got):\n%s", diff)
	}
	p, err = f.ReadScan(2)
	if err != nil {
		t.Fatalf("ReadScan: error return %v", err)
	}
	if math.Abs(p[0].Mz-200.001) > 1e-4 || p[0].Intens != 150 {
		t.Errorf("ReadScan 32 bit: %+v", p)
	}
	if _, err := f.ReadScan(4); err != ErrInvalidScanIndex {
		t.Errorf("ReadScan: error return %v, should be ErrInvalidScanIndex", err)
	}

	rt, err := f.RetentionTime(2)
	if err != nil || math.Abs(rt-1.1) > 1e-9 {
		t.Errorf("RetentionTime: %f (%v), should be 1.1", rt, err)
	}
	msLevel, err := f.MSLevel(1)
	if err != nil || msLevel != 2 {
		t.Errorf("MSLevel: %d (%v), should be 2", msLevel, err)
	}
	centroid, err := f.Centroid(3)
	if err != nil || !centroid {
		t.Errorf("Centroid: %v (%v), should be true", centroid, err)
	}
	if _, err := f.Centroid(-1); err != ErrInvalidScanIndex {
		t.Errorf("Centroid: error return %v, should be ErrInvalidScanIndex", err)
	}

	scanIndex, err := f.ScanIndex(`scan=3`)
	if err != nil || scanIndex != 2 {
		t.Errorf("ScanIndex: %d (%v), should be 2", scanIndex, err)
	}
	if _, err := f.ScanIndex(`blabla`); err != ErrInvalidScanID {
		t.Errorf("ScanIndex: error return %v, should be ErrInvalidScanID", err)
	}
	scanID, err := f.ScanID(0)
	if err != nil || scanID != `scan=1` {
		t.Errorf("ScanID: %s (%v), should be scan=1", scanID, err)
	}
}

func TestReadNumpress(t *testing.T) {
	doc := strings.Replace(testMzML(), cvZlib, "MS:1002312", 1)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if _, err := f.ReadScan(0); !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("ReadScan: error return %v, should be ErrUnsupportedCompression", err)
	}
}

func TestChromatogram(t *testing.T) {
	f, err := Read(strings.NewReader(testMzML()))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := NewSignal(f, 10)
	if err != nil {
		t.Fatal(err)
	}
	got, err := sig.Chromatogram(context.Background(), 200, 0.9, 1.25)
	if err != nil {
		t.Fatal(err)
	}
	want := []align.Sample{
		{Time: 1.0, Mz: 200, Intensity: 100},
		{Time: 1.1, Mz: 200.001, Intensity: 150},
		{Time: 1.2, Mz: 200, Intensity: 0},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-4)); diff != "" {
		t.Errorf("Chromatogram mismatch (-want +got):\n%s", diff)
	}
}

func TestChromatogramDecodesOnce(t *testing.T) {
	f, err := Read(strings.NewReader(testMzML()))
	if err != nil {
		t.Fatal(err)
	}
	sig, err := NewSignal(f, 10)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	first, err := sig.Chromatogram(ctx, 200, 0.9, 1.25)
	if err != nil {
		t.Fatal(err)
	}
	// Break the encoded data, later windows must come from decoded peaks
	specs := sig.mzML.content.Run.SpectrumList.Spectrum
	for i := range specs {
		for j := range specs[i].BinaryDataArrayList.BinaryDataArray {
			specs[i].BinaryDataArrayList.BinaryDataArray[j].Binary = "!"
		}
	}
	second, err := sig.Chromatogram(ctx, 200, 0.9, 1.25)
	if err != nil {
		t.Fatalf("Chromatogram: error return %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Chromatogram mismatch (-first +second):\n%s", diff)
	}
}

func TestSignalSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mzML")
	if err := os.WriteFile(path, []byte(testMzML()), 0o644); err != nil {
		t.Fatal(err)
	}
	files := []spot.File{
		{ID: 0, MzMLPath: path},
		{ID: 1},
		{ID: 2, MzMLPath: filepath.Join(t.TempDir(), "missing.mzML")},
	}
	set := NewSignalSet(files, 10)
	if set.Len() != 2 {
		t.Errorf("Len: %d, should be 2", set.Len())
	}
	ctx := context.Background()
	samples, err := set.LoadWindow(ctx, 0, spot.Coordinate{Mz: 200, RT: 1.05}, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Errorf("got %d samples, should be 2", len(samples))
	}
	samples, err = set.LoadWindow(ctx, 1, spot.Coordinate{Mz: 200, RT: 1.05}, 0.1)
	if err != nil || samples != nil {
		t.Errorf("file without mzML: %v, %v", samples, err)
	}
	if _, err := set.LoadWindow(ctx, 2, spot.Coordinate{Mz: 200, RT: 1.05}, 0.1); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: error return %v", err)
	}
	set.Release(0)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := set.LoadWindow(cctx, 0, spot.Coordinate{Mz: 200, RT: 1.05}, 0.1); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: error return %v", err)
	}
}
