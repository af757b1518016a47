package spot

import (
	"fmt"
	"strings"
)

// FileType is the role of an analysis file in the experiment
type FileType int

const (
	FileSample FileType = iota
	FileBlank
	FileQC
	FileStandard
)

var fileTypeNames = []string{"sample", "blank", "qc", "standard"}

func (t FileType) String() string {
	if int(t) >= 0 && int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}
	return fmt.Sprintf("filetype(%d)", int(t))
}

func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FileType) UnmarshalText(b []byte) error {
	for i, n := range fileTypeNames {
		if strings.EqualFold(n, string(b)) {
			*t = FileType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown file type %q", string(b))
}

// File describes one analysis file. ID equals the index of the file's
// slot in every alignment spot.
type File struct {
	ID    int      `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Type  FileType `json:"type" yaml:"type"`
	Class string   `json:"class" yaml:"class"` // group label for statistics

	// Inputs used by the command line adapters
	FeaturePath string `json:"features,omitempty" yaml:"features,omitempty"`
	MzMLPath    string `json:"mzml,omitempty" yaml:"mzml,omitempty"`
	MzIDPath    string `json:"mzid,omitempty" yaml:"mzid,omitempty"`
}
