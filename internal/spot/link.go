package spot

import (
	"fmt"
	"strings"
)

// LinkKind is the relation between two features or spots
type LinkKind int

const (
	LinkIsotope LinkKind = iota
	LinkAdduct
	LinkChromatogramSimilar
	LinkCorrelation
	LinkFoundInUpperMsMs
	LinkInSourceFragment
)

var linkNames = []string{
	"isotope",
	"adduct",
	"chromatogram_similar",
	"correlation",
	"found_in_upper_msms",
	"in_source_fragment",
}

func (k LinkKind) String() string {
	if int(k) >= 0 && int(k) < len(linkNames) {
		return linkNames[k]
	}
	return fmt.Sprintf("link(%d)", int(k))
}

// IsWeak reports whether the relation is only a similarity that must not
// put two spots into the same group
func (k LinkKind) IsWeak() bool {
	switch k {
	case LinkChromatogramSimilar, LinkCorrelation, LinkFoundInUpperMsMs:
		return true
	}
	return false
}

func (k LinkKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *LinkKind) UnmarshalText(b []byte) error {
	for i, n := range linkNames {
		if strings.EqualFold(n, string(b)) {
			*k = LinkKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown link kind %q", string(b))
}
