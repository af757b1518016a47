package config

import (
	"errors"
	"regexp"
	"strconv"
)

// ErrRangeSpec is returned for a range whose minimum exceeds its maximum
var ErrRangeSpec = errors.New("invalid range specified")

const floatPattern = `[-+]?[0-9]*\.?[0-9]*(?:[eE][-+]?[0-9]+)?`

var (
	intRangeRe   = regexp.MustCompile(`\s*(-?\d*):(-?\d*)`)
	floatRangeRe = regexp.MustCompile(`\s*(` + floatPattern + `):(` + floatPattern + `)`)
)

// ParseIntRange parses "lo:hi" into two ints. A missing bound takes the
// default min or max. Bounds outside [min, max] are clipped.
func ParseIntRange(r string, min int, max int) (int, int, error) {
	return parseRange(intRangeRe, r, min, max, strconv.Atoi)
}

// ParseFloat64Range parses "lo:hi" into two floats, e.g. "-12.01e1:+6"
// gives -120.1 and 6. A missing bound takes the default min or max. Bounds
// outside [min, max] are clipped.
func ParseFloat64Range(r string, min float64, max float64) (float64, float64, error) {
	return parseRange(floatRangeRe, r, min, max, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// parseRange returns lo == hi together with ErrRangeSpec for an inverted
// range. Unparsable bounds fall back to their defaults.
func parseRange[T int | float64](re *regexp.Regexp, r string, min, max T,
	parse func(string) (T, error)) (T, T, error) {
	lo, hi := min, max
	if m := re.FindStringSubmatch(r); len(m) == 3 {
		if v, err := parse(m[1]); m[1] != "" && err == nil {
			lo = v
		}
		if v, err := parse(m[2]); m[2] != "" && err == nil {
			hi = v
		}
	}
	if lo < min {
		lo = min
	}
	if hi > max {
		hi = max
	}
	if lo > hi {
		return hi, hi, ErrRangeSpec
	}
	return lo, hi, nil
}
