package spot

import (
	"fmt"
	"strings"
)

// IonMode is the polarity of the acquisition
type IonMode int

const (
	Positive IonMode = iota
	Negative
)

func (m IonMode) String() string {
	if m == Negative {
		return "negative"
	}
	return "positive"
}

func (m IonMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *IonMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "positive", "pos", "+":
		*m = Positive
	case "negative", "neg", "-":
		*m = Negative
	default:
		return fmt.Errorf("unknown ion mode %q", string(b))
	}
	return nil
}

// DefaultAdduct returns the protonated (positive mode) or deprotonated
// (negative mode) adduct for a charge state. Charges below 2 give the
// singly charged form.
func DefaultAdduct(mode IonMode, charge int) string {
	if charge < 0 {
		charge = -charge
	}
	if mode == Negative {
		if charge < 2 {
			return "[M-H]-"
		}
		return fmt.Sprintf("[M-%dH]%d-", charge, charge)
	}
	if charge < 2 {
		return "[M+H]+"
	}
	return fmt.Sprintf("[M+%dH]%d+", charge, charge)
}
