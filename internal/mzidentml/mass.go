package mzidentml

const massProton = float64(1.007276466879)
const massH2O = float64(18.0105647)

// Masses of amino acids (minus H2O)
var aaMass = map[rune]float64{
	'A': 71.0371138,
	'C': 103.0091848,
	'D': 115.0269430,
	'E': 129.0425931,
	'F': 147.0684139,
	'G': 57.0214637,
	'H': 137.0589119,
	'I': 113.0840640,
	'K': 128.0949630,
	'L': 113.0840640,
	'M': 131.0404849,
	'N': 114.0429274,
	'P': 97.0527638,
	'O': 237.1477269, // Pyrrolysine
	'Q': 128.0585775,
	'R': 156.1011110,
	'S': 87.0320284,
	'T': 101.0476785,
	'U': 144.9595902, // Selenocysteine
	'V': 99.0684139,
	'W': 186.0793129,
	'Y': 163.0633285,
}

// PepMass computes the lowest isotope mass of the peptide
func PepMass(pepSeq string) (float64, error) {
	m := massH2O
	for _, aa := range pepSeq {
		aam, ok := aaMass[aa]
		if !ok {
			return 0.0, ErrInvalidAminoAcid
		}
		m += aam
	}
	return m, nil
}

// PrecursorMz returns the theoretical m/z of the identified ion. The value
// reported in the file is used when present.
func PrecursorMz(ident Identification) (float64, error) {
	if ident.CalculatedMz > 0 {
		return ident.CalculatedMz, nil
	}
	m, err := PepMass(ident.PepSeq)
	if err != nil {
		return 0, err
	}
	z := float64(ident.Charge)
	if z < 1 {
		z = 1
	}
	return (m + ident.ModMass + z*massProton) / z, nil
}
