// Package hgvs normalizes heterogeneous variant notations into canonical
// HGVS protein-change and coding-change identifiers. These identifiers are
// the join keys the store merges on, so both parsing paths must produce
// byte-identical output for the same underlying variant.
package hgvs

// Single-letter to three-letter amino acid codes (standard 20).
var oneToThree = map[byte]string{
	'A': "Ala", 'C': "Cys", 'D': "Asp", 'E': "Glu", 'F': "Phe",
	'G': "Gly", 'H': "His", 'I': "Ile", 'K': "Lys", 'L': "Leu",
	'M': "Met", 'N': "Asn", 'P': "Pro", 'Q': "Gln", 'R': "Arg",
	'S': "Ser", 'T': "Thr", 'V': "Val", 'W': "Trp", 'Y': "Tyr",
}

var threeToOne = func() map[string]byte {
	m := make(map[string]byte, len(oneToThree)+1)
	for one, three := range oneToThree {
		m[three] = one
	}
	m["Ter"] = '*'
	return m
}()

// ToThree converts a single-letter amino acid code to its three-letter code.
// The stop markers '*' and 'X' map to "Ter".
func ToThree(aa byte) (string, bool) {
	if aa == '*' || aa == 'X' {
		return "Ter", true
	}
	three, ok := oneToThree[aa]
	return three, ok
}

// ToOne converts a three-letter amino acid code to its single-letter code.
// "Ter" maps to '*'.
func ToOne(three string) (byte, bool) {
	one, ok := threeToOne[three]
	return one, ok
}
