package hgvs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// reSubstitution matches a standard substitution inside a protein annotation,
// e.g. "(p.Ala561Val)" in "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)".
var reSubstitution = regexp.MustCompile(`\(p\.([A-Za-z]{3})(\d+)([A-Za-z]{3})\)`)

// reStopGain matches nonsense notation where the alt token is Ter or *.
var reStopGain = regexp.MustCompile(`\(p\.([A-Za-z]{3})(\d+)(Ter|\*)\)`)

// reCoding matches the coding change following ":c." up to the first
// whitespace or parenthesis.
var reCoding = regexp.MustCompile(`:c\.([^\s(]+)`)

// reCompact matches a compact single-letter substitution code such as "A561V"
// or "R534*", as used by genome-scale prediction sources.
var reCompact = regexp.MustCompile(`^([A-Z])(\d+)([A-Z*])$`)

// reBare matches a bare substitution without surrounding clinical text, as
// population databases report it, e.g. "p.Ala561Val" or "p.Arg534*".
var reBare = regexp.MustCompile(`^p\.([A-Za-z]{3})(\d+)(Ter|\*|[A-Za-z]{3})$`)

// rePosition matches the residue position of any protein notation's first
// affected amino acid, including frameshifts ("p.Leu75ProfsTer11").
var rePosition = regexp.MustCompile(`^p\.[A-Za-z]{3}(\d+)`)

// ParseProteinChange extracts the canonical protein-change identifier from a
// free-text clinical name. Stop-gain notation using '*' is normalized to
// "Ter" so both surface forms join to the same row. Returns false when the
// name carries no recognizable protein annotation.
func ParseProteinChange(name string) (string, bool) {
	if m := reSubstitution.FindStringSubmatch(name); m != nil {
		if !validPosition(m[2]) {
			return "", false
		}
		return "p." + m[1] + m[2] + m[3], true
	}
	if m := reStopGain.FindStringSubmatch(name); m != nil {
		if !validPosition(m[2]) {
			return "", false
		}
		return "p." + m[1] + m[2] + "Ter", true
	}
	return "", false
}

// NormalizeProtein canonicalizes a bare protein substitution, normalizing a
// '*' alt token to "Ter". Anything other than a simple substitution or stop
// gain (frameshifts, deletions, synonymous "=") returns false.
func NormalizeProtein(s string) (string, bool) {
	m := reBare.FindStringSubmatch(s)
	if m == nil || !validPosition(m[2]) {
		return "", false
	}
	alt := m[3]
	if alt == "*" {
		alt = "Ter"
	}
	return "p." + m[1] + m[2] + alt, true
}

// ProteinPosition extracts the first affected residue position from a bare
// protein notation. Unlike NormalizeProtein it also accepts truncating
// notations such as "p.Arg534Ter" and "p.Leu75ProfsTer11", where the
// position marks where the protein is cut off.
func ProteinPosition(s string) (int, bool) {
	m := rePosition.FindStringSubmatch(s)
	if m == nil || !validPosition(m[1]) {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return n, true
}

// ParseCodingChange extracts the canonical coding-change identifier
// (e.g. "c.1682C>T") from a free-text clinical name.
func ParseCodingChange(name string) (string, bool) {
	if m := reCoding.FindStringSubmatch(name); m != nil {
		return "c." + m[1], true
	}
	return "", false
}

// ParseCompact splits a compact substitution code ("A561V") into its
// reference amino acid, position, and alternate amino acid.
func ParseCompact(code string) (ref byte, pos int, alt byte, ok bool) {
	m := reCompact.FindStringSubmatch(code)
	if m == nil {
		return 0, 0, 0, false
	}
	p, err := strconv.Atoi(m[2])
	if err != nil || p <= 0 {
		return 0, 0, 0, false
	}
	return m[1][0], p, m[3][0], true
}

// FromCompact converts a compact substitution code to the canonical
// protein-change identifier, e.g. "A561V" -> "p.Ala561Val". The output is
// byte-identical to what ParseProteinChange produces for the same variant.
func FromCompact(code string) (string, bool) {
	ref, pos, alt, ok := ParseCompact(code)
	if !ok {
		return "", false
	}
	refThree, ok := ToThree(ref)
	if !ok {
		return "", false
	}
	altThree, ok := ToThree(alt)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("p.%s%d%s", refThree, pos, altThree), true
}

// ToCompact converts a canonical protein-change identifier back to its
// compact single-letter form, e.g. "p.Ala561Val" -> "A561V".
func ToCompact(hgvsP string) (string, bool) {
	rest, found := strings.CutPrefix(hgvsP, "p.")
	if !found || len(rest) < 7 {
		return "", false
	}
	ref, ok := ToOne(rest[:3])
	if !ok {
		return "", false
	}
	alt, ok := ToOne(rest[len(rest)-3:])
	if !ok {
		return "", false
	}
	posStr := rest[3 : len(rest)-3]
	if !validPosition(posStr) {
		return "", false
	}
	return string(ref) + posStr + string(alt), true
}

// validPosition reports whether s is a positive integer. Malformed positions
// make the whole notation unparseable rather than defaulting to zero.
func validPosition(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}
