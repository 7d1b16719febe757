package store

import (
	"errors"
	"fmt"
)

// ErrMissingIdentity is returned when a record carries no usable identity
// for its table (e.g. a LOF record without a coding-change identifier).
var ErrMissingIdentity = errors.New("record has no resolvable identity")

// ErrInvalidStars is returned when a review tier outside 0-4 reaches the
// write path.
var ErrInvalidStars = errors.New("review stars out of range")

// Coords is the genomic-coordinate identity of a variant. All five parts are
// needed to identify a variant across sources; partial tuples are treated as
// annotation, not identity.
type Coords struct {
	Chrom    string
	Position int64
	Ref      string
	Alt      string
	Assembly string
}

func (c Coords) String() string {
	return fmt.Sprintf("%s-%d-%s-%s (%s)", c.Chrom, c.Position, c.Ref, c.Alt, c.Assembly)
}

// IdentityConflictError reports a cross-source identity conflict: the same
// genomic coordinates claimed by two different normalized identities. The
// merge engine refuses to guess which one is right.
type IdentityConflictError struct {
	Table    string
	Gene     string
	Claimed  string // identity being written
	Existing string // identity already owning the coordinates
	Coords   Coords
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("%s: coordinates %s claimed by %q but already owned by %q (gene %s)",
		e.Table, e.Coords, e.Claimed, e.Existing, e.Gene)
}
