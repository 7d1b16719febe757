// Package datasource defines the contract between the canonical store's
// build pipeline and the annotation sources feeding it. Each source produces
// a finite sequence of partial feature records for a gene, already keyed by
// normalized identity. Sources never fail on "not found" — unparseable or
// out-of-scope rows are skipped and counted — but do fail hard on missing
// local data files or unreachable remote services.
package datasource

import (
	"context"

	"github.com/inodb/variantfeatures/internal/store"
)

// Source identifies an annotation source.
type Source interface {
	Name() string    // e.g. "clinvar"
	Version() string // data release or API version
}

// MissenseRecord is one partial missense feature set keyed by canonical
// protein-change identity.
type MissenseRecord struct {
	HGVSp    string
	Features store.MissenseFeatures
}

// CoordRecord is one partial missense feature set for sources that only
// speak genomic coordinates; the protein identity is resolved later by an
// identity-keyed write for the same coordinates.
type CoordRecord struct {
	Coords   store.Coords
	Features store.MissenseFeatures
}

// LOFRecord is one partial loss-of-function feature set keyed by canonical
// coding-change identity.
type LOFRecord struct {
	HGVSc    string
	Features store.LOFFeatures
}

// Stats counts how a fetch went: records handed to the consumer vs raw rows
// skipped as unparseable or out of scope.
type Stats struct {
	Emitted int
	Skipped int
}

// MissenseSource streams identity-keyed missense records for a gene.
type MissenseSource interface {
	Source
	FetchMissense(ctx context.Context, gene string, emit func(MissenseRecord) error) (Stats, error)
}

// CoordSource streams coordinate-keyed missense records for a gene.
type CoordSource interface {
	Source
	FetchCoords(ctx context.Context, gene string, emit func(CoordRecord) error) (Stats, error)
}

// LOFSource streams loss-of-function records for a gene.
type LOFSource interface {
	Source
	FetchLOF(ctx context.Context, gene string, emit func(LOFRecord) error) (Stats, error)
}

// ConstraintSource supplies gene-level constraint metrics.
type ConstraintSource interface {
	Source
	FetchConstraint(ctx context.Context, gene string) (*store.GeneFeatures, error)
}
