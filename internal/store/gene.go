package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GeneFeatures is the partial feature set for one gene row: reference
// identifiers plus the constraint metrics written by constraint loaders.
type GeneFeatures struct {
	EnsemblGeneID       Field[string]
	UniprotID           Field[string]
	CanonicalTranscript Field[string]

	PLI        Field[float64]
	LOEUF      Field[float64]
	LOEUFLower Field[float64]
	LOEUFUpper Field[float64]
}

func (f *GeneFeatures) columns() []col {
	return []col{
		{"ensembl_gene_id", f.EnsemblGeneID},
		{"uniprot_id", f.UniprotID},
		{"canonical_transcript", f.CanonicalTranscript},
		{"pli", f.PLI},
		{"loeuf", f.LOEUF},
		{"loeuf_lower", f.LOEUFLower},
		{"loeuf_upper", f.LOEUFUpper},
	}
}

// Gene is a stored gene row. Genes are created on the first annotation seen
// for a symbol and never deleted.
type Gene struct {
	Symbol              string
	EnsemblGeneID       *string
	UniprotID           *string
	CanonicalTranscript *string

	PLI        *float64
	LOEUF      *float64
	LOEUFLower *float64
	LOEUFUpper *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

const geneSelect = `SELECT symbol, ensembl_gene_id, uniprot_id, canonical_transcript,
	pli, loeuf, loeuf_lower, loeuf_upper, created_at, updated_at FROM genes`

// UpsertGene inserts or merges a gene row keyed by its case-normalized symbol.
func (s *Store) UpsertGene(symbol string, feats GeneFeatures) error {
	symbol = NormalizeGene(symbol)
	if symbol == "" {
		return ErrMissingIdentity
	}

	existing, err := s.GetGene(symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.insertRow("genes", []string{"symbol"}, []any{symbol}, feats.columns())
	}
	return s.updateRow("genes", []string{"symbol"}, []any{symbol}, feats.columns())
}

// GetGene returns the stored gene row for a symbol, or nil when absent.
func (s *Store) GetGene(symbol string) (*Gene, error) {
	row := s.h().QueryRow(geneSelect+" WHERE symbol = ?", NormalizeGene(symbol))

	var g Gene
	err := row.Scan(
		&g.Symbol, &g.EnsemblGeneID, &g.UniprotID, &g.CanonicalTranscript,
		&g.PLI, &g.LOEUF, &g.LOEUFLower, &g.LOEUFUpper, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query gene: %w", err)
	}
	return &g, nil
}
