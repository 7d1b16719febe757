package store

import (
	"fmt"
	"time"
)

// PenetranceFeatures is the partial feature set for one penetrance estimate,
// produced by an external estimator writing into the shared store.
type PenetranceFeatures struct {
	PosteriorMean   Field[float64]
	PosteriorMedian Field[float64]
	CILower         Field[float64]
	CIUpper         Field[float64]
	ModelVersion    Field[string]
	NCarriers       Field[int64]
	NAffected       Field[int64]
}

func (f *PenetranceFeatures) columns() []col {
	return []col{
		{"posterior_mean", f.PosteriorMean},
		{"posterior_median", f.PosteriorMedian},
		{"ci_lower", f.CILower},
		{"ci_upper", f.CIUpper},
		{"model_version", f.ModelVersion},
		{"n_carriers", f.NCarriers},
		{"n_affected", f.NAffected},
	}
}

// Penetrance is a stored penetrance-estimate row.
type Penetrance struct {
	Category string
	Gene     string
	Identity string

	PosteriorMean   *float64
	PosteriorMedian *float64
	CILower         *float64
	CIUpper         *float64
	ModelVersion    *string
	NCarriers       *int64
	NAffected       *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertPenetrance inserts or merges a penetrance estimate keyed by
// (category, gene, variant identity), keeping at most one row per pair.
// The referenced identity is expected to exist in its owning variant table;
// the store does not enforce that referential requirement transactionally.
func (s *Store) UpsertPenetrance(category, gene, identity string, feats PenetranceFeatures) error {
	gene = NormalizeGene(gene)
	if category == "" || gene == "" || identity == "" {
		return ErrMissingIdentity
	}

	var n int64
	err := s.h().QueryRow(
		"SELECT COUNT(*) FROM penetrance_estimates WHERE category = ? AND gene = ? AND identity = ?",
		category, gene, identity).Scan(&n)
	if err != nil {
		return fmt.Errorf("query penetrance: %w", err)
	}

	if n == 0 {
		return s.insertRow("penetrance_estimates",
			[]string{"category", "gene", "identity"}, []any{category, gene, identity},
			feats.columns())
	}
	return s.updateRow("penetrance_estimates",
		[]string{"category", "gene", "identity"}, []any{category, gene, identity},
		feats.columns())
}

// GenePenetrance returns all penetrance estimates stored for a gene.
func (s *Store) GenePenetrance(gene string) ([]*Penetrance, error) {
	rows, err := s.h().Query(`SELECT category, gene, identity, posterior_mean,
		posterior_median, ci_lower, ci_upper, model_version, n_carriers, n_affected,
		created_at, updated_at FROM penetrance_estimates
		WHERE gene = ? ORDER BY category, identity`, NormalizeGene(gene))
	if err != nil {
		return nil, fmt.Errorf("query penetrance: %w", err)
	}
	defer rows.Close()

	var out []*Penetrance
	for rows.Next() {
		var p Penetrance
		if err := rows.Scan(
			&p.Category, &p.Gene, &p.Identity, &p.PosteriorMean, &p.PosteriorMedian,
			&p.CILower, &p.CIUpper, &p.ModelVersion, &p.NCarriers, &p.NAffected,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan penetrance: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate penetrance: %w", err)
	}
	return out, nil
}
