package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MissenseFeatures is the partial feature set an adapter supplies for one
// missense variant. Every column is optional; fields left at their zero
// value are not touched by the merge.
type MissenseFeatures struct {
	HGVSc        Field[string]
	Chrom        Field[string]
	Position     Field[int64]
	Ref          Field[string]
	Alt          Field[string]
	Assembly     Field[string]
	TranscriptID Field[string]

	AlphaMissenseScore Field[float64]
	AlphaMissenseClass Field[string]
	RevelScore         Field[float64]
	CADDPhred          Field[float64]
	CADDRaw            Field[float64]

	ClinVarID            Field[int64]
	ClinVarSignificance  Field[string]
	ClinVarReviewStatus  Field[string]
	ClinVarStars         Field[int]
	ClinVarLastEvaluated Field[string]

	GnomadAF          Field[float64]
	GnomadAFPopmax    Field[float64]
	GnomadHomozygotes Field[int64]
	GnomadVersion     Field[string]
}

// columns returns the static column set in schema order.
func (f *MissenseFeatures) columns() []col {
	return []col{
		{"hgvs_c", f.HGVSc},
		{"chrom", f.Chrom},
		{"position", f.Position},
		{"ref", f.Ref},
		{"alt", f.Alt},
		{"assembly", f.Assembly},
		{"transcript_id", f.TranscriptID},
		{"alphamissense_score", f.AlphaMissenseScore},
		{"alphamissense_class", f.AlphaMissenseClass},
		{"revel_score", f.RevelScore},
		{"cadd_phred", f.CADDPhred},
		{"cadd_raw", f.CADDRaw},
		{"clinvar_id", f.ClinVarID},
		{"clinvar_significance", f.ClinVarSignificance},
		{"clinvar_review_status", f.ClinVarReviewStatus},
		{"clinvar_stars", f.ClinVarStars},
		{"clinvar_last_evaluated", f.ClinVarLastEvaluated},
		{"gnomad_af", f.GnomadAF},
		{"gnomad_af_popmax", f.GnomadAFPopmax},
		{"gnomad_homozygotes", f.GnomadHomozygotes},
		{"gnomad_version", f.GnomadVersion},
	}
}

// coords returns the full coordinate tuple if all five parts are set.
func (f *MissenseFeatures) coords() (Coords, bool) {
	chrom, ok1 := f.Chrom.Get()
	pos, ok2 := f.Position.Get()
	ref, ok3 := f.Ref.Get()
	alt, ok4 := f.Alt.Get()
	asm, ok5 := f.Assembly.Get()
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return Coords{}, false
	}
	return Coords{Chrom: chrom, Position: pos, Ref: ref, Alt: alt, Assembly: asm}, true
}

func (f *MissenseFeatures) validate() error {
	if stars, ok := f.ClinVarStars.Get(); ok && (stars < 0 || stars > 4) {
		return fmt.Errorf("%w: %d", ErrInvalidStars, stars)
	}
	return nil
}

// Missense is a stored missense variant row. Nullable columns scan into
// pointers so an absent score is distinguishable from 0.0.
type Missense struct {
	Gene         string
	HGVSp        *string
	HGVSc        *string
	Chrom        *string
	Position     *int64
	Ref          *string
	Alt          *string
	Assembly     *string
	TranscriptID *string

	AlphaMissenseScore *float64
	AlphaMissenseClass *string
	RevelScore         *float64
	CADDPhred          *float64
	CADDRaw            *float64

	ClinVarID            *int64
	ClinVarSignificance  *string
	ClinVarReviewStatus  *string
	ClinVarStars         *int
	ClinVarLastEvaluated *string

	GnomadAF          *float64
	GnomadAFPopmax    *float64
	GnomadHomozygotes *int64
	GnomadVersion     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const missenseSelect = `SELECT gene, hgvs_p, hgvs_c, chrom, position, ref, alt, assembly,
	transcript_id, alphamissense_score, alphamissense_class, revel_score,
	cadd_phred, cadd_raw, clinvar_id, clinvar_significance, clinvar_review_status,
	clinvar_stars, clinvar_last_evaluated, gnomad_af, gnomad_af_popmax,
	gnomad_homozygotes, gnomad_version, created_at, updated_at
	FROM missense_variants`

func scanMissense(row interface{ Scan(...any) error }) (*Missense, error) {
	var m Missense
	err := row.Scan(
		&m.Gene, &m.HGVSp, &m.HGVSc, &m.Chrom, &m.Position, &m.Ref, &m.Alt, &m.Assembly,
		&m.TranscriptID, &m.AlphaMissenseScore, &m.AlphaMissenseClass, &m.RevelScore,
		&m.CADDPhred, &m.CADDRaw, &m.ClinVarID, &m.ClinVarSignificance, &m.ClinVarReviewStatus,
		&m.ClinVarStars, &m.ClinVarLastEvaluated, &m.GnomadAF, &m.GnomadAFPopmax,
		&m.GnomadHomozygotes, &m.GnomadVersion, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertMissense inserts or merges a missense variant keyed by its canonical
// protein-change identity. When the feature set carries a full coordinate
// tuple, a stored coordinate-only row for those coordinates is adopted
// (its hgvs_p filled in), and coordinates already owned by a different
// identity surface as *IdentityConflictError.
//
// Reapplying the same feature set is idempotent apart from the refreshed
// update timestamp. Writes to the same column from two sources are
// last-write-wins.
func (s *Store) UpsertMissense(gene, hgvsP string, feats MissenseFeatures) error {
	gene = NormalizeGene(gene)
	if gene == "" || hgvsP == "" {
		return ErrMissingIdentity
	}
	if err := feats.validate(); err != nil {
		return err
	}

	if c, ok := feats.coords(); ok {
		owner, err := s.missenseByCoords(c)
		if err != nil {
			return err
		}
		if owner != nil {
			switch {
			case owner.HGVSp == nil && owner.Gene == gene:
				// Coordinate-only row awaiting its protein identity: claim it.
				return s.adoptMissense(c, hgvsP, feats)
			case owner.Gene != gene || *owner.HGVSp != hgvsP:
				existing := ""
				if owner.HGVSp != nil {
					existing = *owner.HGVSp
				}
				return &IdentityConflictError{
					Table:    "missense_variants",
					Gene:     owner.Gene,
					Claimed:  hgvsP,
					Existing: existing,
					Coords:   c,
				}
			}
		}
	}

	existing, err := s.GetMissense(gene, hgvsP)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.insertRow("missense_variants",
			[]string{"gene", "hgvs_p"}, []any{gene, hgvsP}, feats.columns())
	}
	return s.updateRow("missense_variants",
		[]string{"gene", "hgvs_p"}, []any{gene, hgvsP}, feats.columns())
}

// UpsertMissenseByCoords inserts or merges a missense variant known only by
// genomic coordinates, as produced by sources that carry no protein
// notation. The row is created without a protein identity and claimed later
// by the first identity-keyed write for the same coordinates.
func (s *Store) UpsertMissenseByCoords(gene string, c Coords, feats MissenseFeatures) error {
	gene = NormalizeGene(gene)
	if gene == "" || c.Chrom == "" || c.Position <= 0 || c.Ref == "" || c.Alt == "" || c.Assembly == "" {
		return ErrMissingIdentity
	}
	if err := feats.validate(); err != nil {
		return err
	}

	feats.Chrom = Set(c.Chrom)
	feats.Position = Set(c.Position)
	feats.Ref = Set(c.Ref)
	feats.Alt = Set(c.Alt)
	feats.Assembly = Set(c.Assembly)

	owner, err := s.missenseByCoords(c)
	if err != nil {
		return err
	}
	if owner == nil {
		return s.insertRow("missense_variants",
			[]string{"gene"}, []any{gene}, feats.columns())
	}
	return s.updateRow("missense_variants",
		coordWhere, []any{c.Chrom, c.Position, c.Ref, c.Alt, c.Assembly}, feats.columns())
}

var coordWhere = []string{"chrom", "position", "ref", "alt", "assembly"}

// adoptMissense claims a coordinate-only row for a protein identity and
// merges the supplied features into it.
func (s *Store) adoptMissense(c Coords, hgvsP string, feats MissenseFeatures) error {
	cols := append([]col{{"hgvs_p", Set(hgvsP)}}, feats.columns()...)
	return s.updateRow("missense_variants",
		coordWhere, []any{c.Chrom, c.Position, c.Ref, c.Alt, c.Assembly}, cols)
}

func (s *Store) missenseByCoords(c Coords) (*Missense, error) {
	row := s.h().QueryRow(missenseSelect+
		" WHERE chrom = ? AND position = ? AND ref = ? AND alt = ? AND assembly = ?",
		c.Chrom, c.Position, c.Ref, c.Alt, c.Assembly)
	m, err := scanMissense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query missense by coordinates: %w", err)
	}
	return m, nil
}

// GetMissense returns the stored row for a (gene, protein identity) pair,
// or nil when absent.
func (s *Store) GetMissense(gene, hgvsP string) (*Missense, error) {
	row := s.h().QueryRow(missenseSelect+" WHERE gene = ? AND hgvs_p = ?",
		NormalizeGene(gene), hgvsP)
	m, err := scanMissense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query missense: %w", err)
	}
	return m, nil
}

// GeneMissense returns all missense variants stored for a gene, ordered by
// protein identity.
func (s *Store) GeneMissense(gene string) ([]*Missense, error) {
	rows, err := s.h().Query(missenseSelect+" WHERE gene = ? ORDER BY hgvs_p",
		NormalizeGene(gene))
	if err != nil {
		return nil, fmt.Errorf("query gene missense: %w", err)
	}
	defer rows.Close()

	var out []*Missense
	for rows.Next() {
		m, err := scanMissense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan missense: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missense: %w", err)
	}
	return out, nil
}

// CountMissense returns the number of missense rows stored for a gene.
func (s *Store) CountMissense(gene string) (int64, error) {
	var n int64
	err := s.h().QueryRow("SELECT COUNT(*) FROM missense_variants WHERE gene = ?",
		NormalizeGene(gene)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count missense: %w", err)
	}
	return n, nil
}
