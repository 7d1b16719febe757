package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LOFFeatures is the partial feature set for one loss-of-function variant.
// The gene-constraint snapshot columns are deliberately denormalized: they
// record the owning gene's metrics at write time, not a live join.
type LOFFeatures struct {
	HGVSp        Field[string]
	Chrom        Field[string]
	Position     Field[int64]
	Ref          Field[string]
	Alt          Field[string]
	Assembly     Field[string]
	TranscriptID Field[string]

	LOFType            Field[string]
	Confidence         Field[string]
	Flags              Field[string]
	NMDEscape          Field[bool]
	TruncationFraction Field[float64]
	LastExon           Field[bool]

	PLISnapshot   Field[float64]
	LOEUFSnapshot Field[float64]

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

func (f *LOFFeatures) columns() []col {
	return []col{
		{"hgvs_p", f.HGVSp},
		{"chrom", f.Chrom},
		{"position", f.Position},
		{"ref", f.Ref},
		{"alt", f.Alt},
		{"assembly", f.Assembly},
		{"transcript_id", f.TranscriptID},
		{"lof_type", f.LOFType},
		{"confidence", f.Confidence},
		{"flags", f.Flags},
		{"nmd_escape", f.NMDEscape},
		{"truncation_fraction", f.TruncationFraction},
		{"last_exon", f.LastExon},
		{"pli_snapshot", f.PLISnapshot},
		{"loeuf_snapshot", f.LOEUFSnapshot},
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

func (f *LOFFeatures) coords() (Coords, bool) {
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

func (f *LOFFeatures) validate() error {
	if stars, ok := f.ClinVarStars.Get(); ok && (stars < 0 || stars > 4) {
		return fmt.Errorf("%w: %d", ErrInvalidStars, stars)
	}
	return nil
}

// LOFVariant is a stored loss-of-function variant row.
type LOFVariant struct {
	Gene         string
	HGVSc        string
	HGVSp        *string
	Chrom        *string
	Position     *int64
	Ref          *string
	Alt          *string
	Assembly     *string
	TranscriptID *string

	LOFType            *string
	Confidence         *string
	Flags              *string
	NMDEscape          *bool
	TruncationFraction *float64
	LastExon           *bool

	PLISnapshot   *float64
	LOEUFSnapshot *float64

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

const lofSelect = `SELECT gene, hgvs_c, hgvs_p, chrom, position, ref, alt, assembly,
	transcript_id, lof_type, confidence, flags, nmd_escape, truncation_fraction,
	last_exon, pli_snapshot, loeuf_snapshot, clinvar_id, clinvar_significance,
	clinvar_review_status, clinvar_stars, clinvar_last_evaluated, gnomad_af,
	gnomad_af_popmax, gnomad_homozygotes, gnomad_version, created_at, updated_at
	FROM lof_variants`

func scanLOF(row interface{ Scan(...any) error }) (*LOFVariant, error) {
	var v LOFVariant
	err := row.Scan(
		&v.Gene, &v.HGVSc, &v.HGVSp, &v.Chrom, &v.Position, &v.Ref, &v.Alt, &v.Assembly,
		&v.TranscriptID, &v.LOFType, &v.Confidence, &v.Flags, &v.NMDEscape, &v.TruncationFraction,
		&v.LastExon, &v.PLISnapshot, &v.LOEUFSnapshot, &v.ClinVarID, &v.ClinVarSignificance,
		&v.ClinVarReviewStatus, &v.ClinVarStars, &v.ClinVarLastEvaluated, &v.GnomadAF,
		&v.GnomadAFPopmax, &v.GnomadHomozygotes, &v.GnomadVersion, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertLOF inserts or merges a loss-of-function variant keyed by its
// canonical coding-change identity. A record without a coding-change
// identifier cannot be stored in this table and is rejected with
// ErrMissingIdentity; adapters count such records as skipped.
// Coordinate conflicts surface as *IdentityConflictError, same as for
// missense variants.
func (s *Store) UpsertLOF(gene, hgvsC string, feats LOFFeatures) error {
	gene = NormalizeGene(gene)
	if gene == "" || hgvsC == "" {
		return ErrMissingIdentity
	}
	if err := feats.validate(); err != nil {
		return err
	}

	if c, ok := feats.coords(); ok {
		owner, err := s.lofByCoords(c)
		if err != nil {
			return err
		}
		if owner != nil && (owner.Gene != gene || owner.HGVSc != hgvsC) {
			return &IdentityConflictError{
				Table:    "lof_variants",
				Gene:     owner.Gene,
				Claimed:  hgvsC,
				Existing: owner.HGVSc,
				Coords:   c,
			}
		}
	}

	existing, err := s.GetLOF(gene, hgvsC)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.insertRow("lof_variants",
			[]string{"gene", "hgvs_c"}, []any{gene, hgvsC}, feats.columns())
	}
	return s.updateRow("lof_variants",
		[]string{"gene", "hgvs_c"}, []any{gene, hgvsC}, feats.columns())
}

func (s *Store) lofByCoords(c Coords) (*LOFVariant, error) {
	row := s.h().QueryRow(lofSelect+
		" WHERE chrom = ? AND position = ? AND ref = ? AND alt = ? AND assembly = ?",
		c.Chrom, c.Position, c.Ref, c.Alt, c.Assembly)
	v, err := scanLOF(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lof by coordinates: %w", err)
	}
	return v, nil
}

// GetLOF returns the stored row for a (gene, coding identity) pair, or nil
// when absent.
func (s *Store) GetLOF(gene, hgvsC string) (*LOFVariant, error) {
	row := s.h().QueryRow(lofSelect+" WHERE gene = ? AND hgvs_c = ?",
		NormalizeGene(gene), hgvsC)
	v, err := scanLOF(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lof: %w", err)
	}
	return v, nil
}

// GeneLOF returns all loss-of-function variants stored for a gene, ordered
// by coding identity.
func (s *Store) GeneLOF(gene string) ([]*LOFVariant, error) {
	rows, err := s.h().Query(lofSelect+" WHERE gene = ? ORDER BY hgvs_c",
		NormalizeGene(gene))
	if err != nil {
		return nil, fmt.Errorf("query gene lof: %w", err)
	}
	defer rows.Close()

	var out []*LOFVariant
	for rows.Next() {
		v, err := scanLOF(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lof: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lof: %w", err)
	}
	return out, nil
}

// CountLOF returns the number of LOF rows stored for a gene.
func (s *Store) CountLOF(gene string) (int64, error) {
	var n int64
	err := s.h().QueryRow("SELECT COUNT(*) FROM lof_variants WHERE gene = ?",
		NormalizeGene(gene)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count lof: %w", err)
	}
	return n, nil
}
