package clinvar

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/variantfeatures/internal/datasource"
)

// summaryRow builds a variant_summary.txt line with the given columns set.
func summaryRow(overrides map[int]string) string {
	fields := make([]string, minColumns)
	fields[colType] = "single nucleotide variant"
	fields[colAssembly] = "GRCh38"
	for i, v := range overrides {
		fields[i] = v
	}
	return strings.Join(fields, "\t")
}

func writeSummary(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "variant_summary.txt.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)

	lines := append([]string{"#AlleleID\tType\tName"}, rows...)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestFetchMissense(t *testing.T) {
	path := writeSummary(t,
		summaryRow(map[int]string{
			colName:          "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			colGeneSymbol:    "KCNH2",
			colClinicalSig:   "Pathogenic",
			colLastEvaluated: "Jun 29, 2023",
			colReviewStatus:  "reviewed by expert panel",
			colChromosome:    "7",
			colVariationID:   "14432",
			colPosVCF:        "150951325",
			colRefVCF:        "G",
			colAltVCF:        "A",
		}),
		// Same variant reported again under a different submission: dedup.
		summaryRow(map[int]string{
			colName:         "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			colGeneSymbol:   "KCNH2",
			colClinicalSig:  "Likely pathogenic",
			colReviewStatus: "criteria provided, single submitter",
		}),
		// Different gene: filtered out entirely.
		summaryRow(map[int]string{
			colName:       "NM_000218.3(KCNQ1):c.573G>A (p.Ala191Val)",
			colGeneSymbol: "KCNQ1",
		}),
		// No protein annotation: skipped.
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.2398+1G>A",
			colGeneSymbol: "KCNH2",
		}),
		// Nonsense variant belongs to the LOF table, not missense.
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.1600C>T (p.Arg534*)",
			colGeneSymbol: "KCNH2",
		}),
		// Wrong assembly: filtered.
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			colGeneSymbol: "KCNH2",
			colAssembly:   "GRCh37",
		}),
	)

	a := New(path, "GRCh38")
	var recs []datasource.MissenseRecord
	stats, err := a.FetchMissense(context.Background(), "KCNH2", func(r datasource.MissenseRecord) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, 1, stats.Emitted)
	assert.Equal(t, 3, stats.Skipped) // duplicate, splice, nonsense

	r := recs[0]
	assert.Equal(t, "p.Ala561Val", r.HGVSp)

	hgvsC, ok := r.Features.HGVSc.Get()
	require.True(t, ok)
	assert.Equal(t, "c.1682C>T", hgvsC)

	stars, ok := r.Features.ClinVarStars.Get()
	require.True(t, ok)
	assert.Equal(t, 3, stars)

	date, ok := r.Features.ClinVarLastEvaluated.Get()
	require.True(t, ok)
	assert.Equal(t, "2023-06-29", date)

	pos, ok := r.Features.Position.Get()
	require.True(t, ok)
	assert.EqualValues(t, 150951325, pos)

	id, ok := r.Features.ClinVarID.Get()
	require.True(t, ok)
	assert.EqualValues(t, 14432, id)
}

func TestFetchMissenseMalformedPositionBecomesAbsent(t *testing.T) {
	path := writeSummary(t,
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			colGeneSymbol: "KCNH2",
			colPosVCF:     "na",
			colRefVCF:     "na",
			colAltVCF:     "na",
			colChromosome: "na",
		}),
	)

	a := New(path, "GRCh38")
	var recs []datasource.MissenseRecord
	_, err := a.FetchMissense(context.Background(), "KCNH2", func(r datasource.MissenseRecord) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.False(t, recs[0].Features.Position.IsSet())
	assert.False(t, recs[0].Features.Chrom.IsSet())
	assert.False(t, recs[0].Features.Ref.IsSet())
}

func TestFetchLOF(t *testing.T) {
	path := writeSummary(t,
		summaryRow(map[int]string{
			colName:         "NM_000238.4(KCNH2):c.1600C>T (p.Arg534*)",
			colGeneSymbol:   "KCNH2",
			colClinicalSig:  "Pathogenic",
			colReviewStatus: "criteria provided, multiple submitters, no conflicts",
		}),
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.2398+1G>A",
			colGeneSymbol: "KCNH2",
		}),
		// Missense: not a LOF record.
		summaryRow(map[int]string{
			colName:       "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)",
			colGeneSymbol: "KCNH2",
		}),
	)

	a := New(path, "GRCh38")
	var recs []datasource.LOFRecord
	stats, err := a.FetchLOF(context.Background(), "KCNH2", func(r datasource.LOFRecord) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, stats.Emitted)
	assert.Equal(t, 1, stats.Skipped)

	assert.Equal(t, "c.1600C>T", recs[0].HGVSc)
	lofType, ok := recs[0].Features.LOFType.Get()
	require.True(t, ok)
	assert.Equal(t, "nonsense", lofType)
	hgvsP, ok := recs[0].Features.HGVSp.Get()
	require.True(t, ok)
	assert.Equal(t, "p.Arg534Ter", hgvsP)

	assert.Equal(t, "c.2398+1G>A", recs[1].HGVSc)
	lofType, ok = recs[1].Features.LOFType.Get()
	require.True(t, ok)
	assert.Equal(t, "splice_donor", lofType)
}

func TestMissingDataFileIsHardFailure(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nope.txt.gz"), "GRCh38")
	_, err := a.FetchMissense(context.Background(), "KCNH2", func(datasource.MissenseRecord) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.txt.gz")
	assert.Contains(t, err.Error(), SummaryURL)
}
