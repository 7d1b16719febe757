package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func kcnh2Coords(pos int64, ref, alt string) Coords {
	return Coords{Chrom: "7", Position: pos, Ref: ref, Alt: alt, Assembly: "GRCh38"}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
}

func TestUpsertMissenseInsertAndGet(t *testing.T) {
	s := openInMemory(t)

	err := s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		HGVSc:               Set("c.1682C>T"),
		Chrom:               Set("7"),
		Position:            Set[int64](150951325),
		Ref:                 Set("G"),
		Alt:                 Set("A"),
		Assembly:            Set("GRCh38"),
		ClinVarSignificance: Set("Pathogenic"),
		ClinVarStars:        Set(3),
	})
	require.NoError(t, err)

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "KCNH2", m.Gene)
	require.NotNil(t, m.HGVSc)
	assert.Equal(t, "c.1682C>T", *m.HGVSc)
	require.NotNil(t, m.ClinVarStars)
	assert.Equal(t, 3, *m.ClinVarStars)
	assert.Nil(t, m.AlphaMissenseScore)

	missing, err := s.GetMissense("KCNH2", "p.Gly628Ser")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertMissenseGeneCaseNormalized(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertMissense("kcnh2", "p.Ala561Val", MissenseFeatures{}))

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "KCNH2", m.Gene)
}

// Applying the same feature set twice yields the same row, apart from the
// refreshed update timestamp.
func TestUpsertMissenseIdempotent(t *testing.T) {
	s := openInMemory(t)

	feats := MissenseFeatures{
		AlphaMissenseScore: Set(0.91),
		AlphaMissenseClass: Set("likely_pathogenic"),
	}
	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", feats))
	first, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", feats))
	second, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))
	second.UpdatedAt = first.UpdatedAt
	assert.Equal(t, first, second)

	n, err := s.CountMissense("KCNH2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// Merging a feature set touching only some columns must leave every other
// previously stored column untouched.
func TestUpsertMissenseNonClobbering(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		ClinVarSignificance: Set("Pathogenic"),
		ClinVarReviewStatus: Set("reviewed by expert panel"),
		ClinVarStars:        Set(3),
	}))

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		AlphaMissenseScore: Set(0.91),
	}))

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m.AlphaMissenseScore)
	assert.Equal(t, 0.91, *m.AlphaMissenseScore)
	require.NotNil(t, m.ClinVarSignificance)
	assert.Equal(t, "Pathogenic", *m.ClinVarSignificance)
	require.NotNil(t, m.ClinVarStars)
	assert.Equal(t, 3, *m.ClinVarStars)
}

// A zero score and an absent score are distinct states.
func TestZeroScoreDistinctFromAbsent(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Met1Ala", MissenseFeatures{
		RevelScore: Set(0.0),
	}))

	m, err := s.GetMissense("KCNH2", "p.Met1Ala")
	require.NoError(t, err)
	require.NotNil(t, m.RevelScore)
	assert.Equal(t, 0.0, *m.RevelScore)
	assert.Nil(t, m.AlphaMissenseScore)
}

func TestSetNullOverwritesStoredValue(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Met1Ala", MissenseFeatures{
		RevelScore: Set(0.7),
	}))
	require.NoError(t, s.UpsertMissense("KCNH2", "p.Met1Ala", MissenseFeatures{
		RevelScore: SetNull[float64](),
	}))

	m, err := s.GetMissense("KCNH2", "p.Met1Ala")
	require.NoError(t, err)
	assert.Nil(t, m.RevelScore)
}

func TestSetPtrKeepsExistingOnNil(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Met1Ala", MissenseFeatures{
		RevelScore: Set(0.7),
	}))

	// A source with no REVEL value for this variant must not clear it.
	require.NoError(t, s.UpsertMissense("KCNH2", "p.Met1Ala", MissenseFeatures{
		AlphaMissenseScore: Set(0.2),
		RevelScore:         SetPtr[float64](nil),
	}))

	m, err := s.GetMissense("KCNH2", "p.Met1Ala")
	require.NoError(t, err)
	require.NotNil(t, m.RevelScore)
	assert.Equal(t, 0.7, *m.RevelScore)
}

func TestUpsertMissenseRejectsInvalidStars(t *testing.T) {
	s := openInMemory(t)

	err := s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		ClinVarStars: Set(5),
	})
	require.ErrorIs(t, err, ErrInvalidStars)

	err = s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		ClinVarStars: Set(-1),
	})
	require.ErrorIs(t, err, ErrInvalidStars)
}

func TestUpsertMissenseRejectsMissingIdentity(t *testing.T) {
	s := openInMemory(t)

	require.ErrorIs(t, s.UpsertMissense("", "p.Ala561Val", MissenseFeatures{}), ErrMissingIdentity)
	require.ErrorIs(t, s.UpsertMissense("KCNH2", "", MissenseFeatures{}), ErrMissingIdentity)
}

// A coordinate-only row is claimed by the first identity-keyed write for the
// same coordinates instead of creating a second row for the same variant.
func TestCoordinateRowAdoption(t *testing.T) {
	s := openInMemory(t)
	c := kcnh2Coords(150951325, "G", "A")

	require.NoError(t, s.UpsertMissenseByCoords("KCNH2", c, MissenseFeatures{
		RevelScore: Set(0.83),
	}))

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		Chrom:              Set(c.Chrom),
		Position:           Set(c.Position),
		Ref:                Set(c.Ref),
		Alt:                Set(c.Alt),
		Assembly:           Set(c.Assembly),
		AlphaMissenseScore: Set(0.91),
	}))

	n, err := s.CountMissense("KCNH2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, m.RevelScore)
	assert.Equal(t, 0.83, *m.RevelScore)
	require.NotNil(t, m.AlphaMissenseScore)
	assert.Equal(t, 0.91, *m.AlphaMissenseScore)
}

func TestUpsertMissenseByCoordsMergesExisting(t *testing.T) {
	s := openInMemory(t)
	c := kcnh2Coords(150951325, "G", "A")

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		Chrom:    Set(c.Chrom),
		Position: Set(c.Position),
		Ref:      Set(c.Ref),
		Alt:      Set(c.Alt),
		Assembly: Set(c.Assembly),
	}))

	require.NoError(t, s.UpsertMissenseByCoords("KCNH2", c, MissenseFeatures{
		RevelScore: Set(0.83),
	}))

	n, err := s.CountMissense("KCNH2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m.RevelScore)
	assert.Equal(t, 0.83, *m.RevelScore)
}

// The same coordinates claimed by two different protein identities is a
// cross-source identity conflict, surfaced as a distinguishable error.
func TestCrossSourceIdentityConflict(t *testing.T) {
	s := openInMemory(t)
	c := kcnh2Coords(150951325, "G", "A")

	coordFeats := MissenseFeatures{
		Chrom:    Set(c.Chrom),
		Position: Set(c.Position),
		Ref:      Set(c.Ref),
		Alt:      Set(c.Alt),
		Assembly: Set(c.Assembly),
	}

	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", coordFeats))

	err := s.UpsertMissense("KCNH2", "p.Gly628Ser", coordFeats)
	var conflict *IdentityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "missense_variants", conflict.Table)
	assert.Equal(t, "p.Gly628Ser", conflict.Claimed)
	assert.Equal(t, "p.Ala561Val", conflict.Existing)
	assert.Equal(t, c, conflict.Coords)

	// The conflicting write must not have modified the store.
	n, err := s.CountMissense("KCNH2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUpsertLOF(t *testing.T) {
	s := openInMemory(t)

	err := s.UpsertLOF("KCNH2", "c.1600C>T", LOFFeatures{
		HGVSp:              Set("p.Arg534Ter"),
		LOFType:            Set("nonsense"),
		NMDEscape:          Set(false),
		TruncationFraction: Set(0.46),
		LastExon:           Set(false),
		PLISnapshot:        Set(0.999),
	})
	require.NoError(t, err)

	v, err := s.GetLOF("KCNH2", "c.1600C>T")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.NotNil(t, v.LOFType)
	assert.Equal(t, "nonsense", *v.LOFType)
	require.NotNil(t, v.NMDEscape)
	assert.False(t, *v.NMDEscape)
	require.NotNil(t, v.PLISnapshot)
	assert.Equal(t, 0.999, *v.PLISnapshot)

	// Merge frequencies from a second source; classification stays put.
	require.NoError(t, s.UpsertLOF("KCNH2", "c.1600C>T", LOFFeatures{
		GnomadAF: Set(1.2e-6),
	}))
	v, err = s.GetLOF("KCNH2", "c.1600C>T")
	require.NoError(t, err)
	require.NotNil(t, v.GnomadAF)
	require.NotNil(t, v.LOFType)
	assert.Equal(t, "nonsense", *v.LOFType)
}

func TestUpsertLOFRequiresCodingIdentity(t *testing.T) {
	s := openInMemory(t)
	require.ErrorIs(t, s.UpsertLOF("KCNH2", "", LOFFeatures{}), ErrMissingIdentity)
}

func TestUpsertLOFCoordinateConflict(t *testing.T) {
	s := openInMemory(t)
	c := kcnh2Coords(150950000, "C", "T")

	coordFeats := LOFFeatures{
		Chrom:    Set(c.Chrom),
		Position: Set(c.Position),
		Ref:      Set(c.Ref),
		Alt:      Set(c.Alt),
		Assembly: Set(c.Assembly),
	}

	require.NoError(t, s.UpsertLOF("KCNH2", "c.1600C>T", coordFeats))

	err := s.UpsertLOF("KCNH2", "c.1601C>T", coordFeats)
	var conflict *IdentityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "lof_variants", conflict.Table)
}

func TestUpsertGene(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertGene("kcnh2", GeneFeatures{
		UniprotID:           Set("Q12809"),
		CanonicalTranscript: Set("ENST00000262186"),
	}))
	require.NoError(t, s.UpsertGene("KCNH2", GeneFeatures{
		PLI:   Set(0.999),
		LOEUF: Set(0.23),
	}))

	g, err := s.GetGene("KCNH2")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "KCNH2", g.Symbol)
	require.NotNil(t, g.UniprotID)
	assert.Equal(t, "Q12809", *g.UniprotID)
	require.NotNil(t, g.PLI)
	assert.Equal(t, 0.999, *g.PLI)
}

func TestUpsertPenetranceAtMostOneRow(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.UpsertPenetrance("lqt2", "KCNH2", "p.Ala561Val", PenetranceFeatures{
		PosteriorMean: Set(0.42),
		ModelVersion:  Set("v1"),
	}))
	require.NoError(t, s.UpsertPenetrance("lqt2", "KCNH2", "p.Ala561Val", PenetranceFeatures{
		PosteriorMean: Set(0.45),
	}))

	ests, err := s.GenePenetrance("KCNH2")
	require.NoError(t, err)
	require.Len(t, ests, 1)
	require.NotNil(t, ests[0].PosteriorMean)
	assert.Equal(t, 0.45, *ests[0].PosteriorMean)
	require.NotNil(t, ests[0].ModelVersion)
	assert.Equal(t, "v1", *ests[0].ModelVersion)
}

func TestBatchCommitVisibility(t *testing.T) {
	s := openInMemory(t)

	require.NoError(t, s.BeginBatch())
	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		AlphaMissenseScore: Set(0.91),
	}))

	// Merge reads inside the batch observe earlier batch writes.
	require.NoError(t, s.UpsertMissense("KCNH2", "p.Ala561Val", MissenseFeatures{
		RevelScore: Set(0.8),
	}))
	require.NoError(t, s.CommitBatch())

	n, err := s.CountMissense("KCNH2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	m, err := s.GetMissense("KCNH2", "p.Ala561Val")
	require.NoError(t, err)
	require.NotNil(t, m.AlphaMissenseScore)
	require.NotNil(t, m.RevelScore)
}
