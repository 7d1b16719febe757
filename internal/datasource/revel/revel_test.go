package revel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/variantfeatures/internal/datasource"
)

var testTranscripts = map[string]string{"KCNH2": "ENST00000262186"}

const revelHeader = "chr,hg19_pos,grch38_pos,ref,alt,aaref,aaalt,REVEL,Ensembl_transcriptid"

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revel_with_transcript_ids.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func fetch(t *testing.T, path, gene string) ([]datasource.CoordRecord, datasource.Stats, error) {
	t.Helper()
	a := New(path, testTranscripts)
	var recs []datasource.CoordRecord
	stats, err := a.FetchCoords(context.Background(), gene, func(r datasource.CoordRecord) error {
		recs = append(recs, r)
		return nil
	})
	return recs, stats, err
}

func TestFetchCoords(t *testing.T) {
	path := writeCSV(t,
		revelHeader,
		"7,150948477,150951389,G,A,A,V,0.932,ENST00000262186.10;ENST00000532957",
		"7,150948500,150951412,C,T,R,Q,0.541,ENST00000262186",
		"7,150948600,150951512,C,T,R,W,0.7,ENST00000999999",  // other transcript, filtered
		"7,150948700,.,C,G,P,A,0.3,ENST00000262186",           // no GRCh38 liftover
		"7,150948800,150951712,A,G,K,E,NA,ENST00000262186.10", // unscored
	)

	recs, stats, err := fetch(t, path, "KCNH2")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, stats.Emitted)
	assert.Equal(t, 2, stats.Skipped)

	assert.Equal(t, "7", recs[0].Coords.Chrom)
	assert.Equal(t, int64(150951389), recs[0].Coords.Position)
	assert.Equal(t, "G", recs[0].Coords.Ref)
	assert.Equal(t, "A", recs[0].Coords.Alt)
	assert.Equal(t, "GRCh38", recs[0].Coords.Assembly)
	score, ok := recs[0].Features.RevelScore.Get()
	require.True(t, ok)
	assert.Equal(t, 0.932, score)
	transcript, ok := recs[0].Features.TranscriptID.Get()
	require.True(t, ok)
	assert.Equal(t, "ENST00000262186", transcript)
}

func TestFetchCoordsUnknownGene(t *testing.T) {
	path := writeCSV(t, revelHeader)
	_, _, err := fetch(t, path, "NOTAGENE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTAGENE")
}

func TestFetchCoordsMissingFile(t *testing.T) {
	_, _, err := fetch(t, filepath.Join(t.TempDir(), "missing.csv"), "KCNH2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), DownloadURL)
}

func TestContainsTranscript(t *testing.T) {
	assert.True(t, containsTranscript("ENST00000262186", "ENST00000262186"))
	assert.True(t, containsTranscript("ENST00000111111;ENST00000262186.10", "ENST00000262186"))
	assert.False(t, containsTranscript("ENST00000111111", "ENST00000262186"))
	assert.False(t, containsTranscript("", "ENST00000262186"))
}
