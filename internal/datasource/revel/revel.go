// Package revel reads the REVEL ensemble pathogenicity scores from the
// published per-variant CSV. REVEL rows carry genomic coordinates and amino
// acid letters but no transcript-anchored protein notation, so records are
// emitted coordinate-keyed and claimed later by an identity-keyed write for
// the same position.
package revel

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/datasource"
	"github.com/inodb/variantfeatures/internal/store"
)

// DownloadURL is where the REVEL release archive lives; the CSV inside the
// zip is what this adapter reads.
const DownloadURL = "https://rothsj06.dmz.hpc.mssm.edu/revel-v1.3_all_chromosomes.zip"

// Adapter reads revel_with_transcript_ids.csv (optionally gzipped). Rows are
// matched to a gene through its canonical Ensembl transcript, since the file
// has no gene symbol column.
type Adapter struct {
	path        string
	transcripts map[string]string // gene symbol -> Ensembl transcript ID (unversioned)
	logger      *zap.Logger
}

func New(path string, transcripts map[string]string) *Adapter {
	return &Adapter{path: path, transcripts: transcripts, logger: zap.NewNop()}
}

func (a *Adapter) SetLogger(l *zap.Logger) {
	if l != nil {
		a.logger = l
	}
}

func (a *Adapter) Name() string    { return "revel" }
func (a *Adapter) Version() string { return "1.3" }

// column indices in revel_with_transcript_ids.csv, resolved from the header.
type columnIndices struct {
	chr          int
	grch38Pos    int
	ref          int
	alt          int
	score        int
	transcriptID int
}

func parseHeader(record []string) (*columnIndices, error) {
	idx := columnIndices{chr: -1, grch38Pos: -1, ref: -1, alt: -1, score: -1, transcriptID: -1}
	for i, name := range record {
		switch name {
		case "chr":
			idx.chr = i
		case "grch38_pos":
			idx.grch38Pos = i
		case "ref":
			idx.ref = i
		case "alt":
			idx.alt = i
		case "REVEL":
			idx.score = i
		case "Ensembl_transcriptid":
			idx.transcriptID = i
		}
	}
	if idx.chr < 0 || idx.grch38Pos < 0 || idx.ref < 0 || idx.alt < 0 || idx.score < 0 || idx.transcriptID < 0 {
		return nil, fmt.Errorf("unexpected header: %v", record)
	}
	return &idx, nil
}

// FetchCoords streams REVEL scores for the gene's canonical transcript as
// coordinate-keyed records on GRCh38. Rows without a lifted-over GRCh38
// position or with an unparseable score are skipped.
func (a *Adapter) FetchCoords(ctx context.Context, gene string, emit func(datasource.CoordRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats

	transcript, ok := a.transcripts[gene]
	if !ok {
		return stats, fmt.Errorf("no Ensembl transcript configured for gene %s", gene)
	}

	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, fmt.Errorf(
				"revel data file not found at %s (download from %s and extract): %w",
				a.path, DownloadURL, err)
		}
		return stats, fmt.Errorf("open revel data: %w", err)
	}
	defer f.Close()

	var src io.Reader = bufio.NewReaderSize(f, 1024*1024)
	if strings.HasSuffix(a.path, ".gz") {
		gz, err := gzip.NewReader(src)
		if err != nil {
			return stats, fmt.Errorf("read revel data %s: %w", a.path, err)
		}
		defer gz.Close()
		src = gz
	}

	r := csv.NewReader(src)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("read revel header: %w", err)
	}
	idx, err := parseHeader(header)
	if err != nil {
		return stats, fmt.Errorf("revel data %s: %w", a.path, err)
	}

	lines := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading revel data: %w", err)
		}

		lines++
		if lines%1000000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			a.logger.Debug("scanning revel data",
				zap.String("gene", gene), zap.Int("lines", lines))
		}

		// Ensembl_transcriptid is a ;-joined list of overlapping transcripts.
		if !containsTranscript(record[idx.transcriptID], transcript) {
			continue
		}

		pos, err := strconv.ParseInt(record[idx.grch38Pos], 10, 64)
		if err != nil || pos <= 0 {
			// "." means no GRCh38 liftover for this row.
			stats.Skipped++
			continue
		}
		score, err := strconv.ParseFloat(record[idx.score], 64)
		if err != nil {
			stats.Skipped++
			continue
		}

		coords := store.Coords{
			Chrom:    record[idx.chr],
			Position: pos,
			Ref:      record[idx.ref],
			Alt:      record[idx.alt],
			Assembly: "GRCh38",
		}
		feats := store.MissenseFeatures{
			RevelScore:   store.Set(score),
			TranscriptID: store.Set(transcript),
		}

		stats.Emitted++
		if err := emit(datasource.CoordRecord{Coords: coords, Features: feats}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func containsTranscript(list, want string) bool {
	for list != "" {
		var head string
		head, list, _ = strings.Cut(list, ";")
		// Stored IDs may carry a version suffix.
		if id, _, _ := strings.Cut(head, "."); id == want {
			return true
		}
	}
	return false
}
