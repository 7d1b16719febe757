// Package alphamissense streams AlphaMissense pathogenicity predictions
// from the official amino-acid substitutions TSV (Cheng et al., Science
// 2023, CC BY 4.0). The file speaks compact single-letter substitution
// codes; this adapter converts them to the same canonical protein-change
// identifiers the clinical sources produce, so both merge onto one row.
package alphamissense

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/datasource"
	"github.com/inodb/variantfeatures/internal/hgvs"
	"github.com/inodb/variantfeatures/internal/store"
)

// DownloadURL is the official substitutions file (~1GB compressed).
const DownloadURL = "https://storage.googleapis.com/dm_alphamissense/AlphaMissense_aa_substitutions.tsv.gz"

// Adapter streams AlphaMissense scores for a gene, filtered by UniProt
// accession. The gene-to-UniProt table is immutable configuration supplied
// at construction.
type Adapter struct {
	path    string
	uniprot map[string]string
	logger  *zap.Logger
}

// New creates an AlphaMissense adapter over the given TSV file. uniprot
// maps upper-case gene symbols to UniProt accessions.
func New(path string, uniprot map[string]string) *Adapter {
	return &Adapter{path: path, uniprot: uniprot, logger: zap.NewNop()}
}

// SetLogger sets the logger for progress diagnostics.
func (a *Adapter) SetLogger(l *zap.Logger) {
	a.logger = l
}

func (a *Adapter) Name() string    { return "alphamissense" }
func (a *Adapter) Version() string { return "2023" }

// FetchMissense streams scores for every substitution of the gene's protein.
// Rows with unparseable substitution codes are skipped and counted;
// malformed scores are treated as absent values, not parse failures.
func (a *Adapter) FetchMissense(ctx context.Context, gene string, emit func(datasource.MissenseRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats

	accession, ok := a.uniprot[gene]
	if !ok {
		return stats, fmt.Errorf("no UniProt accession configured for gene %s", gene)
	}

	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, fmt.Errorf(
				"alphamissense data file not found at %s (download from %s): %w",
				a.path, DownloadURL, err)
		}
		return stats, fmt.Errorf("open alphamissense data: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return stats, fmt.Errorf("read alphamissense data %s: %w", a.path, err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	// The file opens with copyright comment lines, then a header row.
	var idx *columnIndices
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if idx == nil {
			indices, err := parseHeader(line)
			if err != nil {
				return stats, fmt.Errorf("alphamissense data %s: %w", a.path, err)
			}
			idx = indices
			continue
		}

		lines++
		if lines%1000000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			a.logger.Debug("scanning alphamissense data",
				zap.String("gene", gene), zap.Int("lines", lines))
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= idx.max() {
			continue
		}
		if fields[idx.uniprotID] != accession {
			continue
		}

		// protein_variant is either "GENE_A123V" or plain "A123V".
		code := fields[idx.proteinVariant]
		if i := strings.IndexByte(code, '_'); i >= 0 {
			code = code[i+1:]
		}
		hgvsP, ok := hgvs.FromCompact(code)
		if !ok {
			stats.Skipped++
			continue
		}

		feats := store.MissenseFeatures{
			AlphaMissenseClass: store.Set(fields[idx.class]),
		}
		if score, err := strconv.ParseFloat(fields[idx.pathogenicity], 64); err == nil {
			feats.AlphaMissenseScore = store.Set(score)
		}

		stats.Emitted++
		if err := emit(datasource.MissenseRecord{HGVSp: hgvsP, Features: feats}); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading alphamissense data: %w", err)
	}
	if idx == nil {
		return stats, fmt.Errorf("alphamissense data %s: no header found", a.path)
	}
	return stats, nil
}

type columnIndices struct {
	uniprotID      int
	proteinVariant int
	pathogenicity  int
	class          int
}

func (c *columnIndices) max() int {
	m := c.uniprotID
	for _, i := range []int{c.proteinVariant, c.pathogenicity, c.class} {
		if i > m {
			m = i
		}
	}
	return m
}

func parseHeader(line string) (*columnIndices, error) {
	idx := &columnIndices{uniprotID: -1, proteinVariant: -1, pathogenicity: -1, class: -1}
	for i, name := range strings.Split(line, "\t") {
		switch name {
		case "uniprot_id":
			idx.uniprotID = i
		case "protein_variant":
			idx.proteinVariant = i
		case "am_pathogenicity":
			idx.pathogenicity = i
		case "am_class":
			idx.class = i
		}
	}
	if idx.uniprotID < 0 || idx.proteinVariant < 0 || idx.pathogenicity < 0 || idx.class < 0 {
		return nil, fmt.Errorf("missing expected columns in header")
	}
	return idx, nil
}
