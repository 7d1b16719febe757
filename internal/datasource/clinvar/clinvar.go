package clinvar

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
	"github.com/inodb/variantfeatures/internal/lof"
	"github.com/inodb/variantfeatures/internal/store"
)

// SummaryURL is where NCBI publishes the tab-delimited variant summary.
const SummaryURL = "https://ftp.ncbi.nlm.nih.gov/pub/clinvar/tab_delimited/variant_summary.txt.gz"

// Column indices (0-based) in variant_summary.txt.
const (
	colType          = 1
	colName          = 2
	colGeneSymbol    = 4
	colClinicalSig   = 6
	colLastEvaluated = 8
	colAssembly      = 16
	colChromosome    = 18
	colReviewStatus  = 24
	colVariationID   = 30
	colPosVCF        = 31
	colRefVCF        = 32
	colAltVCF        = 33
)

const minColumns = 34

// Adapter streams ClinVar records for a gene from a local
// variant_summary.txt.gz file. It speaks free-text clinical nomenclature;
// identity normalization happens here so the store only ever sees canonical
// identifiers.
type Adapter struct {
	path     string
	assembly string
	logger   *zap.Logger
}

// New creates a ClinVar adapter reading the given variant_summary.txt.gz
// for the given assembly ("GRCh38" or "GRCh37").
func New(path, assembly string) *Adapter {
	return &Adapter{path: path, assembly: assembly, logger: zap.NewNop()}
}

// SetLogger sets the logger for per-row diagnostics.
func (a *Adapter) SetLogger(l *zap.Logger) {
	a.logger = l
}

func (a *Adapter) Name() string    { return "clinvar" }
func (a *Adapter) Version() string { return "variant_summary" }

// open opens the summary file. A missing file is a hard adapter failure and
// includes the expected path so the operator can download it.
func (a *Adapter) open() (*os.File, *gzip.Reader, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf(
				"clinvar data file not found at %s (download from %s): %w",
				a.path, SummaryURL, err)
		}
		return nil, nil, fmt.Errorf("open clinvar summary: %w", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read clinvar summary %s: %w", a.path, err)
	}
	return f, gz, nil
}

// FetchMissense streams single-nucleotide missense records for a gene.
// Rows whose clinical name carries no parseable protein substitution are
// skipped and counted; duplicate surface forms for the same normalized
// identity dedup to one record.
func (a *Adapter) FetchMissense(ctx context.Context, gene string, emit func(datasource.MissenseRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats
	seen := make(map[string]bool)

	err := a.scan(ctx, gene, func(fields []string) error {
		hgvsP, ok := hgvs.ParseProteinChange(fields[colName])
		if !ok {
			stats.Skipped++
			return nil
		}
		// Missense records are substitutions; truncating variants belong
		// to the LOF table.
		if strings.Contains(hgvsP, "Ter") {
			stats.Skipped++
			return nil
		}
		if seen[hgvsP] {
			stats.Skipped++
			return nil
		}
		seen[hgvsP] = true

		feats := store.MissenseFeatures{
			ClinVarSignificance: store.Set(fields[colClinicalSig]),
			ClinVarReviewStatus: store.Set(fields[colReviewStatus]),
			ClinVarStars:        store.Set(ReviewStars(fields[colReviewStatus])),
		}
		a.fillCommon(fields, &feats.HGVSc, &feats.Chrom, &feats.Position,
			&feats.Ref, &feats.Alt, &feats.Assembly,
			&feats.ClinVarID, &feats.ClinVarLastEvaluated)

		stats.Emitted++
		return emit(datasource.MissenseRecord{HGVSp: hgvsP, Features: feats})
	})
	return stats, err
}

// FetchLOF streams loss-of-function records for a gene: rows whose notation
// or name classify as nonsense, frameshift, or splice disruption. Records
// without a parseable coding-change identifier are skipped (the LOF table
// has no identity for them).
func (a *Adapter) FetchLOF(ctx context.Context, gene string, emit func(datasource.LOFRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats
	seen := make(map[string]bool)

	err := a.scan(ctx, gene, func(fields []string) error {
		name := fields[colName]
		hgvsC, okC := hgvs.ParseCodingChange(name)
		hgvsP, _ := hgvs.ParseProteinChange(name)

		lofType, ok := lof.Classify(hgvsC, hgvsP, consequenceFromName(name))
		if !ok {
			stats.Skipped++
			return nil
		}
		if !okC {
			stats.Skipped++
			return nil
		}
		if seen[hgvsC] {
			stats.Skipped++
			return nil
		}
		seen[hgvsC] = true

		feats := store.LOFFeatures{
			LOFType:             store.Set(string(lofType)),
			ClinVarSignificance: store.Set(fields[colClinicalSig]),
			ClinVarReviewStatus: store.Set(fields[colReviewStatus]),
			ClinVarStars:        store.Set(ReviewStars(fields[colReviewStatus])),
		}
		if hgvsP != "" {
			feats.HGVSp = store.Set(hgvsP)
		}
		a.fillCommon(fields, nil, &feats.Chrom, &feats.Position,
			&feats.Ref, &feats.Alt, &feats.Assembly,
			&feats.ClinVarID, &feats.ClinVarLastEvaluated)

		stats.Emitted++
		return emit(datasource.LOFRecord{HGVSc: hgvsC, Features: feats})
	})
	return stats, err
}

// scan walks the summary file and calls fn for rows matching the gene and
// assembly filters.
func (a *Adapter) scan(ctx context.Context, gene string, fn func(fields []string) error) error {
	f, gz, err := a.open()
	if err != nil {
		return err
	}
	defer f.Close()
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	// Skip header
	if !scanner.Scan() {
		return fmt.Errorf("clinvar summary %s: empty file", a.path)
	}

	lines := 0
	for scanner.Scan() {
		lines++
		if lines%500000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.logger.Debug("scanning clinvar summary",
				zap.String("gene", gene), zap.Int("lines", lines))
		}

		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < minColumns {
			continue
		}
		if fields[colGeneSymbol] != gene {
			continue
		}
		if fields[colAssembly] != a.assembly {
			continue
		}
		if fields[colType] != "single nucleotide variant" {
			continue
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading clinvar summary: %w", err)
	}
	return nil
}

// fillCommon fills the columns shared by missense and LOF records:
// coding change, coordinates, variation ID, and last-evaluated date.
// Placeholder "na" values and malformed numbers become absent fields.
func (a *Adapter) fillCommon(
	fields []string,
	hgvsC *store.Field[string],
	chrom *store.Field[string], pos *store.Field[int64],
	ref, alt, assembly *store.Field[string],
	clinvarID *store.Field[int64], lastEval *store.Field[string],
) {
	if hgvsC != nil {
		if c, ok := hgvs.ParseCodingChange(fields[colName]); ok {
			*hgvsC = store.Set(c)
		}
	}
	if v := fields[colChromosome]; v != "" && v != "na" {
		*chrom = store.Set(v)
	}
	if p, err := strconv.ParseInt(fields[colPosVCF], 10, 64); err == nil && p > 0 {
		*pos = store.Set(p)
	}
	if v := fields[colRefVCF]; v != "" && v != "na" {
		*ref = store.Set(v)
	}
	if v := fields[colAltVCF]; v != "" && v != "na" {
		*alt = store.Set(v)
	}
	*assembly = store.Set(a.assembly)
	if id, err := strconv.ParseInt(fields[colVariationID], 10, 64); err == nil {
		*clinvarID = store.Set(id)
	}
	if d, ok := ParseEvaluatedDate(fields[colLastEvaluated]); ok {
		*lastEval = store.Set(d)
	}
}

// consequenceFromName derives a consequence tag for splice variants, whose
// clinical names carry intronic offsets (c.2398+1G>A) instead of protein
// notation. Donor sites sit after an exon (+offset), acceptor sites before
// one (-offset).
func consequenceFromName(name string) string {
	c, ok := hgvs.ParseCodingChange(name)
	if !ok {
		return ""
	}
	for i := 2; i < len(c); i++ {
		if c[i] == '+' && i+1 < len(c) && isDigit(c[i+1]) && isDigit(c[i-1]) {
			return "splice_donor_variant"
		}
		if c[i] == '-' && i+1 < len(c) && isDigit(c[i+1]) && isDigit(c[i-1]) {
			return "splice_acceptor_variant"
		}
	}
	return ""
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
