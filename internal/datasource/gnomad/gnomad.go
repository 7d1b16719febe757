// Package gnomad queries the gnomAD GraphQL API for population allele
// frequencies, loss-of-function variant calls, and gene-level constraint
// metrics. The public endpoint is rate limited, so the client inserts a
// fixed delay between requests.
package gnomad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/datasource"
	"github.com/inodb/variantfeatures/internal/hgvs"
	"github.com/inodb/variantfeatures/internal/lof"
	"github.com/inodb/variantfeatures/internal/store"
)

// DefaultBaseURL is the public gnomAD GraphQL endpoint.
const DefaultBaseURL = "https://gnomad.broadinstitute.org/api"

// DefaultDataset selects the gnomAD release queried for variants.
const DefaultDataset = "gnomad_r4"

// requestDelay paces requests against the public endpoint's rate limit.
const requestDelay = 6 * time.Second

// Adapter is a gnomAD GraphQL client. It serves missense frequencies,
// loss-of-function calls, and gene constraint from the same per-gene query.
type Adapter struct {
	baseURL    string
	dataset    string
	httpClient *http.Client
	logger     *zap.Logger
	delay      time.Duration
	lastCall   time.Time
}

func New() *Adapter {
	return NewWithURL(DefaultBaseURL)
}

// NewWithURL creates an adapter against a non-default endpoint.
func NewWithURL(baseURL string) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		dataset: DefaultDataset,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: zap.NewNop(),
		delay:  requestDelay,
	}
}

func (a *Adapter) SetLogger(l *zap.Logger) {
	if l != nil {
		a.logger = l
	}
}

// SetDelay overrides the pacing between requests; zero disables it.
func (a *Adapter) SetDelay(d time.Duration) { a.delay = d }

func (a *Adapter) Name() string    { return "gnomad" }
func (a *Adapter) Version() string { return a.dataset }

const geneQuery = `
query VariantsInGene($geneSymbol: String!, $dataset: DatasetId!, $referenceGenome: ReferenceGenomeId!) {
  gene(gene_symbol: $geneSymbol, reference_genome: $referenceGenome) {
    gene_id
    canonical_transcript_id
    strand
    transcripts {
      transcript_id
      exons {
        feature_type
        start
        stop
      }
    }
    gnomad_constraint {
      pli
      oe_lof
      oe_lof_lower
      oe_lof_upper
    }
    variants(dataset: $dataset) {
      variant_id
      chrom
      pos
      ref
      alt
      consequence
      hgvsc
      hgvsp
      transcript_id
      flags
      lof
      lof_flags
      exome {
        af
        af_popmax
        homozygote_count
      }
      genome {
        af
        af_popmax
        homozygote_count
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type geneResponse struct {
	Gene *struct {
		GeneID                string       `json:"gene_id"`
		CanonicalTranscriptID string       `json:"canonical_transcript_id"`
		Strand                string       `json:"strand"`
		Transcripts           []transcript `json:"transcripts"`
		Constraint            *struct {
			PLI        *float64 `json:"pli"`
			OELOF      *float64 `json:"oe_lof"`
			OELOFLower *float64 `json:"oe_lof_lower"`
			OELOFUpper *float64 `json:"oe_lof_upper"`
		} `json:"gnomad_constraint"`
		Variants []gnomadVariant `json:"variants"`
	} `json:"gene"`
}

type gnomadVariant struct {
	VariantID    string          `json:"variant_id"`
	Chrom        string          `json:"chrom"`
	Pos          int64           `json:"pos"`
	Ref          string          `json:"ref"`
	Alt          string          `json:"alt"`
	Consequence  string          `json:"consequence"`
	HGVSc        string          `json:"hgvsc"`
	HGVSp        string          `json:"hgvsp"`
	TranscriptID string          `json:"transcript_id"`
	Flags        []string        `json:"flags"`
	LOF          string          `json:"lof"`
	LOFFlags     string          `json:"lof_flags"`
	Exome        *frequencyGroup `json:"exome"`
	Genome       *frequencyGroup `json:"genome"`
}

type frequencyGroup struct {
	AF              *float64 `json:"af"`
	AFPopmax        *float64 `json:"af_popmax"`
	HomozygoteCount *int64   `json:"homozygote_count"`
}

type transcript struct {
	TranscriptID string `json:"transcript_id"`
	Exons        []exon `json:"exons"`
}

type exon struct {
	FeatureType string `json:"feature_type"`
	Start       int64  `json:"start"`
	Stop        int64  `json:"stop"`
}

// codingModel is the canonical transcript's CDS layout, enough to place a
// truncating variant within the protein: total coding length gives the
// protein length, and the terminal coding exon bounds the last-exon test.
type codingModel struct {
	proteinLength int
	lastStart     int64
	lastStop      int64
}

// codingModel derives the CDS layout from the canonical transcript's exons,
// or nil when the response carries no usable coding exons. The terminal
// coding exon is strand-dependent.
func (g *geneResponse) codingModel() *codingModel {
	var exons []exon
	for _, t := range g.Gene.Transcripts {
		if t.TranscriptID != g.Gene.CanonicalTranscriptID {
			continue
		}
		for _, e := range t.Exons {
			if e.FeatureType == "CDS" && e.Stop >= e.Start {
				exons = append(exons, e)
			}
		}
	}
	if len(exons) == 0 {
		return nil
	}

	var total int64
	last := exons[0]
	for _, e := range exons {
		total += e.Stop - e.Start + 1
		if (g.Gene.Strand == "-" && e.Start < last.Start) ||
			(g.Gene.Strand != "-" && e.Start > last.Start) {
			last = e
		}
	}
	// Coding length includes the stop codon.
	length := int(total/3) - 1
	if length <= 0 {
		return nil
	}
	return &codingModel{proteinLength: length, lastStart: last.Start, lastStop: last.Stop}
}

func (m *codingModel) lastExonContains(pos int64) bool {
	return pos >= m.lastStart && pos <= m.lastStop
}

// query runs one GraphQL request and decodes the data envelope into out.
// GraphQL transport errors and error-list responses both fail hard.
func (a *Adapter) query(ctx context.Context, query string, vars map[string]any, out any) error {
	if a.delay > 0 {
		if wait := a.delay - time.Since(a.lastCall); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	a.lastCall = time.Now()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode gnomad query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gnomad request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gnomad request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gnomad API error %d: %s", resp.StatusCode, string(msg))
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode gnomad response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("gnomad query error: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

// fetchGene runs the per-gene query once. Callers pick out the slice of the
// response they need.
func (a *Adapter) fetchGene(ctx context.Context, gene string) (*geneResponse, error) {
	var out geneResponse
	err := a.query(ctx, geneQuery, map[string]any{
		"geneSymbol":      gene,
		"dataset":         a.dataset,
		"referenceGenome": "GRCh38",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Gene == nil {
		return nil, fmt.Errorf("gnomad: gene %s not found", gene)
	}
	return &out, nil
}

// frequencies resolves the allele frequency columns, preferring exome
// numbers and falling back to genome. Homozygote counts from both call sets
// are summed.
func (v *gnomadVariant) frequencies(version string) (store.MissenseFeatures, bool) {
	var feats store.MissenseFeatures
	group := v.Exome
	if group == nil || group.AF == nil {
		group = v.Genome
	}
	if group == nil || group.AF == nil {
		return feats, false
	}
	feats.GnomadAF = store.Set(*group.AF)
	if group.AFPopmax != nil {
		feats.GnomadAFPopmax = store.Set(*group.AFPopmax)
	}
	var homs int64
	for _, g := range []*frequencyGroup{v.Exome, v.Genome} {
		if g != nil && g.HomozygoteCount != nil {
			homs += *g.HomozygoteCount
		}
	}
	feats.GnomadHomozygotes = store.Set(homs)
	feats.GnomadVersion = store.Set(version)
	return feats, true
}

// FetchMissense streams missense variants carrying population frequencies,
// keyed by protein identity.
func (a *Adapter) FetchMissense(ctx context.Context, gene string, emit func(datasource.MissenseRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats

	resp, err := a.fetchGene(ctx, gene)
	if err != nil {
		return stats, err
	}

	for _, v := range resp.Gene.Variants {
		if v.Consequence != "missense_variant" {
			continue
		}
		hgvsP, ok := hgvs.NormalizeProtein(v.HGVSp)
		if !ok {
			stats.Skipped++
			continue
		}
		feats, ok := v.frequencies(a.dataset)
		if !ok {
			stats.Skipped++
			continue
		}
		if v.HGVSc != "" {
			feats.HGVSc = store.Set(v.HGVSc)
		}
		if v.TranscriptID != "" {
			feats.TranscriptID = store.Set(v.TranscriptID)
		}
		feats.Chrom = store.Set(v.Chrom)
		feats.Position = store.Set(v.Pos)
		feats.Ref = store.Set(v.Ref)
		feats.Alt = store.Set(v.Alt)
		feats.Assembly = store.Set("GRCh38")

		stats.Emitted++
		if err := emit(datasource.MissenseRecord{HGVSp: hgvsP, Features: feats}); err != nil {
			return stats, err
		}
	}
	a.logger.Debug("gnomad missense fetched",
		zap.String("gene", gene), zap.Int("emitted", stats.Emitted), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// FetchLOF streams loss-of-function variants keyed by coding identity.
// Classification comes from the variant's consequence and notation rather
// than trusting the LOFTEE call alone, but the LOFTEE confidence and flags
// are carried through. When the response carries the canonical transcript's
// coding exons, each record also gets its truncation fraction (from the
// protein notation), last-exon placement, and the resulting escape
// prediction for nonsense-mediated decay.
func (a *Adapter) FetchLOF(ctx context.Context, gene string, emit func(datasource.LOFRecord) error) (datasource.Stats, error) {
	gene = store.NormalizeGene(gene)
	var stats datasource.Stats

	resp, err := a.fetchGene(ctx, gene)
	if err != nil {
		return stats, err
	}
	cds := resp.codingModel()

	for _, v := range resp.Gene.Variants {
		if v.LOF == "" {
			continue
		}
		if v.HGVSc == "" {
			stats.Skipped++
			continue
		}
		lofType, ok := lof.Classify(v.HGVSc, v.HGVSp, v.Consequence)
		if !ok {
			stats.Skipped++
			continue
		}

		feats := store.LOFFeatures{
			LOFType:    store.Set(string(lofType)),
			Confidence: store.Set(v.LOF),
		}
		if v.LOFFlags != "" {
			feats.Flags = store.Set(v.LOFFlags)
		}
		if hgvsP, ok := hgvs.NormalizeProtein(v.HGVSp); ok {
			feats.HGVSp = store.Set(hgvsP)
		}
		if v.TranscriptID != "" {
			feats.TranscriptID = store.Set(v.TranscriptID)
		}
		if cds != nil {
			last := cds.lastExonContains(v.Pos)
			feats.LastExon = store.Set(last)
			// Splice variants have no protein position; their escape call
			// rests on last-exon placement alone.
			frac := 0.0
			if pos, ok := hgvs.ProteinPosition(v.HGVSp); ok {
				frac = lof.TruncationFraction(pos, cds.proteinLength)
				feats.TruncationFraction = store.Set(frac)
			}
			feats.NMDEscape = store.Set(lof.PredictNMDEscape(frac, last))
		}
		feats.Chrom = store.Set(v.Chrom)
		feats.Position = store.Set(v.Pos)
		feats.Ref = store.Set(v.Ref)
		feats.Alt = store.Set(v.Alt)
		feats.Assembly = store.Set("GRCh38")

		if freq, ok := v.frequencies(a.dataset); ok {
			feats.GnomadAF = freq.GnomadAF
			feats.GnomadAFPopmax = freq.GnomadAFPopmax
			feats.GnomadHomozygotes = freq.GnomadHomozygotes
			feats.GnomadVersion = freq.GnomadVersion
		}

		stats.Emitted++
		if err := emit(datasource.LOFRecord{HGVSc: v.HGVSc, Features: feats}); err != nil {
			return stats, err
		}
	}
	a.logger.Debug("gnomad lof fetched",
		zap.String("gene", gene), zap.Int("emitted", stats.Emitted), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// FetchConstraint returns the gene's constraint metrics (pLI and the LOF
// observed/expected ratio with its confidence bounds) plus stable
// identifiers. A gene without published constraint still resolves; the
// metric fields just stay absent.
func (a *Adapter) FetchConstraint(ctx context.Context, gene string) (*store.GeneFeatures, error) {
	gene = store.NormalizeGene(gene)

	resp, err := a.fetchGene(ctx, gene)
	if err != nil {
		return nil, err
	}

	feats := &store.GeneFeatures{}
	if id := resp.Gene.GeneID; id != "" {
		feats.EnsemblGeneID = store.Set(id)
	}
	if id := resp.Gene.CanonicalTranscriptID; id != "" {
		feats.CanonicalTranscript = store.Set(strings.TrimSpace(id))
	}
	if c := resp.Gene.Constraint; c != nil {
		if c.PLI != nil {
			feats.PLI = store.Set(*c.PLI)
		}
		if c.OELOF != nil {
			feats.LOEUF = store.Set(*c.OELOF)
		}
		if c.OELOFLower != nil {
			feats.LOEUFLower = store.Set(*c.OELOFLower)
		}
		if c.OELOFUpper != nil {
			feats.LOEUFUpper = store.Set(*c.OELOFUpper)
		}
	}
	return feats, nil
}
