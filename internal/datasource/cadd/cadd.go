// Package cadd looks up CADD deleteriousness scores for single variants via
// the public scoring API. Unlike the other sources it is not streamed per
// gene; the build pipeline uses it as an enrichment pass over rows that
// already carry genomic coordinates.
package cadd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/store"
)

// DefaultBaseURL is the public CADD scoring API.
const DefaultBaseURL = "https://cadd.gs.washington.edu/api/v1.0"

// DefaultRelease selects the score release queried.
const DefaultRelease = "GRCh38-v1.7"

// Client queries CADD scores one variant at a time.
type Client struct {
	baseURL    string
	release    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New() *Client {
	return NewWithURL(DefaultBaseURL)
}

// NewWithURL creates a client against a non-default endpoint.
func NewWithURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		release: DefaultRelease,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}
}

func (c *Client) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Client) Name() string    { return "cadd" }
func (c *Client) Version() string { return c.release }

// The API reports every score as a JSON string.
type caddRow struct {
	Ref      string `json:"Ref"`
	Alt      string `json:"Alt"`
	RawScore string `json:"RawScore"`
	PHRED    string `json:"PHRED"`
}

// Lookup fetches the PHRED-scaled and raw CADD scores for one GRCh38
// variant. A variant unknown to the API yields empty features and no error;
// malformed score strings leave the corresponding field absent.
func (c *Client) Lookup(ctx context.Context, chrom string, pos int64, ref, alt string) (store.MissenseFeatures, error) {
	var feats store.MissenseFeatures

	url := fmt.Sprintf("%s/%s/%s:%d_%s_%s", c.baseURL, c.release, chrom, pos, ref, alt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return feats, fmt.Errorf("build cadd request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return feats, fmt.Errorf("cadd request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return feats, nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return feats, fmt.Errorf("cadd API error %d: %s", resp.StatusCode, string(msg))
	}

	var rows []caddRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return feats, fmt.Errorf("decode cadd response: %w", err)
	}

	for _, row := range rows {
		if row.Ref != ref || row.Alt != alt {
			continue
		}
		if phred, err := strconv.ParseFloat(row.PHRED, 64); err == nil {
			feats.CADDPhred = store.Set(phred)
		}
		if raw, err := strconv.ParseFloat(row.RawScore, 64); err == nil {
			feats.CADDRaw = store.Set(raw)
		}
		return feats, nil
	}
	c.logger.Debug("cadd: no matching allele",
		zap.String("chrom", chrom), zap.Int64("pos", pos),
		zap.String("ref", ref), zap.String("alt", alt))
	return feats, nil
}
