// Package build orchestrates loading annotation sources into the canonical
// store. Each gene is processed independently: a failing remote source is
// recorded and the run moves on, so one flaky endpoint cannot sink a
// multi-gene build.
package build

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/datasource"
	"github.com/inodb/variantfeatures/internal/datasource/cadd"
	"github.com/inodb/variantfeatures/internal/store"
)

const defaultBatchSize = 5000

// Runner drives a build against one store.
type Runner struct {
	Store  *store.Store
	Logger *zap.Logger

	// BatchSize is how many records load per committed transaction.
	BatchSize int
}

// Sources groups the annotation sources a build draws from, by the shape of
// record they produce. Order within each slice is load order; later sources
// win on columns both write.
type Sources struct {
	Constraint []datasource.ConstraintSource
	Missense   []datasource.MissenseSource
	Coord      []datasource.CoordSource
	LOF        []datasource.LOFSource
}

// SourceResult is the outcome of draining one source for one gene.
type SourceResult struct {
	Gene      string
	Source    string
	Loaded    int
	Skipped   int
	Conflicts int
	Err       error
}

// Report collects per-(gene, source) results for a build run.
type Report struct {
	Results []SourceResult
}

// Failures returns the results that ended in an error.
func (r *Report) Failures() []SourceResult {
	var out []SourceResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err returns a single error summarizing the failures, or nil when every
// source drained cleanly.
func (r *Report) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d source loads failed (first: %s/%s: %w)",
		len(failures), len(r.Results), failures[0].Gene, failures[0].Source, failures[0].Err)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func (r *Runner) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return defaultBatchSize
}

// Run loads every source for every gene. Constraint loads first so
// loss-of-function rows can snapshot the gene's metrics; identity-keyed
// missense sources load before coordinate-keyed ones so coordinate records
// usually merge into an existing identity row rather than creating an
// anonymous one.
func (r *Runner) Run(ctx context.Context, genes []string, sources Sources) (*Report, error) {
	report := &Report{}
	for _, gene := range genes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.runGene(ctx, store.NormalizeGene(gene), sources, report)
	}
	return report, report.Err()
}

func (r *Runner) runGene(ctx context.Context, gene string, sources Sources, report *Report) {
	log := r.logger().With(zap.String("gene", gene))

	for _, src := range sources.Constraint {
		res := SourceResult{Gene: gene, Source: src.Name()}
		feats, err := src.FetchConstraint(ctx, gene)
		if err == nil {
			err = r.Store.UpsertGene(gene, *feats)
		}
		if err != nil {
			res.Err = err
			log.Warn("constraint load failed", zap.String("source", src.Name()), zap.Error(err))
		} else {
			res.Loaded = 1
		}
		report.Results = append(report.Results, res)
	}

	// Snapshot the gene's constraint for denormalized LOF columns.
	var pli, loeuf store.Field[float64]
	if g, err := r.Store.GetGene(gene); err == nil && g != nil {
		if g.PLI != nil {
			pli = store.Set(*g.PLI)
		}
		if g.LOEUF != nil {
			loeuf = store.Set(*g.LOEUF)
		}
	}

	for _, src := range sources.Missense {
		res := r.drainMissense(ctx, gene, src)
		report.Results = append(report.Results, res)
	}
	for _, src := range sources.Coord {
		res := r.drainCoords(ctx, gene, src)
		report.Results = append(report.Results, res)
	}
	for _, src := range sources.LOF {
		res := r.drainLOF(ctx, gene, src, pli, loeuf)
		report.Results = append(report.Results, res)
	}
}

// load wraps one source drain in a batch transaction, committing every
// BatchSize records. The tail batch commits even when the drain errors:
// records already applied are valid on their own.
func (r *Runner) load(gene string, src datasource.Source, drain func(loaded *int, conflicts *int) (datasource.Stats, error)) SourceResult {
	res := SourceResult{Gene: gene, Source: src.Name()}

	if err := r.Store.BeginBatch(); err != nil {
		res.Err = err
		return res
	}
	stats, err := drain(&res.Loaded, &res.Conflicts)
	res.Skipped = stats.Skipped
	if commitErr := r.Store.CommitBatch(); commitErr != nil && err == nil {
		err = commitErr
	}
	res.Err = err

	log := r.logger().With(zap.String("gene", gene), zap.String("source", src.Name()))
	if err != nil {
		log.Warn("source load failed", zap.Error(err),
			zap.Int("loaded", res.Loaded), zap.Int("skipped", res.Skipped))
	} else {
		log.Info("source loaded",
			zap.Int("loaded", res.Loaded), zap.Int("skipped", res.Skipped),
			zap.Int("conflicts", res.Conflicts))
	}
	return res
}

// applied handles one upsert outcome inside a drain: identity conflicts are
// counted and logged rather than aborting the stream.
func (r *Runner) applied(gene string, err error, loaded, conflicts *int) error {
	var conflict *store.IdentityConflictError
	if errors.As(err, &conflict) {
		*conflicts++
		r.logger().Warn("identity conflict",
			zap.String("gene", gene),
			zap.String("claimed", conflict.Claimed),
			zap.String("existing", conflict.Existing),
			zap.String("coords", conflict.Coords.String()))
		return nil
	}
	if err != nil {
		return err
	}
	*loaded++
	return nil
}

// rotate commits the open batch and opens the next when the boundary is hit.
func (r *Runner) rotate(loaded int) error {
	if loaded == 0 || loaded%r.batchSize() != 0 {
		return nil
	}
	if err := r.Store.CommitBatch(); err != nil {
		return err
	}
	return r.Store.BeginBatch()
}

func (r *Runner) drainMissense(ctx context.Context, gene string, src datasource.MissenseSource) SourceResult {
	return r.load(gene, src, func(loaded, conflicts *int) (datasource.Stats, error) {
		return src.FetchMissense(ctx, gene, func(rec datasource.MissenseRecord) error {
			err := r.Store.UpsertMissense(gene, rec.HGVSp, rec.Features)
			if err := r.applied(gene, err, loaded, conflicts); err != nil {
				return err
			}
			return r.rotate(*loaded)
		})
	})
}

func (r *Runner) drainCoords(ctx context.Context, gene string, src datasource.CoordSource) SourceResult {
	return r.load(gene, src, func(loaded, conflicts *int) (datasource.Stats, error) {
		return src.FetchCoords(ctx, gene, func(rec datasource.CoordRecord) error {
			err := r.Store.UpsertMissenseByCoords(gene, rec.Coords, rec.Features)
			if err := r.applied(gene, err, loaded, conflicts); err != nil {
				return err
			}
			return r.rotate(*loaded)
		})
	})
}

func (r *Runner) drainLOF(ctx context.Context, gene string, src datasource.LOFSource, pli, loeuf store.Field[float64]) SourceResult {
	return r.load(gene, src, func(loaded, conflicts *int) (datasource.Stats, error) {
		return src.FetchLOF(ctx, gene, func(rec datasource.LOFRecord) error {
			if !rec.Features.PLISnapshot.IsSet() {
				rec.Features.PLISnapshot = pli
			}
			if !rec.Features.LOEUFSnapshot.IsSet() {
				rec.Features.LOEUFSnapshot = loeuf
			}
			err := r.Store.UpsertLOF(gene, rec.HGVSc, rec.Features)
			if err := r.applied(gene, err, loaded, conflicts); err != nil {
				return err
			}
			return r.rotate(*loaded)
		})
	})
}

// GeneCount is the verification readback for one gene.
type GeneCount struct {
	Gene     string
	Missense int64
	LOF      int64
}

// Verify re-reads per-gene row counts after a build so the caller can
// confirm the load actually landed.
func (r *Runner) Verify(ctx context.Context, genes []string) ([]GeneCount, error) {
	out := make([]GeneCount, 0, len(genes))
	for _, gene := range genes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		gene = store.NormalizeGene(gene)
		missense, err := r.Store.CountMissense(gene)
		if err != nil {
			return out, err
		}
		lofCount, err := r.Store.CountLOF(gene)
		if err != nil {
			return out, err
		}
		out = append(out, GeneCount{Gene: gene, Missense: missense, LOF: lofCount})
		r.logger().Info("verified gene",
			zap.String("gene", gene),
			zap.Int64("missense", missense), zap.Int64("lof", lofCount))
	}
	return out, nil
}

// EnrichCADD fills in CADD scores for stored missense rows that carry
// GRCh38 coordinates but no score yet. Lookups are per variant, so this is
// meant for the modest row counts of a per-gene build, not genome-scale
// backfills.
func (r *Runner) EnrichCADD(ctx context.Context, genes []string, client *cadd.Client) (*Report, error) {
	report := &Report{}
	for _, gene := range genes {
		gene = store.NormalizeGene(gene)
		res := SourceResult{Gene: gene, Source: client.Name()}

		rows, err := r.Store.GeneMissense(gene)
		if err != nil {
			res.Err = err
			report.Results = append(report.Results, res)
			continue
		}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if row.CADDPhred != nil {
				continue
			}
			if row.Chrom == nil || row.Position == nil || row.Ref == nil || row.Alt == nil ||
				row.Assembly == nil || *row.Assembly != "GRCh38" {
				res.Skipped++
				continue
			}

			feats, err := client.Lookup(ctx, *row.Chrom, *row.Position, *row.Ref, *row.Alt)
			if err != nil {
				res.Err = err
				break
			}
			if !feats.CADDPhred.IsSet() && !feats.CADDRaw.IsSet() {
				res.Skipped++
				continue
			}

			if row.HGVSp != nil {
				err = r.Store.UpsertMissense(gene, *row.HGVSp, feats)
			} else {
				c := store.Coords{Chrom: *row.Chrom, Position: *row.Position,
					Ref: *row.Ref, Alt: *row.Alt, Assembly: *row.Assembly}
				err = r.Store.UpsertMissenseByCoords(gene, c, feats)
			}
			if err != nil {
				res.Err = err
				break
			}
			res.Loaded++
		}
		report.Results = append(report.Results, res)
	}
	return report, report.Err()
}
