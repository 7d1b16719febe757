// Package store persists the canonical per-variant record store in DuckDB:
// gene-level constraint metrics, missense variants, loss-of-function variants,
// and downstream penetrance estimates. The write path is an insert-or-merge
// engine: adapters supply partial feature sets keyed by normalized identity,
// and a merge only touches the columns the feature set carries.
//
// The store assumes exactly one writer process. Within that model merges are
// idempotent and commutative over disjoint column sets; two sources writing
// the same column is last-write-wins.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// Store manages the DuckDB connection holding the canonical variant tables.
type Store struct {
	db   *sql.DB
	path string

	// tx is the open bulk-load transaction, if any. Batching moves the
	// commit boundary for I/O throughput only; it does not change
	// record-level merge semantics.
	tx *sql.Tx
}

// Open opens or creates the variant database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection. An open batch is rolled back.
func (s *Store) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// BeginBatch starts a bulk-load transaction. Upserts issued until CommitBatch
// run inside it, so high-volume loads can commit every few thousand records
// instead of per record.
func (s *Store) BeginBatch() error {
	if s.tx != nil {
		return fmt.Errorf("batch already open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	s.tx = tx
	return nil
}

// CommitBatch commits the open bulk-load transaction. A no-op when no batch
// is open.
func (s *Store) CommitBatch() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// dbtx is the common surface of *sql.DB and *sql.Tx the store operates on.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// h returns the active handle: the open batch transaction when present, so
// merge reads observe records written earlier in the same batch.
func (s *Store) h() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// ensureSchema creates tables and uniqueness indexes if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS genes (
			symbol VARCHAR PRIMARY KEY,
			ensembl_gene_id VARCHAR,
			uniprot_id VARCHAR,
			canonical_transcript VARCHAR,
			pli DOUBLE,
			loeuf DOUBLE,
			loeuf_lower DOUBLE,
			loeuf_upper DOUBLE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS missense_variants (
			gene VARCHAR NOT NULL,
			hgvs_p VARCHAR,
			hgvs_c VARCHAR,
			chrom VARCHAR,
			position BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			assembly VARCHAR,
			transcript_id VARCHAR,
			alphamissense_score DOUBLE,
			alphamissense_class VARCHAR,
			revel_score DOUBLE,
			cadd_phred DOUBLE,
			cadd_raw DOUBLE,
			clinvar_id BIGINT,
			clinvar_significance VARCHAR,
			clinvar_review_status VARCHAR,
			clinvar_stars INTEGER,
			clinvar_last_evaluated VARCHAR,
			gnomad_af DOUBLE,
			gnomad_af_popmax DOUBLE,
			gnomad_homozygotes BIGINT,
			gnomad_version VARCHAR,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (gene, hgvs_p)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_missense_coords
			ON missense_variants (chrom, position, ref, alt, assembly)`,
		`CREATE INDEX IF NOT EXISTS idx_missense_gene ON missense_variants (gene)`,
		`CREATE TABLE IF NOT EXISTS lof_variants (
			gene VARCHAR NOT NULL,
			hgvs_c VARCHAR NOT NULL,
			hgvs_p VARCHAR,
			chrom VARCHAR,
			position BIGINT,
			ref VARCHAR,
			alt VARCHAR,
			assembly VARCHAR,
			transcript_id VARCHAR,
			lof_type VARCHAR,
			confidence VARCHAR,
			flags VARCHAR,
			nmd_escape BOOLEAN,
			truncation_fraction DOUBLE,
			last_exon BOOLEAN,
			pli_snapshot DOUBLE,
			loeuf_snapshot DOUBLE,
			clinvar_id BIGINT,
			clinvar_significance VARCHAR,
			clinvar_review_status VARCHAR,
			clinvar_stars INTEGER,
			clinvar_last_evaluated VARCHAR,
			gnomad_af DOUBLE,
			gnomad_af_popmax DOUBLE,
			gnomad_homozygotes BIGINT,
			gnomad_version VARCHAR,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (gene, hgvs_c)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_lof_coords
			ON lof_variants (chrom, position, ref, alt, assembly)`,
		`CREATE INDEX IF NOT EXISTS idx_lof_gene ON lof_variants (gene)`,
		`CREATE TABLE IF NOT EXISTS penetrance_estimates (
			category VARCHAR NOT NULL,
			gene VARCHAR NOT NULL,
			identity VARCHAR NOT NULL,
			posterior_mean DOUBLE,
			posterior_median DOUBLE,
			ci_lower DOUBLE,
			ci_upper DOUBLE,
			model_version VARCHAR,
			n_carriers BIGINT,
			n_affected BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (category, gene, identity)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// insertRow builds and executes an INSERT for the supplied identity columns
// plus every set feature column. Column names come from the tables' static
// column sets, never from callers.
func (s *Store) insertRow(table string, idCols []string, idArgs []any, cols []col) error {
	names := make([]string, 0, len(idCols)+len(cols))
	args := make([]any, 0, len(idCols)+len(cols))
	names = append(names, idCols...)
	args = append(args, idArgs...)

	for _, c := range cols {
		if c.field.IsSet() {
			names = append(names, c.name)
			args = append(args, c.field.arg())
		}
	}

	q := fmt.Sprintf(
		"INSERT INTO %s (%s, created_at, updated_at) VALUES (%s, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
		table, strings.Join(names, ", "), placeholders(len(args)),
	)
	if _, err := s.h().Exec(q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// updateRow builds and executes an UPDATE touching only the set feature
// columns of the row matching the WHERE columns. The update timestamp is
// always refreshed, even when no feature column is supplied.
func (s *Store) updateRow(table string, whereCols []string, whereArgs []any, cols []col) error {
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+len(whereArgs))

	for _, c := range cols {
		if c.field.IsSet() {
			sets = append(sets, c.name+" = ?")
			args = append(args, c.field.arg())
		}
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	conds := make([]string, len(whereCols))
	for i, w := range whereCols {
		conds[i] = w + " = ?"
	}
	args = append(args, whereArgs...)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		table, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	if _, err := s.h().Exec(q, args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// NormalizeGene case-normalizes a gene symbol to its canonical upper form.
func NormalizeGene(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
