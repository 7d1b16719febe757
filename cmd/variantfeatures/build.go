package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/variantfeatures/internal/build"
	"github.com/inodb/variantfeatures/internal/datasource/alphamissense"
	"github.com/inodb/variantfeatures/internal/datasource/cadd"
	"github.com/inodb/variantfeatures/internal/datasource/clinvar"
	"github.com/inodb/variantfeatures/internal/datasource/gnomad"
	"github.com/inodb/variantfeatures/internal/datasource/revel"
	"github.com/inodb/variantfeatures/internal/store"
)

func newBuildCmd() *cobra.Command {
	var (
		genes      []string
		dbPath     string
		sourceList []string
		withCADD   bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Load annotation sources for a set of genes",
		Long: `Build drains every configured annotation source for each gene and merges
the records into the canonical store. Local sources (ClinVar, AlphaMissense,
REVEL) need their data files downloaded first; see 'variantfeatures download'.`,
		Example: `  variantfeatures build --genes KCNH2
  variantfeatures build --genes KCNH2,KCNQ1 --sources clinvar,gnomad
  variantfeatures build --genes KCNH2 --with-cadd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(genes) == 0 {
				return fmt.Errorf("at least one gene is required (--genes)")
			}
			return runBuild(cmd, genes, dbPath, sourceList, withCADD)
		},
	}

	cmd.Flags().StringSliceVar(&genes, "genes", nil, "gene symbols to build (comma separated)")
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default from config)")
	cmd.Flags().StringSliceVar(&sourceList, "sources", nil, "sources to load (default from config)")
	cmd.Flags().BoolVar(&withCADD, "with-cadd", false, "run the per-variant CADD enrichment pass after loading")

	return cmd
}

func runBuild(cmd *cobra.Command, genes []string, dbPath string, sourceList []string, withCADD bool) error {
	if dbPath == "" {
		dbPath = viper.GetString("db")
	}
	if len(sourceList) == 0 {
		sourceList = viper.GetStringSlice("sources")
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	sources, err := assembleSources(sourceList)
	if err != nil {
		return err
	}

	runner := &build.Runner{Store: s, Logger: logger}
	report, err := runner.Run(cmd.Context(), genes, sources)
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s/%s: FAILED: %v\n", res.Gene, res.Source, res.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s/%s: %d loaded, %d skipped",
			res.Gene, res.Source, res.Loaded, res.Skipped)
		if res.Conflicts > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d conflicts", res.Conflicts)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	if withCADD {
		caddReport, err := runner.EnrichCADD(cmd.Context(), genes, cadd.New())
		for _, res := range caddReport.Results {
			if res.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s/cadd: FAILED: %v\n", res.Gene, res.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s/cadd: %d scored, %d skipped\n",
				res.Gene, res.Loaded, res.Skipped)
		}
		if err != nil {
			return err
		}
	}

	counts, err := runner.Verify(cmd.Context(), genes)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	for _, c := range counts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d missense, %d lof\n", c.Gene, c.Missense, c.LOF)
	}
	return nil
}

// assembleSources wires the named sources against the configured data
// directory and reference maps.
func assembleSources(names []string) (build.Sources, error) {
	var out build.Sources
	dataDir := viper.GetString("data_dir")
	assembly := viper.GetString("assembly")
	uniprot := upperKeys(viper.GetStringMapString("genes.uniprot"))
	transcripts := upperKeys(viper.GetStringMapString("genes.transcripts"))

	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "clinvar":
			a := clinvar.New(filepath.Join(dataDir, "variant_summary.txt.gz"), assembly)
			a.SetLogger(logger)
			out.Missense = append(out.Missense, a)
			out.LOF = append(out.LOF, a)
		case "alphamissense":
			a := alphamissense.New(filepath.Join(dataDir, "AlphaMissense_aa_substitutions.tsv.gz"), uniprot)
			a.SetLogger(logger)
			out.Missense = append(out.Missense, a)
		case "revel":
			a := revel.New(filepath.Join(dataDir, "revel_with_transcript_ids.csv"), transcripts)
			a.SetLogger(logger)
			out.Coord = append(out.Coord, a)
		case "gnomad":
			a := gnomad.New()
			a.SetLogger(logger)
			out.Constraint = append(out.Constraint, a)
			out.Missense = append(out.Missense, a)
			out.LOF = append(out.LOF, a)
		default:
			return out, fmt.Errorf("unknown source %q (available: clinvar, alphamissense, revel, gnomad)", name)
		}
	}
	if logger != nil {
		logger.Debug("sources assembled", zap.Strings("names", names))
	}
	return out, nil
}

// upperKeys normalizes config map keys, which viper lowercases.
func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}
