package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/variantfeatures/internal/store"
)

func newQueryCmd() *cobra.Command {
	var (
		gene   string
		dbPath string
		format string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print stored annotations for a gene",
		Example: `  variantfeatures query --gene KCNH2
  variantfeatures query --gene KCNH2 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gene == "" {
				return fmt.Errorf("a gene is required (--gene)")
			}
			return runQuery(cmd.OutOrStdout(), gene, dbPath, format)
		},
	}

	cmd.Flags().StringVar(&gene, "gene", "", "gene symbol to query")
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default from config)")
	cmd.Flags().StringVar(&format, "format", "tab", "output format: tab, json")

	return cmd
}

// geneReport is the JSON shape of a full per-gene readout.
type geneReport struct {
	Gene       *store.Gene         `json:"gene,omitempty"`
	Missense   []*store.Missense   `json:"missense"`
	LOF        []*store.LOFVariant `json:"lof"`
	Penetrance []*store.Penetrance `json:"penetrance,omitempty"`
}

func runQuery(w io.Writer, gene, dbPath, format string) error {
	if dbPath == "" {
		dbPath = viper.GetString("db")
	}

	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	report := geneReport{}
	if report.Gene, err = s.GetGene(gene); err != nil {
		return err
	}
	if report.Missense, err = s.GeneMissense(gene); err != nil {
		return err
	}
	if report.LOF, err = s.GeneLOF(gene); err != nil {
		return err
	}
	if report.Penetrance, err = s.GenePenetrance(gene); err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "tab":
		return writeTab(w, gene, report)
	default:
		return fmt.Errorf("unknown format %q (available: tab, json)", format)
	}
}

func writeTab(w io.Writer, gene string, report geneReport) error {
	if g := report.Gene; g != nil {
		fmt.Fprintf(w, "# %s", g.Symbol)
		if g.EnsemblGeneID != nil {
			fmt.Fprintf(w, " %s", *g.EnsemblGeneID)
		}
		if g.PLI != nil {
			fmt.Fprintf(w, " pLI=%.4g", *g.PLI)
		}
		if g.LOEUF != nil {
			fmt.Fprintf(w, " loeuf=%.4g", *g.LOEUF)
		}
		fmt.Fprintln(w)
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	if len(report.Missense) > 0 {
		fmt.Fprintln(tw, "hgvs_p\thgvs_c\tclinvar_sig\tstars\talphamissense\trevel\tcadd\tgnomad_af")
		for _, m := range report.Missense {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				strOrDot(m.HGVSp), strOrDot(m.HGVSc),
				strOrDot(m.ClinVarSignificance), intOrDot(m.ClinVarStars),
				floatOrDot(m.AlphaMissenseScore), floatOrDot(m.RevelScore),
				floatOrDot(m.CADDPhred), floatOrDot(m.GnomadAF))
		}
	}
	if len(report.LOF) > 0 {
		fmt.Fprintln(tw, "hgvs_c\thgvs_p\tlof_type\tconfidence\tnmd_escape\tclinvar_sig\tgnomad_af")
		for _, v := range report.LOF {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				v.HGVSc, strOrDot(v.HGVSp), strOrDot(v.LOFType), strOrDot(v.Confidence),
				boolOrDot(v.NMDEscape), strOrDot(v.ClinVarSignificance), floatOrDot(v.GnomadAF))
		}
	}
	if len(report.Penetrance) > 0 {
		fmt.Fprintln(tw, "category\tidentity\tposterior_mean\tci_lower\tci_upper\tmodel")
		for _, p := range report.Penetrance {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				p.Category, p.Identity,
				floatOrDot(p.PosteriorMean), floatOrDot(p.CILower), floatOrDot(p.CIUpper),
				strOrDot(p.ModelVersion))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if report.Gene == nil && len(report.Missense) == 0 && len(report.LOF) == 0 {
		fmt.Fprintf(w, "no records for %s\n", store.NormalizeGene(gene))
	}
	return nil
}

func strOrDot(s *string) string {
	if s == nil {
		return "."
	}
	return *s
}

func intOrDot(n *int) string {
	if n == nil {
		return "."
	}
	return strconv.Itoa(*n)
}

func floatOrDot(f *float64) string {
	if f == nil {
		return "."
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}

func boolOrDot(b *bool) string {
	if b == nil {
		return "."
	}
	return strconv.FormatBool(*b)
}
