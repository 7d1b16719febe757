package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// scalarKeys are the plain keys "config set" accepts. Gene reference maps
// take per-gene entries under genes.uniprot. and genes.transcripts.
var scalarKeys = map[string]string{
	"db":       "path of the feature database",
	"data_dir": "directory holding downloaded source files",
	"assembly": "reference assembly, GRCh37 or GRCh38",
	"sources":  "comma-separated list of sources for build",
}

var (
	// UniProt accession format per the knowledgebase documentation.
	reUniprotAccession  = regexp.MustCompile(`^([OPQ][0-9][A-Z0-9]{3}[0-9]|[A-NR-Z][0-9]([A-Z][A-Z0-9]{2}[0-9]){1,2})$`)
	reEnsemblTranscript = regexp.MustCompile(`^ENST\d{11}$`)
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage variantfeatures configuration",
		Long:  "Show, get, or set configuration values. Config is stored in ~/.variantfeatures.yaml.",
		Example: `  variantfeatures config                               # show all config
  variantfeatures config set assembly GRCh38
  variantfeatures config set genes.uniprot.kcnh2 Q12809
  variantfeatures config get db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Keys are validated:\n\n" + keyHelp(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func runConfigShow() error {
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("# No configuration set. Config file: ~/.variantfeatures.yaml")
		return nil
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// validateSetting checks a key/value pair before it is persisted and
// returns the value to store, normalized where the key demands it.
func validateSetting(key, value string) (any, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	switch {
	case key == "assembly":
		if value != "GRCh37" && value != "GRCh38" {
			return nil, fmt.Errorf("assembly must be GRCh37 or GRCh38, got %q", value)
		}
		return value, nil
	case key == "sources":
		names := strings.Split(value, ",")
		for i, n := range names {
			n = strings.ToLower(strings.TrimSpace(n))
			switch n {
			case "clinvar", "alphamissense", "revel", "gnomad":
			default:
				return nil, fmt.Errorf("unknown source %q (available: clinvar, alphamissense, revel, gnomad)", n)
			}
			names[i] = n
		}
		return names, nil
	case strings.HasPrefix(key, "genes.uniprot."):
		acc := strings.ToUpper(strings.TrimSpace(value))
		if !reUniprotAccession.MatchString(acc) {
			return nil, fmt.Errorf("%q is not a UniProt accession", value)
		}
		return acc, nil
	case strings.HasPrefix(key, "genes.transcripts."):
		id := strings.ToUpper(strings.TrimSpace(value))
		if !reEnsemblTranscript.MatchString(id) {
			return nil, fmt.Errorf("%q is not an Ensembl transcript ID (ENST + 11 digits)", value)
		}
		return id, nil
	case scalarKeys[key] != "":
		return value, nil
	}
	return nil, fmt.Errorf("unknown config key %q\n%s", key, keyHelp())
}

func keyHelp() string {
	keys := make([]string, 0, len(scalarKeys))
	for k := range scalarKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-26s %s\n", k, scalarKeys[k])
	}
	fmt.Fprintf(&b, "  %-26s %s\n", "genes.uniprot.<gene>", "UniProt accession for a gene")
	fmt.Fprintf(&b, "  %-26s %s", "genes.transcripts.<gene>", "canonical Ensembl transcript for a gene")
	return b.String()
}

func runConfigSet(key, value string) error {
	stored, err := validateSetting(key, value)
	if err != nil {
		return err
	}
	viper.Set(key, stored)

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".variantfeatures.yaml")
	}

	if err := viper.WriteConfigAs(cfgFile); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, stored, cfgFile)
	return nil
}

func runConfigGet(key string) error {
	val := viper.Get(key)
	if val == nil {
		return fmt.Errorf("key %q is not set", key)
	}
	fmt.Println(val)
	return nil
}
