// Package main provides the variantfeatures command-line tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "variantfeatures",
		Short: "Build and query a per-gene variant annotation database",
		Long: `variantfeatures aggregates variant annotations from clinical archives and
population databases into one canonical DuckDB store, keyed by normalized
HGVS identity. Build it per gene, then query missense and loss-of-function
records with all their evidence columns side by side.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initRuntime()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.variantfeatures.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// initRuntime loads configuration and builds the logger. Runs before every
// subcommand.
func initRuntime() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".variantfeatures")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("VARIANTFEATURES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	var err error
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		logger, err = cfg.Build()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("db", filepath.Join(dataDir(), "variants.duckdb"))
	viper.SetDefault("data_dir", dataDir())
	viper.SetDefault("assembly", "GRCh38")
	viper.SetDefault("sources", []string{"clinvar", "alphamissense", "revel", "gnomad"})

	// Reference identifiers for commonly studied disease genes. Extend via
	// the genes.* keys in the config file.
	viper.SetDefault("genes.uniprot", map[string]string{
		"KCNH2":  "Q12809",
		"KCNQ1":  "P51787",
		"SCN5A":  "Q14524",
		"MYH7":   "P12883",
		"MYBPC3": "Q14896",
	})
	viper.SetDefault("genes.transcripts", map[string]string{
		"KCNH2":  "ENST00000262186",
		"KCNQ1":  "ENST00000155840",
		"SCN5A":  "ENST00000413689",
		"MYH7":   "ENST00000355349",
		"MYBPC3": "ENST00000545968",
	})
}

// dataDir is where downloaded source files and the default database live.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".variantfeatures"
	}
	return filepath.Join(home, ".variantfeatures")
}
