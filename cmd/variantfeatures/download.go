package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/variantfeatures/internal/datasource/alphamissense"
	"github.com/inodb/variantfeatures/internal/datasource/clinvar"
	"github.com/inodb/variantfeatures/internal/datasource/revel"
)

func newDownloadCmd() *cobra.Command {
	var (
		outputDir   string
		clinvarOnly bool
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download source data files",
		Long: `Download the local annotation source files: the ClinVar variant summary
and the AlphaMissense substitution table. The REVEL release is distributed
as a zip archive and has to be fetched and extracted by hand.`,
		Example: `  variantfeatures download
  variantfeatures download --clinvar-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.OutOrStdout(), outputDir, clinvarOnly)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", "", "output directory (default: data_dir from config)")
	cmd.Flags().BoolVar(&clinvarOnly, "clinvar-only", false, "only download the ClinVar summary")

	return cmd
}

func runDownload(w io.Writer, outputDir string, clinvarOnly bool) error {
	if outputDir == "" {
		outputDir = viper.GetString("data_dir")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", outputDir, err)
	}

	fmt.Fprintf(w, "Downloading source data to %s\n\n", outputDir)

	clinvarFile := filepath.Join(outputDir, "variant_summary.txt.gz")
	if err := downloadFile(w, clinvar.SummaryURL, clinvarFile); err != nil {
		return fmt.Errorf("downloading ClinVar summary: %w", err)
	}

	if !clinvarOnly {
		amFile := filepath.Join(outputDir, "AlphaMissense_aa_substitutions.tsv.gz")
		if err := downloadFile(w, alphamissense.DownloadURL, amFile); err != nil {
			return fmt.Errorf("downloading AlphaMissense table: %w", err)
		}
	}

	revelFile := filepath.Join(outputDir, "revel_with_transcript_ids.csv")
	if _, err := os.Stat(revelFile); err != nil {
		fmt.Fprintf(w, "\nNote: REVEL scores are not fetched automatically.\n")
		fmt.Fprintf(w, "Download %s and extract revel_with_transcript_ids.csv to %s\n",
			revel.DownloadURL, outputDir)
	}

	fmt.Fprintf(w, "\nDownload complete. To build, run:\n")
	fmt.Fprintf(w, "  variantfeatures build --genes KCNH2\n")
	return nil
}

// downloadFile downloads a file from URL to the destination path with progress.
func downloadFile(w io.Writer, url, destPath string) error {
	// Skip files that are already present
	if info, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(w, "  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Fprintf(w, "  Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{
		Timeout: 30 * time.Minute, // Long timeout for large files
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	var downloaded int64
	pw := &progressWriter{
		out:        w,
		total:      resp.ContentLength,
		downloaded: &downloaded,
		lastPrint:  time.Now(),
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(w, "    Done: %s\n", formatSize(downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	out        io.Writer
	total      int64
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(*pw.downloaded) / float64(pw.total) * 100
			fmt.Fprintf(pw.out, "\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(*pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Fprintf(pw.out, "\r    Progress: %s  ", formatSize(*pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
