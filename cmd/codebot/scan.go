package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codebot/internal/finding"
	"codebot/internal/scan"
	"codebot/internal/source"
)

var (
	scanPath       string
	scanChunkStart int
	scanJSON       bool
	scanFailOn     string
	scanAllChunks  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [repository-url]",
	Short: "Scan a repository for security issues",
	Long: `Scans a GitHub repository, or a local directory with --path, and prints
the findings grouped by severity.

Only --max-files files are scanned per call. When files remain, the output
names the --chunk-start value for the next call; --all-chunks keeps going
until the repository is exhausted and merges the results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanPath, "path", "", "Scan a local directory instead of a repository URL")
	scanCmd.Flags().Int("max-files", 0, "Files per chunk (default from scan.max_files)")
	scanCmd.Flags().IntVar(&scanChunkStart, "chunk-start", -1, "Cursor returned by the previous chunk")
	scanCmd.Flags().Bool("include-low", false, "Include low-confidence findings")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output the result as JSON")
	scanCmd.Flags().StringVar(&scanFailOn, "fail-on", "", "Exit with code 2 if any finding is at or above this severity (critical, high, medium, low)")
	scanCmd.Flags().BoolVar(&scanAllChunks, "all-chunks", false, "Scan every chunk and merge the results")

	_ = viper.BindPFlag("scan.max_files", scanCmd.Flags().Lookup("max-files"))
	_ = viper.BindPFlag("scan.include_low_confidence", scanCmd.Flags().Lookup("include-low"))
}

func runScan(cmd *cobra.Command, args []string) error {
	var target string
	switch {
	case scanPath != "" && len(args) > 0:
		return fmt.Errorf("give either a repository URL or --path, not both")
	case scanPath != "":
		target = scanPath
	case len(args) == 1:
		target = args[0]
	default:
		return fmt.Errorf("a repository URL or --path is required")
	}

	var failOn finding.Severity
	if scanFailOn != "" {
		sev, err := finding.ParseSeverity(scanFailOn)
		if err != nil {
			return fmt.Errorf("invalid --fail-on: %w", err)
		}
		failOn = sev
	}

	cfg, err := settings()
	if err != nil {
		return err
	}
	logger := slog.Default()

	var src source.FileSource
	if scanPath != "" {
		src = source.NewLocalSource()
	} else {
		src = newGitHubSource(cfg.GitHub, logger)
	}

	scanner, cleanup, err := newScanner(cfg, src, logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := scan.Request{
		RepositoryURL:        target,
		MaxFiles:             cfg.Scan.MaxFiles,
		IncludeLowConfidence: cfg.Scan.IncludeLowConfidence,
	}
	if scanChunkStart >= 0 {
		c := source.Cursor(scanChunkStart)
		req.ChunkStart = &c
	}

	res, err := runChunks(ctx, scanner, req, scanAllChunks, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printScanReport(cmd.OutOrStdout(), res)
	}

	if failOn != "" && res.HasAtLeast(failOn) {
		return fmt.Errorf("%w (%s)", errThreshold, failOn)
	}
	return nil
}

// runChunks runs one chunk, or every remaining chunk when all is set.
func runChunks(ctx context.Context, s *scan.Scanner, req scan.Request, all bool, progress io.Writer) (*scan.Result, error) {
	var merged *scan.Result
	for {
		res, err := s.Scan(ctx, req)
		if err != nil {
			if errors.Is(err, scan.ErrInvalidRequest) {
				return nil, err
			}
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		merged = scan.MergeResults(merged, res)

		if !all || res.NextChunk == nil || !res.Success || ctx.Err() != nil {
			return merged, nil
		}
		fmt.Fprintf(progress, "Scanned %d files, %d remaining...\n", merged.FilesScanned, res.Remaining)
		req.ChunkStart = res.NextChunk
	}
}

func printScanReport(out io.Writer, res *scan.Result) {
	if res.Total == 0 {
		fmt.Fprintln(out, "No vulnerabilities found.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tCONFIDENCE\tLOCATION\tSCANNER\tTITLE")
		fmt.Fprintln(w, "--------\t----------\t--------\t-------\t-----")
		for _, f := range res.Findings() {
			loc := f.FilePath
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
			}
			title := f.Title
			if len(title) > 70 {
				title = title[:67] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", strings.ToUpper(f.Severity.String()), f.Confidence, loc, f.Scanner, title)
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nScanned %d files in %dms: %d findings (critical %d, high %d, medium %d, low %d), risk score %d/100\n",
		res.FilesScanned, res.DurationMS, res.Total,
		res.Summary.Critical, res.Summary.High, res.Summary.Medium, res.Summary.Low, res.RiskScore)
	if res.FilteredLowConfidence > 0 {
		fmt.Fprintf(out, "%d low-confidence findings hidden (use --include-low)\n", res.FilteredLowConfidence)
	}
	if len(res.FilesSkipped) > 0 {
		fmt.Fprintf(out, "%d files skipped\n", len(res.FilesSkipped))
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(out, "%d warnings\n", len(res.Warnings))
	}
	if res.Incomplete {
		fmt.Fprintln(out, "Result is incomplete: some files or advisories could not be checked")
	}
	if res.NextChunk != nil {
		fmt.Fprintf(out, "%d files remain; continue with --chunk-start %s\n", res.Remaining, res.NextChunk)
	}
}
