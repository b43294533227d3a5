package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/dialectic"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the learning store to JSON",
	Long: `Export patterns, metrics, agent records and the learning log of the
active store as a single JSON document.

Without --output the document is written to stdout.`,
	Example: `  dialectic export -o backup.json
  dialectic export --store my-project > my-project.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import learning state into the active store",
	Long: `Import learning state from an export file, or from a directory holding
the legacy JSON layout (patterns.json, success_metrics.json,
agent_effectiveness.json and learning_log.json).

Merge strategies:
  skip    - Only add patterns and agent types that do not exist yet
  replace - Discard existing state in favour of the import
  merge   - Sum counters and fold agent records together (default)`,
	Example: `  dialectic import -i backup.json
  dialectic import -i backup.json --strategy replace --dry-run
  dialectic import --legacy ~/.cursor/learning`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var (
	exportOutputPath string

	importInputPath string
	importLegacyDir string
	importStrategy  string
	importDryRun    bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (default: stdout)")

	importCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Export file to import")
	importCmd.Flags().StringVar(&importLegacyDir, "legacy", "", "Directory holding legacy JSON learning files")
	importCmd.Flags().StringVar(&importStrategy, "strategy", "merge", "Merge strategy: skip, replace, merge")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview import without making changes")
	importCmd.MarkFlagsMutuallyExclusive("input", "legacy")
	importCmd.MarkFlagsOneRequired("input", "legacy")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// ExportResult for JSON output.
type ExportResult struct {
	StoreID  string `json:"store_id"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	if exportOutputPath == "" {
		return s.client.Export(cmd.Context(), cmd.OutOrStdout())
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := s.client.Export(cmd.Context(), &buf); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}
	if err := os.WriteFile(exportOutputPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	duration := time.Since(start)

	if outputJSON {
		return outputAsJSON(cmd, ExportResult{
			StoreID:  s.cfg.Store,
			FilePath: exportOutputPath,
			FileSize: int64(buf.Len()),
			Duration: duration.Round(time.Millisecond).String(),
		})
	}

	out := cmd.OutOrStdout()
	var summary strings.Builder
	fmt.Fprintf(&summary, "Store:      %s\n", s.cfg.Store)
	fmt.Fprintf(&summary, "File size:  %s\n", formatBytes(int64(buf.Len())))
	fmt.Fprintf(&summary, "Duration:   %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(&summary, "Output:     %s", exportOutputPath)
	fmt.Fprintln(out, renderPanel("Export Summary", summary.String()))
	printSuccess(out, "Export complete")
	return nil
}

// ImportResultOutput for JSON output.
type ImportResultOutput struct {
	StoreID  string `json:"store_id"`
	Source   string `json:"source"`
	Legacy   bool   `json:"legacy,omitempty"`
	Strategy string `json:"merge_strategy"`
	*dialectic.ImportResult
	Duration string `json:"duration"`
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy, err := dialectic.ParseMergeStrategy(strings.ToLower(importStrategy))
	if err != nil {
		return err
	}
	if importLegacyDir != "" && importDryRun {
		return fmt.Errorf("--dry-run is not supported with --legacy")
	}

	source := importInputPath
	if importLegacyDir != "" {
		source = importLegacyDir
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return fmt.Errorf("import source not found: %s", source)
	}

	s, err := openSession(loadConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if !outputJSON {
		verb := "Importing"
		if importDryRun {
			verb = "Previewing import"
		}
		printInfo(out, "%s into store '%s' from %s...", verb, s.cfg.Store, source)
		fmt.Fprintf(out, "  Strategy: %s\n", strategy)
	}

	start := time.Now()
	var result *dialectic.ImportResult
	if importLegacyDir != "" {
		result, err = s.client.ImportLegacy(cmd.Context(), importLegacyDir, strategy)
	} else {
		var f *os.File
		f, err = os.Open(importInputPath)
		if err != nil {
			return fmt.Errorf("open input file: %w", err)
		}
		defer f.Close()
		result, err = s.client.Import(cmd.Context(), f, strategy, importDryRun)
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	duration := time.Since(start)

	if outputJSON {
		return outputAsJSON(cmd, ImportResultOutput{
			StoreID:      s.cfg.Store,
			Source:       source,
			Legacy:       importLegacyDir != "",
			Strategy:     string(strategy),
			ImportResult: result,
			Duration:     duration.Round(time.Millisecond).String(),
		})
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Patterns: %d  Agents: %d  Log entries: %d\n", result.Patterns, result.Agents, result.LogEntries)
	if importDryRun {
		fmt.Fprintf(out, "  Would create: %d\n", result.Created)
		fmt.Fprintf(out, "  Would merge: %d\n", result.Merged)
		fmt.Fprintf(out, "  Would skip: %d\n", result.Skipped)
	} else {
		fmt.Fprintf(out, "  Created: %d\n", result.Created)
		fmt.Fprintf(out, "  Merged: %d\n", result.Merged)
		fmt.Fprintf(out, "  Skipped: %d\n", result.Skipped)
	}

	fmt.Fprintln(out)
	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
	return nil
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}
