package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/adapters/driving/watcher"
	"github.com/custodia-labs/testctx/internal/core/domain"
)

var (
	ingestLanguage string
	ingestJSON     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path...>",
	Short: "Ingest source files",
	Long: `Ingests source files into version history and the retrieval index.

Files are identified by their path relative to the working directory.
Directories are walked recursively; hidden files and vendored trees are
skipped and paths are taken relative to the directory itself.
Unchanged files keep their current version.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLanguage, "language", "", "language hint for file arguments")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireService(ingestService != nil, "ingest"); err != nil {
		return err
	}
	ctx := cmd.Context()

	var results []*domain.IngestResult
	var reqs []domain.IngestRequest
	var failures []error
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("reading %s: %w", arg, err)
		}
		if info.IsDir() {
			w, err := watcher.New(ingestService, watcher.Config{Root: arg, Module: moduleName})
			if err != nil {
				return err
			}
			scanned, err := w.Scan(ctx)
			if err != nil {
				failures = append(failures, fmt.Errorf("ingesting %s: %w", arg, err))
			}
			results = append(results, scanned...)
			continue
		}
		req, err := fileRequest(arg)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	if len(reqs) > 0 {
		ingested, err := ingestService.IngestBatch(ctx, reqs)
		if err != nil {
			failures = append(failures, err)
		}
		results = append(results, ingested...)
	}

	// Batch ingestion reports failed files as nil results.
	results = slices.DeleteFunc(results, func(r *domain.IngestResult) bool { return r == nil })

	if ingestJSON {
		if err := outputJSON(cmd, results); err != nil {
			return err
		}
	} else {
		printIngestResults(cmd, results)
	}
	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	return nil
}

// fileRequest reads a file argument into a request whose path is relative
// to the working directory.
func fileRequest(arg string) (domain.IngestRequest, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return domain.IngestRequest{}, fmt.Errorf("resolving %s: %w", arg, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return domain.IngestRequest{}, fmt.Errorf("resolving working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil {
		return domain.IngestRequest{}, fmt.Errorf("resolving %s: %w", arg, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return domain.IngestRequest{}, fmt.Errorf("reading %s: %w", arg, err)
	}
	return domain.IngestRequest{
		Path:         filepath.ToSlash(rel),
		Module:       moduleName,
		Text:         string(data),
		LanguageHint: ingestLanguage,
	}, nil
}

func printIngestResults(cmd *cobra.Command, results []*domain.IngestResult) {
	if len(results) == 0 {
		cmd.Println("No supported files found.")
		return
	}
	created := 0
	for _, r := range results {
		state := "unchanged"
		if r.Created {
			state = "new version"
			created++
		}
		cmd.Printf("  %s v%d (%s): %d symbols, %d chunks, %d embedded, %s complexity\n",
			r.DocumentID, r.Version, state, r.Symbols, r.Chunks, r.Embedded, r.Complexity)
		for _, w := range r.Warnings {
			cmd.Printf("      warning: %s\n", w)
		}
	}
	cmd.Printf("\nIngested %d file(s), %d new version(s).\n", len(results), created)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
