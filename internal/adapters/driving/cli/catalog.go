package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

var (
	symbolsKind  string
	symbolsJSON  bool
	statsJSON    bool
	rebuildClear bool
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <name>",
	Short: "Find symbols by name",
	Long: `Searches the latest version of every document for symbols whose name
contains the query. Use --kind to restrict to function, class, method or import.`,
	Args: cobra.ExactArgs(1),
	RunE: runSymbols,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage and index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild chunks and the similarity index",
	Long: `Regenerates chunks and embeddings for the latest version of every
document. With --clear the derived index is emptied first. Version history
is never touched.`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	symbolsCmd.Flags().StringVar(&symbolsKind, "kind", "", "restrict to a symbol kind")
	symbolsCmd.Flags().BoolVar(&symbolsJSON, "json", false, "output matches as JSON")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rebuildCmd.Flags().BoolVar(&rebuildClear, "clear", false, "clear the derived index before rebuilding")
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(rebuildCmd)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	if err := requireService(catalogService != nil, "catalog"); err != nil {
		return err
	}
	kind := domain.SymbolKind(symbolsKind)
	if kind != "" && !kind.IsValid() {
		return fmt.Errorf("unknown symbol kind %q", symbolsKind)
	}

	matches, err := catalogService.FindSymbols(cmd.Context(), args[0], kind)
	if err != nil {
		return fmt.Errorf("symbol search failed: %w", err)
	}

	if symbolsJSON {
		return outputJSON(cmd, matches)
	}
	if len(matches) == 0 {
		cmd.Println("No symbols found.")
		return nil
	}
	for i := range matches {
		m := &matches[i]
		cmd.Printf("  %-8s %s  %s v%d:%d-%d\n",
			m.Symbol.Kind, m.Symbol.QualifiedName(), m.DocumentID,
			m.Version, m.Symbol.StartLine, m.Symbol.EndLine)
		if m.Symbol.Signature != "" {
			cmd.Printf("           %s\n", m.Symbol.Signature)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	if err := requireService(catalogService != nil, "catalog"); err != nil {
		return err
	}

	stats, err := catalogService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	if statsJSON {
		return outputJSON(cmd, stats)
	}
	cmd.Printf("Documents:        %d\n", stats.Documents)
	cmd.Printf("Versions:         %d\n", stats.Versions)
	cmd.Printf("Chunks:           %d\n", stats.Chunks)
	cmd.Printf("Embedded chunks:  %d\n", stats.EmbeddedChunks)
	cmd.Printf("Indexed vectors:  %d\n", stats.IndexedVectors)
	if len(stats.Languages) > 0 {
		cmd.Println("Languages:")
		for _, lang := range slices.Sorted(maps.Keys(stats.Languages)) {
			cmd.Printf("  %-12s %d\n", lang, stats.Languages[lang])
		}
	}
	if len(stats.SymbolKinds) > 0 {
		cmd.Println("Symbols:")
		for _, kind := range slices.Sorted(maps.Keys(stats.SymbolKinds)) {
			cmd.Printf("  %-12s %d\n", kind, stats.SymbolKinds[kind])
		}
	}
	return nil
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	if err := requireService(ingestService != nil, "ingest"); err != nil {
		return err
	}
	if rebuildClear {
		if err := requireService(catalogService != nil, "catalog"); err != nil {
			return err
		}
		if err := catalogService.ClearIndex(cmd.Context()); err != nil {
			return fmt.Errorf("clear index failed: %w", err)
		}
		cmd.Println("Cleared derived index.")
	}

	n, err := ingestService.Rebuild(cmd.Context())
	if err != nil {
		return fmt.Errorf("rebuild failed after %d document(s): %w", n, err)
	}
	cmd.Printf("Rebuilt %d document(s).\n", n)
	return nil
}
