package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

var (
	contextMaxChars int
	contextTopK     int
	contextFile     string
	contextJSON     bool
	contextRaw      bool
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble a context bundle for a query",
	Long: `Ranks indexed chunks against the query and returns the best ones that
fit within the character budget. With --file, retrieval is scoped to one
document and chunks covering its most recently changed symbols are boosted.

Ranking is semantic when an embedding provider is configured and falls
back to keyword overlap otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	contextCmd.Flags().IntVar(&contextMaxChars, "max-chars", 0, "character budget (0 = configured default)")
	contextCmd.Flags().IntVarP(&contextTopK, "top-k", "k", 0, "candidates to rank (0 = configured default)")
	contextCmd.Flags().StringVarP(&contextFile, "file", "f", "", "scope retrieval to this document")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output the bundle as JSON")
	contextCmd.Flags().BoolVar(&contextRaw, "raw", false, "print only the bundle text")
	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	if err := requireService(contextService != nil, "context"); err != nil {
		return err
	}

	req := domain.ContextRequest{
		Query:    args[0],
		MaxChars: contextMaxChars,
		TopK:     contextTopK,
	}
	if contextFile != "" {
		id, err := documentID(contextFile)
		if err != nil {
			return err
		}
		req.Document = &id
	}

	bundle, err := contextService.AssembleContext(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("context assembly failed: %w", err)
	}

	switch {
	case contextJSON:
		return outputJSON(cmd, bundle)
	case contextRaw:
		cmd.Println(bundle.Text())
		return nil
	}
	printBundle(cmd, bundle)
	return nil
}

func printBundle(cmd *cobra.Command, bundle *domain.ContextBundle) {
	if len(bundle.Items) == 0 {
		cmd.Println("No relevant context found.")
		for _, w := range bundle.Warnings {
			cmd.Printf("warning: %s\n", w)
		}
		return
	}

	cmd.Printf("Context (%s ranking, %d/%d chars, %d of %d candidates)\n",
		bundle.Mode, bundle.TotalChars, bundle.MaxChars, len(bundle.Items), bundle.Candidates)
	if bundle.Truncated {
		cmd.Println("Top chunk truncated to fit the budget.")
	}
	if bundle.Change != nil && !bundle.Change.IsEmpty() {
		cmd.Printf("Latest change: v%d -> v%d (%s)\n",
			bundle.Change.FromVersion, bundle.Change.ToVersion, bundle.Change.Severity)
	}
	for _, w := range bundle.Warnings {
		cmd.Printf("warning: %s\n", w)
	}
	cmd.Println()

	for i := range bundle.Items {
		item := &bundle.Items[i]
		marker := ""
		if item.Boosted {
			marker = " *changed*"
		}
		cmd.Printf("[%d] %s v%d lines %d-%d (%.3f)%s\n",
			i+1, item.Chunk.DocumentID, item.Chunk.Version,
			item.Chunk.StartLine, item.Chunk.EndLine, item.Score, marker)
		cmd.Println(item.Chunk.Content())
		cmd.Println()
	}
}
