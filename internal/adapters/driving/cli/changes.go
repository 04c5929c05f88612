package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

var (
	changesFrom int
	changesTo   int
	changesJSON bool
	historyJSON bool
)

var changesCmd = &cobra.Command{
	Use:   "changes <path>",
	Short: "Show symbol changes between versions",
	Long: `Shows the symbols added, removed and modified between two versions of a
document. By default the latest version is compared with its predecessor.
Use --from and --to to compare any two stored versions.`,
	Args: cobra.ExactArgs(1),
	RunE: runChanges,
}

var historyCmd = &cobra.Command{
	Use:   "history <path>",
	Short: "List stored versions of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	changesCmd.Flags().IntVar(&changesFrom, "from", 0, "older version to compare")
	changesCmd.Flags().IntVar(&changesTo, "to", 0, "newer version to compare")
	changesCmd.Flags().BoolVar(&changesJSON, "json", false, "output the change record as JSON")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output versions as JSON")
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(historyCmd)
}

func runChanges(cmd *cobra.Command, args []string) error {
	if err := requireService(changeService != nil, "change"); err != nil {
		return err
	}
	id, err := documentID(args[0])
	if err != nil {
		return err
	}

	var record *domain.ChangeRecord
	if changesFrom > 0 || changesTo > 0 {
		if changesFrom <= 0 || changesTo <= 0 {
			return errors.New("--from and --to must be given together")
		}
		record, err = changeService.CompareVersions(cmd.Context(), id, changesFrom, changesTo)
	} else {
		record, err = changeService.GetChangeRecord(cmd.Context(), id)
	}
	if err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}

	if changesJSON {
		return outputJSON(cmd, record)
	}
	printChangeRecord(cmd, record)
	return nil
}

func printChangeRecord(cmd *cobra.Command, record *domain.ChangeRecord) {
	if record == nil {
		cmd.Println("No previous version; nothing to compare.")
		return
	}

	cmd.Printf("%s v%d -> v%d (%s, +%d/-%d lines)\n",
		record.DocumentID, record.FromVersion, record.ToVersion,
		record.Severity, record.Lines.Added, record.Lines.Removed)
	if record.IsEmpty() {
		cmd.Println("  No symbol changes.")
		return
	}
	for i := range record.Added {
		cmd.Printf("  + %s %s\n", record.Added[i].Kind, record.Added[i].QualifiedName())
	}
	for i := range record.Removed {
		cmd.Printf("  - %s %s\n", record.Removed[i].Kind, record.Removed[i].QualifiedName())
	}
	for i := range record.Modified {
		m := record.Modified[i]
		cmd.Printf("  ~ %s %s [%s, +%d/-%d]\n",
			m.New.Kind, m.New.QualifiedName(), m.Severity, m.Lines.Added, m.Lines.Removed)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := requireService(changeService != nil, "change"); err != nil {
		return err
	}
	id, err := documentID(args[0])
	if err != nil {
		return err
	}

	records, err := changeService.History(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}

	if historyJSON {
		return outputJSON(cmd, records)
	}
	if len(records) == 0 {
		cmd.Printf("No versions stored for %s.\n", id)
		return nil
	}
	cmd.Printf("%s:\n", id)
	for i := range records {
		r := &records[i]
		degraded := ""
		if r.ParseDegraded {
			degraded = " (degraded parse)"
		}
		cmd.Printf("  v%d  %s  %s  %d symbols  %s%s\n",
			r.Version, r.CommittedAt.Format("2006-01-02 15:04:05"), r.Language,
			len(r.Symbols), shortHash(r.ContentHash), degraded)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
