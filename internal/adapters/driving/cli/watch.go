package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/testctx/internal/adapters/driving/watcher"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/logger"
)

var (
	watchDebounce    time.Duration
	watchNoScheduler bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest a directory and re-ingest files as they change",
	Long: `Ingests every supported file under the directory, then watches it and
re-ingests files when they are created or written. Background tasks such as
embedding retry run alongside unless --no-scheduler is given.

Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before re-ingesting a file")
	watchCmd.Flags().BoolVar(&watchNoScheduler, "no-scheduler", false, "do not run background tasks")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireService(ingestService != nil, "ingest"); err != nil {
		return err
	}

	w, err := watcher.New(ingestService, watcher.Config{
		Root:     args[0],
		Module:   moduleName,
		Debounce: watchDebounce,
	})
	if err != nil {
		return err
	}
	w.OnIngest(func(path string, result *domain.IngestResult, err error) {
		switch {
		case err != nil:
			cmd.Printf("! %s: %v\n", path, err)
		case result.Created:
			cmd.Printf("~ %s v%d (%d symbols, %d chunks)\n", path, result.Version, result.Symbols, result.Chunks)
		}
	})

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return w.Run(ctx)
	})
	if scheduler != nil && !watchNoScheduler {
		g.Go(func() error {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return scheduler.Stop()
		})
	}

	g.Go(func() error {
		select {
		case <-w.Ready():
			cmd.Printf("Watching %s (Ctrl-C to stop)\n", args[0])
		case <-ctx.Done():
		}
		return nil
	})

	err = g.Wait()
	logger.Debug("watch stopped")
	return err
}
