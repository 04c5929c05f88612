// Command testctx assembles source context for regression test generation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/testctx/internal/adapters/driven/ai"
	"github.com/custodia-labs/testctx/internal/adapters/driven/config/file"
	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/testctx/internal/adapters/driving/cli"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/services"
	"github.com/custodia-labs/testctx/internal/extractors"
	"github.com/custodia-labs/testctx/internal/logger"
	"github.com/custodia-labs/testctx/internal/postprocessors"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	// Values from .env never override variables already set.
	if err := file.LoadDotEnv("."); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}

// storage is the set of persistence ports selected by --ephemeral.
type storage struct {
	versions  driven.VersionStore
	chunks    driven.ChunkStore
	scheduler driven.SchedulerStore
	opener    ai.IndexOpener
	close     func() error
}

// memoryOpener opens process-local vector indexes.
type memoryOpener struct{}

func (memoryOpener) VectorIndex(_ context.Context, dims int) (driven.VectorIndex, error) {
	return memory.NewVectorIndex(dims), nil
}

func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, func() error, error) {
	var configStore driven.ConfigStore
	if opts.Ephemeral {
		configStore = memory.NewConfigStore()
	} else {
		store, err := file.NewConfigStore(opts.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening config: %w", err)
		}
		configStore = store
	}
	settingsService := services.NewSettingsService(configStore)

	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	st, err := openStorage(opts)
	if err != nil {
		return nil, nil, err
	}

	initResult := ai.Initialise(ctx, settings, st.opener)
	for _, w := range initResult.Warnings {
		logger.Warn("%s; falling back to keyword ranking", w)
	}

	var embedder driven.EmbeddingService
	if initResult.EmbeddingService != nil {
		embedder = services.NewResilientEmbedder(initResult.EmbeddingService, settings.Resilience)
	}
	index := initResult.VectorIndex

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := registry.BuildPipeline(settingsService.GetPipelineConfig())
	if err != nil {
		initResult.Close()
		_ = st.close()
		return nil, nil, fmt.Errorf("building pipeline: %w", err)
	}

	locks := services.NewKeyedLocker()
	extraction := services.NewExtractionService(extractors.NewDefaultRegistry())
	changeService := services.NewChangeService(st.versions)
	ingestService := services.NewIngestService(
		st.versions, st.chunks, extraction, pipeline, index, embedder, locks, settings.Ingest,
	)
	contextService := services.NewContextService(
		st.chunks, index, embedder, changeService, locks, settings.Retrieval,
	)
	catalogService := services.NewCatalogService(st.versions, st.chunks, index)
	scheduler := services.NewScheduler(settingsService.GetSchedulerConfig(), st.scheduler, ingestService)

	svc := &cli.Services{
		Ingest:            ingestService,
		Changes:           changeService,
		Context:           contextService,
		Catalog:           catalogService,
		Settings:          settingsService,
		Scheduler:         scheduler,
		ValidateEmbedding: ai.ValidateEmbeddingConfig,
	}

	release := func() error {
		stopErr := scheduler.Stop()
		initResult.Close()
		return errors.Join(stopErr, st.close())
	}
	return svc, release, nil
}

func openStorage(opts cli.Options) (*storage, error) {
	if opts.Ephemeral {
		return &storage{
			versions:  memory.NewVersionStore(),
			chunks:    memory.NewChunkStore(),
			scheduler: memory.NewSchedulerStore(),
			opener:    memoryOpener{},
			close:     func() error { return nil },
		}, nil
	}

	dir := ""
	if opts.DataDir != "" {
		dir = filepath.Join(opts.DataDir, "data")
	}
	store, err := sqlite.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("using store at %s", store.Path())
	return &storage{
		versions:  store.VersionStore(),
		chunks:    store.ChunkStore(),
		scheduler: store.SchedulerStore(),
		opener:    store,
		close:     store.Close,
	}, nil
}

// Ensure the SQLite store can back the vector index factory.
var _ ai.IndexOpener = (*sqlite.Store)(nil)

// Ensure the ephemeral opener satisfies the same contract.
var _ ai.IndexOpener = memoryOpener{}
