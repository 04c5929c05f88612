// Package cli implements the testctx command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services injected by SetServices or the bootstrap function.
var (
	ingestService   driving.IngestService
	changeService   driving.ChangeService
	contextService  driving.ContextService
	catalogService  driving.CatalogService
	settingsService driving.SettingsService
	scheduler       driving.Scheduler

	validateEmbedding EmbeddingValidator
)

// Global flags.
var (
	verbose    bool
	moduleName string
	dataDir    string
	ephemeral  bool
)

var (
	bootstrap    BootstrapFunc
	bootstrapped bool
	release      func() error
)

// Services holds the driving ports used by commands.
type Services struct {
	Ingest    driving.IngestService
	Changes   driving.ChangeService
	Context   driving.ContextService
	Catalog   driving.CatalogService
	Settings  driving.SettingsService
	Scheduler driving.Scheduler

	// ValidateEmbedding checks a saved provider is reachable.
	// Optional.
	ValidateEmbedding EmbeddingValidator
}

// EmbeddingValidator pings an embedding provider configuration.
type EmbeddingValidator func(ctx context.Context, settings *domain.EmbeddingSettings) error

// Options are the global flags passed to a BootstrapFunc.
type Options struct {
	// DataDir overrides the default data directory.
	DataDir string

	// Ephemeral selects in-memory storage.
	Ephemeral bool
}

// BootstrapFunc builds services once flags are parsed. The returned
// function releases them and may be nil.
type BootstrapFunc func(ctx context.Context, opts Options) (*Services, func() error, error)

var rootCmd = &cobra.Command{
	Use:   "testctx",
	Short: "Context retrieval for test generation",
	Long: `testctx ingests source files, tracks symbol-level changes between
versions, and assembles ranked, size-bounded context bundles for
generating regression tests.`,
	SilenceUsage:      true,
	PersistentPreRunE: runBootstrap,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&moduleName, "module", "m", "", "logical module name for document identities")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.testctx)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "keep all state in memory")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetServices injects services directly, bypassing bootstrap.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	ingestService = s.Ingest
	changeService = s.Changes
	contextService = s.Context
	catalogService = s.Catalog
	settingsService = s.Settings
	scheduler = s.Scheduler
	validateEmbedding = s.ValidateEmbedding
}

// SetBootstrap registers the function that builds services before a
// command runs.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
	bootstrapped = false
}

// Execute runs the root command and releases bootstrapped services.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if release != nil {
		if cerr := release(); cerr != nil {
			logger.Warn("release services: %v", cerr)
		}
		release = nil
	}
	return err
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || bootstrapped || cmd == versionCmd {
		return nil
	}
	svc, closeFn, err := bootstrap(cmd.Context(), Options{DataDir: dataDir, Ephemeral: ephemeral})
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	SetServices(svc)
	release = closeFn
	bootstrapped = true
	return nil
}

// documentID builds the identity for a path argument under --module.
func documentID(path string) (domain.DocumentID, error) {
	return domain.NewDocumentID(filepath.ToSlash(path), moduleName)
}

func requireService(configured bool, name string) error {
	if !configured {
		return errors.New(name + " service not configured")
	}
	return nil
}
