package driving

import "github.com/custodia-labs/testctx/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetIndexBackend selects the similarity index backend.
	SetIndexBackend(backend domain.IndexBackend) error

	// Validate checks that current settings are usable.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// GetPipelineConfig returns the post-processor pipeline configuration.
	GetPipelineConfig() domain.PipelineConfig

	// GetSchedulerConfig returns the scheduler configuration.
	GetSchedulerConfig() domain.SchedulerConfig
}
