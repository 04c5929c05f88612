package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedTimeout    = "embedding.timeout"
	keyEmbedRetries    = "embedding.max_retries"
	keyEmbedBaseDelay  = "embedding.base_delay"
	keyEmbedMaxDelay   = "embedding.max_delay"
	keyEmbedRate       = "embedding.rate_per_second"
	keyChunkMaxChars   = "chunking.max_chars"
	keyRetrievalTopK   = "retrieval.top_k"
	keyRetrievalChars  = "retrieval.max_chars"
	keyRetrievalBoost  = "retrieval.change_boost"
	keyRetrievalMin    = "retrieval.min_score"
	keyIndexBackend    = "index.backend"
	keyQdrantAddr      = "index.qdrant_addr"
	keyQdrantColl      = "index.qdrant_collection"
	keyIngestMaxSize   = "ingest.max_file_size"
	keyIngestWorkers   = "ingest.concurrency"
	keyPipelineProcs   = "pipeline.processors"
	keySchedulerSwitch = "scheduler.enabled"
)

// minChunkChars is the smallest usable chunk bound.
const minChunkChars = 16

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	provider := s.getProvider(keyEmbedProvider, defaults.Embedding.Provider)
	model := s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[provider])
	dims := s.getInt(keyEmbedDims, 0)
	if dims == 0 {
		if d, ok := domain.EmbeddingDimensions()[model]; ok {
			dims = d
		} else {
			dims = defaults.Embedding.Dimensions
		}
	}

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:   provider,
			Model:      model,
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: dims,
		},
		Resilience: domain.ResilienceSettings{
			Timeout:       s.getDuration(keyEmbedTimeout, defaults.Resilience.Timeout),
			MaxRetries:    s.getInt(keyEmbedRetries, defaults.Resilience.MaxRetries),
			BaseDelay:     s.getDuration(keyEmbedBaseDelay, defaults.Resilience.BaseDelay),
			MaxDelay:      s.getDuration(keyEmbedMaxDelay, defaults.Resilience.MaxDelay),
			RatePerSecond: s.getFloat(keyEmbedRate, defaults.Resilience.RatePerSecond),
		},
		Chunking: domain.ChunkingSettings{
			MaxChars: s.getInt(keyChunkMaxChars, defaults.Chunking.MaxChars),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:        s.getInt(keyRetrievalTopK, defaults.Retrieval.TopK),
			MaxChars:    s.getInt(keyRetrievalChars, defaults.Retrieval.MaxChars),
			ChangeBoost: s.getFloat(keyRetrievalBoost, defaults.Retrieval.ChangeBoost),
			MinScore:    s.getFloat(keyRetrievalMin, defaults.Retrieval.MinScore),
		},
		Index: domain.IndexSettings{
			Backend:          s.getBackend(defaults.Index.Backend),
			QdrantAddr:       s.getString(keyQdrantAddr, defaults.Index.QdrantAddr),
			QdrantCollection: s.getString(keyQdrantColl, defaults.Index.QdrantCollection),
		},
		Ingest: domain.IngestSettings{
			MaxFileSize: s.getInt(keyIngestMaxSize, defaults.Ingest.MaxFileSize),
			Concurrency: s.getInt(keyIngestWorkers, defaults.Ingest.Concurrency),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
		label string
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String(), "embedding provider"},
		{keyEmbedModel, settings.Embedding.Model, "embedding model"},
		{keyEmbedBaseURL, settings.Embedding.BaseURL, "embedding base_url"},
		{keyEmbedDims, settings.Embedding.Dimensions, "embedding dimensions"},
		{keyEmbedTimeout, settings.Resilience.Timeout.String(), "embedding timeout"},
		{keyEmbedRetries, settings.Resilience.MaxRetries, "embedding max_retries"},
		{keyEmbedBaseDelay, settings.Resilience.BaseDelay.String(), "embedding base_delay"},
		{keyEmbedMaxDelay, settings.Resilience.MaxDelay.String(), "embedding max_delay"},
		{keyEmbedRate, settings.Resilience.RatePerSecond, "embedding rate_per_second"},
		{keyChunkMaxChars, settings.Chunking.MaxChars, "chunking max_chars"},
		{keyRetrievalTopK, settings.Retrieval.TopK, "retrieval top_k"},
		{keyRetrievalChars, settings.Retrieval.MaxChars, "retrieval max_chars"},
		{keyRetrievalBoost, settings.Retrieval.ChangeBoost, "retrieval change_boost"},
		{keyRetrievalMin, settings.Retrieval.MinScore, "retrieval min_score"},
		{keyIndexBackend, settings.Index.Backend.String(), "index backend"},
		{keyQdrantAddr, settings.Index.QdrantAddr, "qdrant address"},
		{keyQdrantColl, settings.Index.QdrantCollection, "qdrant collection"},
		{keyIngestMaxSize, settings.Ingest.MaxFileSize, "ingest max_file_size"},
		{keyIngestWorkers, settings.Ingest.Concurrency, "ingest concurrency"},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.label, err)
		}
	}

	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}

	// Validate API key if required
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}

	// Ollama needs a base URL; cloud and offline providers do not
	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = "http://localhost:11434"
		}
	} else if provider != domain.AIProviderOpenAI {
		settings.Embedding.BaseURL = ""
	}

	// Set API key
	settings.Embedding.APIKey = apiKey

	// Update vector dimensions based on model
	if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// SetIndexBackend selects the similarity index backend.
func (s *SettingsService) SetIndexBackend(backend domain.IndexBackend) error {
	if !backend.IsValid() {
		return fmt.Errorf("invalid index backend: %s", backend)
	}
	if err := s.configStore.Set(keyIndexBackend, backend.String()); err != nil {
		return fmt.Errorf("save index backend: %w", err)
	}
	return nil
}

// Validate checks that current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if settings.Embedding.Provider.RequiresAPIKey() && settings.Embedding.APIKey == "" {
		return fmt.Errorf("embedding provider %q requires an API key", settings.Embedding.Provider.Description())
	}
	if !settings.Index.Backend.IsValid() {
		return fmt.Errorf("invalid index backend: %s", settings.Index.Backend)
	}
	if settings.Index.Backend == domain.IndexBackendQdrant && settings.Index.QdrantAddr == "" {
		return fmt.Errorf("index backend %q requires %s", settings.Index.Backend, keyQdrantAddr)
	}
	if settings.Chunking.MaxChars < minChunkChars {
		return fmt.Errorf("%s must be at least %d", keyChunkMaxChars, minChunkChars)
	}
	if settings.Retrieval.TopK < 1 {
		return fmt.Errorf("%s must be positive", keyRetrievalTopK)
	}
	if settings.Retrieval.MaxChars < 1 {
		return fmt.Errorf("%s must be positive", keyRetrievalChars)
	}
	if settings.Retrieval.ChangeBoost < 0 {
		return fmt.Errorf("%s must not be negative", keyRetrievalBoost)
	}
	if settings.Resilience.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative", keyEmbedRetries)
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

// getFloat reads numbers that TOML may decode as int64 or float64.
func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := s.parseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.IndexBackend) domain.IndexBackend {
	val := s.configStore.GetString(keyIndexBackend)
	if val == "" {
		return defaultVal
	}
	backend := domain.IndexBackend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

// GetPipelineConfig returns the post-processor pipeline configuration.
// Returns default configuration if nothing is configured. The chunker bound
// follows chunking.max_chars unless pipeline.chunker.max_chars is set.
func (s *SettingsService) GetPipelineConfig() domain.PipelineConfig {
	defaults := domain.DefaultPipelineConfig()

	// Try to load processors list from config
	if processors := s.configStore.GetStringSlice(keyPipelineProcs); len(processors) > 0 {
		defaults.Processors = processors
	}

	if maxChars := s.configStore.GetInt(keyChunkMaxChars); maxChars > 0 {
		defaults.ProcessorConfigs["chunker"]["max_chars"] = maxChars
	}

	// Load per-processor configs
	for _, name := range defaults.Processors {
		prefix := "pipeline." + name + "."
		cfg := s.loadProcessorConfig(prefix)
		if len(cfg) > 0 {
			// Merge with existing defaults
			existing := defaults.ProcessorConfigs[name]
			if existing == nil {
				existing = make(map[string]any)
			}
			for k, v := range cfg {
				existing[k] = v
			}
			defaults.ProcessorConfigs[name] = existing
		}
	}

	return defaults
}

// loadProcessorConfig loads config keys with a given prefix into a map.
func (s *SettingsService) loadProcessorConfig(prefix string) map[string]any {
	cfg := make(map[string]any)

	knownKeys := []string{"max_chars"}
	for _, key := range knownKeys {
		fullKey := prefix + key
		if val, exists := s.configStore.Get(fullKey); exists {
			cfg[key] = val
		}
	}

	return cfg
}

// GetSchedulerConfig returns the scheduler configuration.
// Returns default configuration if nothing is configured.
func (s *SettingsService) GetSchedulerConfig() domain.SchedulerConfig {
	defaults := domain.DefaultSchedulerConfig()

	// Master switch
	defaults.Enabled = s.getBool(keySchedulerSwitch, defaults.Enabled)

	// Per-task config
	// Map from task ID to config key (underscore version for TOML)
	taskKeys := map[string]string{
		domain.TaskIDEmbeddingRetry: "embedding_retry",
		domain.TaskIDIndexRebuild:   "index_rebuild",
	}

	for taskID, configKey := range taskKeys {
		prefix := "scheduler." + configKey + "."

		taskCfg := defaults.TaskConfigs[taskID]
		taskCfg.Enabled = s.getBool(prefix+"enabled", taskCfg.Enabled)

		// Check interval (duration string like "45m", "1h")
		taskCfg.Interval = s.getDuration(prefix+"interval", taskCfg.Interval)

		defaults.TaskConfigs[taskID] = taskCfg
	}

	return defaults
}

// parseDuration parses a duration string.
func (s *SettingsService) parseDuration(str string) (time.Duration, error) {
	return time.ParseDuration(str)
}
