package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
)

func TestNewSettingsService(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	require.NotNil(t, service)
	assert.Equal(t, store, service.configStore)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, "feature-hash", settings.Embedding.Model)
	assert.Equal(t, defaults.Embedding.Dimensions, settings.Embedding.Dimensions)
	assert.Equal(t, defaults.Resilience, settings.Resilience)
	assert.Equal(t, defaults.Chunking, settings.Chunking)
	assert.Equal(t, defaults.Retrieval, settings.Retrieval)
	assert.Equal(t, defaults.Index, settings.Index)
	assert.Equal(t, defaults.Ingest, settings.Ingest)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStoreFrom(map[string]any{
		"embedding.provider":     "ollama",
		"embedding.model":        "all-minilm",
		"embedding.timeout":      "5s",
		"embedding.max_retries":  int64(1),
		"chunking.max_chars":     int64(400),
		"retrieval.top_k":        int64(3),
		"retrieval.change_boost": int64(2),
		"retrieval.min_score":    0.25,
		"index.backend":          "qdrant",
		"ingest.concurrency":     int64(8),
	})
	service := NewSettingsService(store)

	settings, err := service.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, "all-minilm", settings.Embedding.Model)
	assert.Equal(t, 384, settings.Embedding.Dimensions)
	assert.Equal(t, 5*time.Second, settings.Resilience.Timeout)
	assert.Equal(t, 1, settings.Resilience.MaxRetries)
	assert.Equal(t, 400, settings.Chunking.MaxChars)
	assert.Equal(t, 3, settings.Retrieval.TopK)
	assert.InDelta(t, 2.0, settings.Retrieval.ChangeBoost, 1e-9)
	assert.InDelta(t, 0.25, settings.Retrieval.MinScore, 1e-9)
	assert.Equal(t, domain.IndexBackendQdrant, settings.Index.Backend)
	assert.Equal(t, 8, settings.Ingest.Concurrency)
}

func TestSettingsService_Get_InvalidValuesReturnDefaults(t *testing.T) {
	store := memory.NewConfigStoreFrom(map[string]any{
		"embedding.provider":  "anthropic",
		"embedding.timeout":   "soon",
		"index.backend":       "faiss",
		"retrieval.min_score": "high",
	})
	service := NewSettingsService(store)

	settings, err := service.Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.Resilience.Timeout, settings.Resilience.Timeout)
	assert.Equal(t, defaults.Index.Backend, settings.Index.Backend)
	assert.Zero(t, settings.Retrieval.MinScore)
}

func TestSettingsService_SaveRoundTrip(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings := domain.DefaultAppSettings()
	settings.Embedding.Provider = domain.AIProviderOpenAI
	settings.Embedding.Model = "text-embedding-3-large"
	settings.Embedding.APIKey = "sk-test"
	settings.Embedding.Dimensions = 3072
	settings.Resilience.MaxDelay = 20 * time.Second
	settings.Retrieval.ChangeBoost = 0.75
	settings.Index.Backend = domain.IndexBackendMemory

	require.NoError(t, service.Save(&settings))

	got, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, settings, *got)
}

func TestSettingsService_Save_EmptyAPIKeyKeepsStored(t *testing.T) {
	store := memory.NewConfigStoreFrom(map[string]any{"embedding.api_key": "sk-kept"})
	service := NewSettingsService(store)

	settings := domain.DefaultAppSettings()
	require.NoError(t, service.Save(&settings))

	assert.Equal(t, "sk-kept", store.GetString("embedding.api_key"))
}

func TestSettingsService_Save_PropagatesStoreError(t *testing.T) {
	store := &failingConfigStore{ConfigStore: memory.NewConfigStore(), failOn: "retrieval.top_k"}
	service := NewSettingsService(store)

	settings := domain.DefaultAppSettings()
	err := service.Save(&settings)

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "retrieval top_k")
}

func TestSettingsService_SetEmbeddingProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  domain.AIProvider
		model     string
		apiKey    string
		wantModel string
		wantURL   string
		wantDims  int
	}{
		{"ollama default model", domain.AIProviderOllama, "", "", "nomic-embed-text", "http://localhost:11434", 768},
		{"openai explicit model", domain.AIProviderOpenAI, "text-embedding-3-large", "sk-test", "text-embedding-3-large", "", 3072},
		{"hashing offline", domain.AIProviderHashing, "", "", "feature-hash", "", 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewSettingsService(memory.NewConfigStore())

			require.NoError(t, service.SetEmbeddingProvider(tt.provider, tt.model, tt.apiKey))

			settings, err := service.Get()
			require.NoError(t, err)
			assert.Equal(t, tt.provider, settings.Embedding.Provider)
			assert.Equal(t, tt.wantModel, settings.Embedding.Model)
			assert.Equal(t, tt.wantURL, settings.Embedding.BaseURL)
			assert.Equal(t, tt.wantDims, settings.Embedding.Dimensions)
		})
	}
}

func TestSettingsService_SetEmbeddingProvider_PreservesExistingBaseURL(t *testing.T) {
	store := memory.NewConfigStoreFrom(map[string]any{"embedding.base_url": "http://gpu-box:11434"})
	service := NewSettingsService(store)

	require.NoError(t, service.SetEmbeddingProvider(domain.AIProviderOllama, "", ""))
	assert.Equal(t, "http://gpu-box:11434", store.GetString("embedding.base_url"))
}

func TestSettingsService_SetEmbeddingProvider_Errors(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	err := service.SetEmbeddingProvider(domain.AIProviderOpenAI, "", "")
	assert.ErrorContains(t, err, "API key required")

	err = service.SetEmbeddingProvider(domain.AIProvider("anthropic"), "", "")
	assert.ErrorContains(t, err, "invalid embedding provider")
}

func TestSettingsService_SetIndexBackend(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	require.NoError(t, service.SetIndexBackend(domain.IndexBackendQdrant))
	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.IndexBackendQdrant, settings.Index.Backend)

	assert.Error(t, service.SetIndexBackend(domain.IndexBackend("faiss")))
}

func TestSettingsService_Validate(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr string
	}{
		{"defaults", nil, ""},
		{"openai without key", map[string]any{"embedding.provider": "openai"}, "requires an API key"},
		{"openai with key", map[string]any{"embedding.provider": "openai", "embedding.api_key": "sk"}, ""},
		{"qdrant falls back to default address", map[string]any{"index.backend": "qdrant", "index.qdrant_addr": ""}, ""},
		{"tiny chunks", map[string]any{"chunking.max_chars": 4}, "chunking.max_chars"},
		{"negative top_k", map[string]any{"retrieval.top_k": -1}, "retrieval.top_k"},
		{"negative bound", map[string]any{"retrieval.max_chars": -5}, "retrieval.max_chars"},
		{"negative boost", map[string]any{"retrieval.change_boost": -0.5}, "retrieval.change_boost"},
		{"negative retries", map[string]any{"embedding.max_retries": -1}, "embedding.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewSettingsService(memory.NewConfigStoreFrom(tt.values))
			err := service.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())
	assert.Equal(t, domain.DefaultAppSettings(), service.GetDefaults())
}

func TestSettingsService_GetPipelineConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		service := NewSettingsService(memory.NewConfigStore())
		assert.Equal(t, domain.DefaultPipelineConfig(), service.GetPipelineConfig())
	})

	t.Run("chunking bound flows to chunker", func(t *testing.T) {
		service := NewSettingsService(memory.NewConfigStoreFrom(map[string]any{"chunking.max_chars": 300}))
		cfg := service.GetPipelineConfig()
		assert.Equal(t, 300, cfg.ProcessorConfigs["chunker"]["max_chars"])
	})

	t.Run("processor override wins", func(t *testing.T) {
		service := NewSettingsService(memory.NewConfigStoreFrom(map[string]any{
			"chunking.max_chars":         300,
			"pipeline.chunker.max_chars": 200,
			"pipeline.processors":        []string{"chunker"},
		}))
		cfg := service.GetPipelineConfig()
		assert.Equal(t, []string{"chunker"}, cfg.Processors)
		assert.Equal(t, 200, cfg.ProcessorConfigs["chunker"]["max_chars"])
	})
}

func TestSettingsService_GetSchedulerConfig(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStoreFrom(map[string]any{
		"scheduler.enabled":                false,
		"scheduler.index_rebuild.enabled":  true,
		"scheduler.index_rebuild.interval": "6h",
		"scheduler.embedding_retry.interval": "bogus",
	}))

	cfg := service.GetSchedulerConfig()

	assert.False(t, cfg.Enabled)
	rebuild := cfg.GetTaskConfig(domain.TaskIDIndexRebuild)
	assert.True(t, rebuild.Enabled)
	assert.Equal(t, 6*time.Hour, rebuild.Interval)
	assert.Equal(t, 5*time.Minute, cfg.GetTaskConfig(domain.TaskIDEmbeddingRetry).Interval)
}

// failingConfigStore fails Set for one key.
type failingConfigStore struct {
	*memory.ConfigStore
	failOn string
}

func (f *failingConfigStore) Set(key string, value any) error {
	if f.failOn == "" || key == f.failOn {
		return assert.AnError
	}
	return f.ConfigStore.Set(key, value)
}
