package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available embedding providers.
const (
	// AIProviderNone disables embeddings; retrieval uses keyword ranking.
	AIProviderNone AIProvider = "none"

	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API (or a compatible endpoint).
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderHashing is the built-in offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"
)

// IsValid returns true if the provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderNone, AIProviderOllama, AIProviderOpenAI, AIProviderHashing:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs without a network service.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderHashing || p == AIProviderNone
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderNone:
		return "None (keyword ranking only)"
	case AIProviderOllama:
		return "Ollama (local server)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderHashing:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// IndexBackend selects the SimilarityIndex implementation.
type IndexBackend string

// Available index backends.
const (
	IndexBackendMemory IndexBackend = "memory"
	IndexBackendSQLite IndexBackend = "sqlite"
	IndexBackendQdrant IndexBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexBackendMemory, IndexBackendSQLite, IndexBackendQdrant:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b IndexBackend) String() string {
	return string(b)
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the model's default vector size.
	Dimensions int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderNone {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ResilienceSettings bounds calls to the embedding service.
type ResilienceSettings struct {
	// Timeout applies to each embedding attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// RatePerSecond limits embedding calls. Zero disables limiting.
	RatePerSecond float64
}

// ChunkingSettings controls the chunker.
type ChunkingSettings struct {
	// MaxChars is the chunk size bound in characters.
	MaxChars int
}

// RetrievalSettings controls context assembly.
type RetrievalSettings struct {
	// TopK is the number of candidates retrieved before truncation.
	TopK int

	// MaxChars is the default bundle size bound.
	MaxChars int

	// ChangeBoost multiplies the score of chunks covering changed symbols
	// by (1 + ChangeBoost).
	ChangeBoost float64

	// MinScore drops candidates scoring below it.
	MinScore float64
}

// IndexSettings selects and configures the similarity index.
type IndexSettings struct {
	// Backend is memory, sqlite or qdrant.
	Backend IndexBackend

	// QdrantAddr is the Qdrant gRPC address (host:port).
	QdrantAddr string

	// QdrantCollection is the Qdrant collection name.
	QdrantCollection string
}

// IngestSettings controls ingestion limits.
type IngestSettings struct {
	// MaxFileSize rejects documents larger than this many bytes.
	MaxFileSize int

	// Concurrency bounds parallel ingestion of distinct documents.
	Concurrency int
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// Resilience bounds embedding calls.
	Resilience ResilienceSettings

	// Chunking holds chunker settings.
	Chunking ChunkingSettings

	// Retrieval holds context assembly settings.
	Retrieval RetrievalSettings

	// Index holds similarity index settings.
	Index IndexSettings

	// Ingest holds ingestion limits.
	Ingest IngestSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Embeddings default to the offline hashing provider so the tool works
// without network access.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Dimensions: 256,
		},
		Resilience: ResilienceSettings{
			Timeout:       30 * time.Second,
			MaxRetries:    3,
			BaseDelay:     500 * time.Millisecond,
			MaxDelay:      8 * time.Second,
			RatePerSecond: 0,
		},
		Chunking: ChunkingSettings{
			MaxChars: 1500,
		},
		Retrieval: RetrievalSettings{
			TopK:        10,
			MaxChars:    8000,
			ChangeBoost: 0.5,
			MinScore:    0,
		},
		Index: IndexSettings{
			Backend:          IndexBackendSQLite,
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "testctx_chunks",
		},
		Ingest: IngestSettings{
			MaxFileSize: MaxFileSize,
			Concurrency: 4,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderHashing,
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderNone,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:  "nomic-embed-text",
		AIProviderOpenAI:  "text-embedding-3-small",
		AIProviderHashing: "feature-hash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// DefaultPipelineConfig returns the default pipeline configuration:
// symbol-aware chunking followed by keyword annotation.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "keywords"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"max_chars": 1500,
			},
		},
	}
}
