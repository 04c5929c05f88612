// Package ai provides factory functions for creating embedding services and
// the similarity index that stores their vectors.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/testctx/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/testctx/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/testctx/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// IndexOpener opens a persistent vector index of the given dimension.
// The sqlite Store satisfies it.
type IndexOpener interface {
	VectorIndex(ctx context.Context, dims int) (driven.VectorIndex, error)
}

// InitResult contains the result of embedding and index initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	VectorIndex      driven.VectorIndex
	Warnings         []string // Non-fatal issues that caused fallback.
	FellBack         bool     // True if fell back to keyword-only mode.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
}

// Initialise creates the embedding service and a vector index sized to it.
// Failures never abort startup: they are reported as warnings and the result
// falls back to keyword-only ranking with both fields nil.
func Initialise(ctx context.Context, settings *domain.AppSettings, opener IndexOpener) *InitResult {
	result := &InitResult{}
	if settings == nil || !settings.Embedding.IsConfigured() {
		return result
	}

	svc, err := CreateAndValidateEmbeddingService(ctx, &settings.Embedding)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		result.FellBack = true
		return result
	}

	index, err := CreateVectorIndex(ctx, settings.Index, svc.Dimensions(), opener)
	if err != nil {
		svc.Close()
		result.Warnings = append(result.Warnings, err.Error())
		result.FellBack = true
		return result
	}

	result.EmbeddingService = svc
	result.VectorIndex = index
	return result
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(
	ctx context.Context,
	settings *domain.EmbeddingSettings,
) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'testctx settings set embedding.provider' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}

	if svc == nil {
		return nil, nil
	}

	// Validate connectivity.
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(pingCtx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}

	return svc, nil
}

// ValidateEmbeddingConfig validates an embedding configuration by creating a service and pinging it.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	if svc == nil {
		return nil
	}
	defer svc.Close()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return svc.Ping(pingCtx)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateVectorIndex opens the similarity index selected by settings.
// The sqlite backend requires a non-nil opener.
func CreateVectorIndex(
	ctx context.Context,
	settings domain.IndexSettings,
	dims int,
	opener IndexOpener,
) (driven.VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", domain.ErrInvalidInput)
	}

	switch settings.Backend {
	case domain.IndexBackendMemory:
		return memory.NewVectorIndex(dims), nil

	case domain.IndexBackendSQLite, "":
		if opener == nil {
			return nil, fmt.Errorf("%w: sqlite index requires a store", domain.ErrVectorIndexUnavailable)
		}
		index, err := opener.VectorIndex(ctx, dims)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return index, nil

	case domain.IndexBackendQdrant:
		index, err := qdrant.New(ctx, settings.QdrantAddr, settings.QdrantCollection, dims)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return index, nil

	default:
		return nil, fmt.Errorf("unsupported index backend: %s", settings.Backend)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
}
