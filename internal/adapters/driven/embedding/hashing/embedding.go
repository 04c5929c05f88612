// Package hashing provides an offline embedding service based on feature
// hashing. Vectors are deterministic and need no network access, which makes
// the provider the default when no model server is configured.
package hashing

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "feature-hash"
	DefaultDimensions = 256
)

// EmbeddingService maps keyword counts into a fixed number of signed buckets
// and L2-normalises the result.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder. Non-positive dimensions
// fall back to DefaultDimensions.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed generates a vector embedding for the given text.
// Text without keywords yields the zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, s.dimensions)
	for word, count := range domain.ExtractKeywords(text) {
		bucket, sign := s.hash(word)
		// Sublinear term frequency keeps one repeated name from dominating.
		vec[bucket] += sign * (1 + math.Log(float64(count)))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, s.dimensions)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return DefaultModel
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// hash returns the bucket for word and a sign drawn from an independent bit.
func (s *EmbeddingService) hash(word string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(word))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1
	}
	return int((sum & math.MaxInt64) % uint64(s.dimensions)), sign
}
