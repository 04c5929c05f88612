package driven

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// PostProcessor turns a version snapshot into chunks.
// PostProcessors are chained in a pipeline (e.g., chunking, keyword annotation).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a version snapshot and returns chunks.
	// If the processor annotates chunks (e.g., keywords), it receives and returns chunks.
	// If the processor creates chunks (e.g., chunker), it receives nil and returns new chunks.
	Process(ctx context.Context, rec *domain.VersionRecord, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the snapshot through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, rec *domain.VersionRecord) ([]domain.Chunk, error)
}
