package driving

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// IngestService indexes source files and maintains the derived index.
type IngestService interface {
	// Ingest commits a new version of a file (if its content changed),
	// chunks it and reindexes its embeddings. Non-fatal conditions are
	// returned as warnings on a successful result; only identity or
	// storage failures are returned as errors.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// IngestBatch ingests several files concurrently. Results are returned
	// in request order; a failed request leaves a nil result and its error
	// is joined into the returned error.
	IngestBatch(ctx context.Context, reqs []domain.IngestRequest) ([]*domain.IngestResult, error)

	// Rebuild regenerates chunks and embeddings for the latest version of
	// every document from the version history.
	Rebuild(ctx context.Context) (int, error)

	// RetryUnembedded re-attempts embedding of chunks that failed during
	// ingestion. Returns the number of chunks now indexed.
	RetryUnembedded(ctx context.Context, limit int) (int, error)
}
