package driven

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// ChunkStore persists the chunker output of each document version.
// The most recently saved version of a document is its current version.
type ChunkStore interface {
	// SaveChunks stores the chunks of one document version, replacing any
	// chunks previously saved for that version, and makes it current.
	SaveChunks(ctx context.Context, id domain.DocumentID, version int, chunks []domain.Chunk) error

	// GetChunks returns the chunks of a version in sequence order.
	// Version 0 selects the current version.
	GetChunks(ctx context.Context, id domain.DocumentID, version int) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by ID, or domain.ErrNotFound.
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)

	// CurrentChunks returns the current chunks of one document, or of all
	// documents when id is nil, ordered by document key then sequence.
	CurrentChunks(ctx context.Context, id *domain.DocumentID) ([]domain.Chunk, error)

	// MarkEmbedded sets the Embedded flag on the given chunks.
	MarkEmbedded(ctx context.Context, chunkIDs []string, embedded bool) error

	// ListUnembedded returns up to limit current chunks with Embedded=false.
	ListUnembedded(ctx context.Context, limit int) ([]domain.Chunk, error)

	// Clear removes every chunk.
	Clear(ctx context.Context) error
}
