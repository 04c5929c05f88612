package driven

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// VectorIndex stores one embedding per chunk and answers cosine-similarity
// queries. It is a derived cache: everything in it can be rebuilt from the
// VersionStore and ChunkStore.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a single chunk.
	// Returns domain.ErrStaleIndexConflict if the index holds a different
	// version of the chunk's document.
	Upsert(ctx context.Context, entry VectorEntry) error

	// Reindex atomically replaces every entry of a document with entries.
	// Returns domain.ErrStaleIndexConflict if the index already holds a newer
	// version of the document. An empty entries slice still records version.
	Reindex(ctx context.Context, id domain.DocumentID, version int, entries []VectorEntry) error

	// Search returns up to k hits ranked by descending cosine similarity.
	// Ties break by lowest sequence, then by chunk ID.
	Search(ctx context.Context, query []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// IndexedVersion returns the document version currently indexed,
	// or 0 if the document has no entries.
	IndexedVersion(ctx context.Context, id domain.DocumentID) (int, error)

	// DeleteDocument removes all entries of a document.
	DeleteDocument(ctx context.Context, id domain.DocumentID) error

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// VectorEntry binds an embedding to a chunk.
type VectorEntry struct {
	// ChunkID is the chunk identity.
	ChunkID string

	// DocumentID identifies the owning document.
	DocumentID domain.DocumentID

	// Version is the document version the chunk belongs to.
	Version int

	// Sequence is the chunk's position in the document, used for tie-breaks.
	Sequence int

	// Vector is the embedding.
	Vector []float32
}

// VectorFilter restricts a search.
type VectorFilter struct {
	// Document scopes the search to a single document when non-nil.
	Document *domain.DocumentID
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// DocumentID identifies the owning document.
	DocumentID domain.DocumentID

	// Version is the document version of the chunk.
	Version int

	// Sequence is the chunk's position in the document.
	Sequence int

	// Similarity is the cosine similarity score (-1 to 1).
	Similarity float64
}
