package driven

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// VersionStore is the append-only per-document version history.
// It is the source of truth; records are never mutated or removed.
type VersionStore interface {
	// Commit appends a snapshot unless its ContentHash equals the latest
	// stored hash for the document, in which case the latest record is
	// returned and created is false. Version and CommittedAt are assigned
	// by the store.
	Commit(ctx context.Context, snapshot domain.VersionRecord) (record domain.VersionRecord, created bool, err error)

	// Latest returns the newest record, or domain.ErrNotFound.
	Latest(ctx context.Context, id domain.DocumentID) (*domain.VersionRecord, error)

	// Get returns a specific version, or domain.ErrNotFound.
	Get(ctx context.Context, id domain.DocumentID, version int) (*domain.VersionRecord, error)

	// History returns all records for a document, oldest first.
	History(ctx context.Context, id domain.DocumentID) ([]domain.VersionRecord, error)

	// LatestBefore returns the newest record with a version number below
	// version, or domain.ErrNotFound.
	LatestBefore(ctx context.Context, id domain.DocumentID, version int) (*domain.VersionRecord, error)

	// ListDocuments returns every known document identity, sorted by key.
	ListDocuments(ctx context.Context) ([]domain.DocumentID, error)
}
