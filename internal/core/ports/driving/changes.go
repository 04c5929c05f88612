package driving

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// ChangeService exposes version history and change detection.
type ChangeService interface {
	// GetChangeRecord compares the latest version of a document with the
	// previous one. Returns nil without error when fewer than two versions exist.
	GetChangeRecord(ctx context.Context, id domain.DocumentID) (*domain.ChangeRecord, error)

	// CompareVersions compares two arbitrary versions of a document.
	CompareVersions(ctx context.Context, id domain.DocumentID, from, to int) (*domain.ChangeRecord, error)

	// History returns all version records of a document, oldest first.
	History(ctx context.Context, id domain.DocumentID) ([]domain.VersionRecord, error)
}
