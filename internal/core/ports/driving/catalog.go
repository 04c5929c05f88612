package driving

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// CatalogService answers inventory questions about ingested code.
type CatalogService interface {
	// FindSymbols returns symbols in the latest version of every document
	// whose name contains the query (case-insensitive). An empty kind
	// matches all kinds.
	FindSymbols(ctx context.Context, query string, kind domain.SymbolKind) ([]domain.SymbolMatch, error)

	// Stats summarises stored history and the derived index.
	Stats(ctx context.Context) (*domain.Stats, error)

	// ClearIndex removes every entry from the derived index. Version
	// history is append-only and is not affected.
	ClearIndex(ctx context.Context) error
}
