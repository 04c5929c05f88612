package driving

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// ContextService assembles ranked, size-bounded context for test generation.
type ContextService interface {
	// AssembleContext retrieves and ranks chunks relevant to the query.
	// Query-time embedding failures degrade to keyword ranking rather than
	// failing the request.
	AssembleContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextBundle, error)
}
