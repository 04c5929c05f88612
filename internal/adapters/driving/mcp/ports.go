package mcp

import (
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Context assembles ranked context bundles.
	Context driving.ContextService

	// Ingest indexes source files.
	Ingest driving.IngestService

	// Changes exposes version history and change records.
	Changes driving.ChangeService

	// Catalog answers symbol and statistics queries.
	Catalog driving.CatalogService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Context == nil {
		return ErrMissingContextService
	}
	// The remaining ports are optional; their tools report errNotConfigured.
	return nil
}
