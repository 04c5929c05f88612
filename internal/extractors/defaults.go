package extractors

import (
	"github.com/custodia-labs/testctx/internal/extractors/generic"
	"github.com/custodia-labs/testctx/internal/extractors/golang"
	"github.com/custodia-labs/testctx/internal/extractors/treesitter"
	"github.com/custodia-labs/testctx/internal/logger"
)

// NewDefaultRegistry builds a registry with all built-in extractors.
// Go is always parsed with go/ast. Tree-sitter languages are registered
// only when the binary was built with cgo; otherwise those languages use
// the generic extractor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry(generic.New())
	RegisterDefaults(r)
	return r
}

// RegisterDefaults registers the built-in language extractors with r.
func RegisterDefaults(r *Registry) {
	if treesitter.IsAvailable() {
		r.Register(treesitter.New())
	} else {
		logger.Debug("tree-sitter unavailable (built without cgo), using generic extractor")
	}
	// Registered last so go/ast wins over tree-sitter for Go.
	r.Register(golang.New())
}
