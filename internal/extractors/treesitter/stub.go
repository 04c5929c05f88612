//go:build !cgo

// Package treesitter extracts symbols with tree-sitter grammars.
// This build was compiled without cgo, so the extractor is unavailable.
package treesitter

import (
	"context"
	"errors"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// ErrNoCGO is returned when tree-sitter parsing is unavailable due to missing cgo.
var ErrNoCGO = errors.New("tree-sitter extraction requires cgo")

// Verify interface compliance.
var _ driven.LanguageExtractor = (*Extractor)(nil)

// Extractor is a stub for non-cgo builds.
type Extractor struct{}

// New creates the stub extractor.
func New() *Extractor {
	return &Extractor{}
}

// IsAvailable returns false when cgo is disabled.
func IsAvailable() bool {
	return false
}

// Name returns the extractor name.
func (e *Extractor) Name() string {
	return "treesitter"
}

// Languages returns nil; nothing is registered without cgo.
func (e *Extractor) Languages() []domain.Language {
	return nil
}

// Parse always fails with ErrNoCGO.
func (e *Extractor) Parse(context.Context, string, domain.Language) (driven.ParsedSource, error) {
	return nil, ErrNoCGO
}
