// Package extractors provides the language-specific symbol extractors and
// the registry that selects between them by language tag.
package extractors

import (
	"sort"
	"sync"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps language tags to extractors.
// The fallback extractor handles unknown tags and degraded parses.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.Language]driven.LanguageExtractor
	fallback   driven.LanguageExtractor
}

// NewRegistry creates a registry with the given fallback extractor.
func NewRegistry(fallback driven.LanguageExtractor) *Registry {
	return &Registry{
		extractors: make(map[domain.Language]driven.LanguageExtractor),
		fallback:   fallback,
	}
}

// Register adds an extractor for every language it declares.
// A later registration for the same language replaces the earlier one.
func (r *Registry) Register(ext driven.LanguageExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lang := range ext.Languages() {
		r.extractors[lang] = ext
	}
}

// Lookup returns the extractor registered for lang.
func (r *Registry) Lookup(lang domain.Language) (driven.LanguageExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extractors[lang]
	return ext, ok
}

// Fallback returns the generic extractor.
func (r *Registry) Fallback() driven.LanguageExtractor {
	return r.fallback
}

// Languages returns the registered language tags, sorted.
func (r *Registry) Languages() []domain.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]domain.Language, 0, len(r.extractors))
	for lang := range r.extractors {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}
