package driven

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// LanguageExtractor parses source text for one or more languages.
// A parse failure is reported as an error; the caller degrades to the
// generic extractor.
type LanguageExtractor interface {
	// Name returns the extractor name for logging.
	Name() string

	// Languages returns the language tags this extractor handles.
	Languages() []domain.Language

	// Parse parses text and returns its capability set.
	Parse(ctx context.Context, text string, lang domain.Language) (ParsedSource, error)
}

// ParsedSource is the per-file capability set of a LanguageExtractor.
// Returned symbols carry spans but need not be fingerprinted.
type ParsedSource interface {
	// FindFunctions returns functions and methods in source order.
	FindFunctions() []domain.Symbol

	// FindClasses returns classes, structs, interfaces and similar types.
	FindClasses() []domain.Symbol

	// FindImports returns import declarations.
	FindImports() []domain.Symbol

	// EstimateComplexity returns 1 + the number of decision points in the
	// symbol's body. It must be deterministic and monotonic in branching.
	EstimateComplexity(sym domain.Symbol) int
}

// ExtractorRegistry selects an extractor by language tag.
type ExtractorRegistry interface {
	// Lookup returns the language-specific extractor, if registered.
	Lookup(lang domain.Language) (LanguageExtractor, bool)

	// Fallback returns the generic extractor used for unknown languages
	// and degraded parses.
	Fallback() LanguageExtractor
}
