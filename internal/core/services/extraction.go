package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/logger"
)

// ExtractionService turns source text into fingerprinted symbols using the
// registered language extractors.
type ExtractionService struct {
	registry driven.ExtractorRegistry
}

// NewExtractionService creates an extraction service.
func NewExtractionService(registry driven.ExtractorRegistry) *ExtractionService {
	return &ExtractionService{registry: registry}
}

// Extract parses text and returns its symbols in source order.
// When the language-specific extractor fails, the generic extractor is used
// and a ParseDegraded warning is returned; this is not an error.
func (s *ExtractionService) Extract(
	ctx context.Context, text string, lang domain.Language,
) ([]domain.Symbol, []domain.Warning, error) {
	var warnings []domain.Warning

	src, err := s.parse(ctx, text, lang)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		logger.Warn("Extraction degraded for %s: %v", lang, err)
		warnings = append(warnings, domain.Warning{
			Kind:    domain.WarningParseDegraded,
			Message: fmt.Sprintf("%v: %v", domain.ErrParseDegraded, err),
		})
		src, err = s.registry.Fallback().Parse(ctx, text, lang)
		if err != nil {
			return nil, warnings, fmt.Errorf("generic extraction: %w", err)
		}
	}

	lines := domain.SplitLines(text)
	var symbols []domain.Symbol
	symbols = append(symbols, src.FindImports()...)
	symbols = append(symbols, src.FindClasses()...)
	symbols = append(symbols, src.FindFunctions()...)

	for i := range symbols {
		if symbols[i].Kind != domain.SymbolImport {
			symbols[i].Complexity = src.EstimateComplexity(symbols[i])
		}
		symbols[i].Fingerprint(lines, lang)
	}
	SortSymbols(symbols)

	return symbols, warnings, nil
}

// parse runs the language-specific extractor, or the generic one when no
// extractor is registered for lang.
func (s *ExtractionService) parse(ctx context.Context, text string, lang domain.Language) (driven.ParsedSource, error) {
	ext, ok := s.registry.Lookup(lang)
	if !ok {
		logger.Debug("No extractor for %q, using generic", lang)
		return s.registry.Fallback().Parse(ctx, text, lang)
	}
	logger.Debug("Extracting %s with %s", lang, ext.Name())
	return ext.Parse(ctx, text, lang)
}

// SortSymbols orders symbols by start line, enclosing symbols first.
func SortSymbols(symbols []domain.Symbol) {
	kindOrder := map[domain.SymbolKind]int{
		domain.SymbolImport:   0,
		domain.SymbolClass:    1,
		domain.SymbolFunction: 2,
		domain.SymbolMethod:   2,
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.EndLine != b.EndLine {
			return a.EndLine > b.EndLine
		}
		return kindOrder[a.Kind] < kindOrder[b.Kind]
	})
}
