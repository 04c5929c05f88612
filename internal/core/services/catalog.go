package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
)

// Ensure CatalogService implements the interface.
var _ driving.CatalogService = (*CatalogService)(nil)

// CatalogService answers inventory questions about the stored history.
type CatalogService struct {
	versions driven.VersionStore
	chunks   driven.ChunkStore
	index    driven.VectorIndex
}

// NewCatalogService creates a catalogue service. The index may be nil.
func NewCatalogService(versions driven.VersionStore, chunks driven.ChunkStore, index driven.VectorIndex) *CatalogService {
	return &CatalogService{
		versions: versions,
		chunks:   chunks,
		index:    index,
	}
}

// FindSymbols searches the latest version of every document for symbols
// whose qualified name contains query, case-insensitively.
func (s *CatalogService) FindSymbols(
	ctx context.Context, query string, kind domain.SymbolKind,
) ([]domain.SymbolMatch, error) {
	if kind != "" && !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown symbol kind %q", domain.ErrInvalidInput, kind)
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	ids, err := s.versions.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	matches := []domain.SymbolMatch{}
	for _, id := range ids {
		latest, err := s.versions.Latest(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get latest version of %s: %w", id, err)
		}
		for _, sym := range latest.Symbols {
			if kind != "" && sym.Kind != kind {
				continue
			}
			if !strings.Contains(strings.ToLower(sym.QualifiedName()), needle) {
				continue
			}
			matches = append(matches, domain.SymbolMatch{
				DocumentID: id,
				Version:    latest.Version,
				Symbol:     sym,
			})
		}
	}
	return matches, nil
}

// Stats summarises documents, versions, chunks and index entries.
func (s *CatalogService) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{
		Languages:   make(map[domain.Language]int),
		SymbolKinds: make(map[domain.SymbolKind]int),
	}

	ids, err := s.versions.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	stats.Documents = len(ids)

	for _, id := range ids {
		history, err := s.versions.History(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get history of %s: %w", id, err)
		}
		stats.Versions += len(history)
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		stats.Languages[latest.Language]++
		for _, sym := range latest.Symbols {
			stats.SymbolKinds[sym.Kind]++
		}
	}

	chunks, err := s.chunks.CurrentChunks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	stats.Chunks = len(chunks)
	stats.EmbeddedChunks = countEmbedded(chunks)

	if s.index != nil {
		n, err := s.index.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count vectors: %w", err)
		}
		stats.IndexedVectors = n
	}

	return stats, nil
}

// ClearIndex empties the derived index and chunk store. Version history is
// the source of truth and is left untouched; Rebuild restores the index.
func (s *CatalogService) ClearIndex(ctx context.Context) error {
	if s.index != nil {
		if err := s.index.Clear(ctx); err != nil {
			return fmt.Errorf("clear vector index: %w", err)
		}
	}
	if err := s.chunks.Clear(ctx); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}
