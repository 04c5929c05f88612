package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func TestCatalog_FindSymbols(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustIngest(t, "a.py", addV1)
	h.mustIngest(t, "a.py", addV2)
	h.mustIngest(t, "calc.go", goCalc)

	matches, err := h.catalog.FindSymbols(ctx, "ADD", "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a.py", matches[0].DocumentID.Path)
	assert.Equal(t, 2, matches[0].Version, "only the latest version is searched")
	assert.Equal(t, "Calc.Add", matches[1].Symbol.QualifiedName())

	methods, err := h.catalog.FindSymbols(ctx, "", domain.SymbolMethod)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "calc.go", methods[0].DocumentID.Path)

	none, err := h.catalog.FindSymbols(ctx, "nothing-matches", "")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = h.catalog.FindSymbols(ctx, "add", domain.SymbolKind("macro"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCatalog_Stats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustIngest(t, "a.py", addV1)
	h.mustIngest(t, "a.py", addV2)
	h.mustIngest(t, "calc.go", goCalc)

	stats, err := h.catalog.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Versions)
	assert.Equal(t, 1, stats.Languages[domain.LanguagePython])
	assert.Equal(t, 1, stats.Languages[domain.LanguageGo])
	assert.Equal(t, 3, stats.SymbolKinds[domain.SymbolFunction])
	assert.Equal(t, 1, stats.SymbolKinds[domain.SymbolMethod])
	assert.Equal(t, stats.Chunks, stats.EmbeddedChunks)
	assert.Equal(t, stats.Chunks, stats.IndexedVectors)
}

func TestCatalog_ClearIndexKeepsHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.mustIngest(t, "a.py", addV1)

	require.NoError(t, h.catalog.ClearIndex(ctx))

	stats, err := h.catalog.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.IndexedVectors)
}

func TestCatalog_WithoutIndex(t *testing.T) {
	h := newHarness(t, withoutEmbeddings())
	ctx := context.Background()
	h.mustIngest(t, "a.py", addV1)

	stats, err := h.catalog.Stats(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.Chunks)
	assert.Zero(t, stats.EmbeddedChunks)
	assert.Zero(t, stats.IndexedVectors)
	require.NoError(t, h.catalog.ClearIndex(ctx))
}
