package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func testChunks(id domain.DocumentID, version int, texts ...string) []domain.Chunk {
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s@%d#%d", id.Key(), version, i),
			DocumentID: id,
			Version:    version,
			Sequence:   i,
			Text:       text,
			StartLine:  i + 1,
			EndLine:    i + 1,
		}
	}
	return chunks
}

// ==================== ChunkStore Tests ====================

func TestChunkStore_SaveAndGetChunks(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Module: "calc", Path: "calc.py"}

	saved := testChunks(id, 1, "def add(a, b):\n", "    return a + b\n")
	saved[1].Carry = "def add(a, b):"
	saved[1].Carried = true
	saved[1].Symbols = []domain.SymbolRef{{Kind: domain.SymbolFunction, Name: "add", Partial: true}}
	saved[1].Metadata = map[string]any{
		domain.MetaKeywords:         []string{"add", "return"},
		domain.MetaCarriedSignature: true,
	}
	require.NoError(t, chunks.SaveChunks(ctx, id, 1, saved))

	got, err := chunks.GetChunks(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, saved[0], got[0])
	assert.Equal(t, id, got[1].DocumentID)
	assert.True(t, got[1].Carried)
	assert.Equal(t, "def add(a, b):\n    return a + b\n", got[1].Content())
	assert.Equal(t, saved[1].Symbols, got[1].Symbols)
	assert.Equal(t, []string{"add", "return"}, got[1].Keywords())
	assert.Equal(t, true, got[1].Metadata[domain.MetaCarriedSignature])
	assert.Equal(t, "def add(a, b):\n    return a + b\n", domain.ReconstructText(got))
}

func TestChunkStore_VersionsAndCurrent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Path: "a.py"}

	require.NoError(t, chunks.SaveChunks(ctx, id, 1, testChunks(id, 1, "old\n")))
	require.NoError(t, chunks.SaveChunks(ctx, id, 2, testChunks(id, 2, "new\n", "more\n")))

	current, err := chunks.GetChunks(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, current, 2)

	old, err := chunks.GetChunks(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, "old\n", old[0].Text)

	scoped, err := chunks.CurrentChunks(ctx, &id)
	require.NoError(t, err)
	assert.Equal(t, current, scoped)

	// Re-saving a version replaces its chunks.
	require.NoError(t, chunks.SaveChunks(ctx, id, 2, testChunks(id, 2, "replaced\n")))
	current, err = chunks.GetChunks(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "replaced\n", current[0].Text)
}

func TestChunkStore_UnknownDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Path: "missing.py"}

	_, err := chunks.GetChunks(ctx, id, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	scoped, err := chunks.CurrentChunks(ctx, &id)
	require.NoError(t, err)
	assert.Nil(t, scoped)

	_, err = chunks.GetChunk(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// A committed version without chunks is still unknown to the chunk store.
	_, _, err = store.VersionStore().Commit(ctx, snapshot(id, "x\n"))
	require.NoError(t, err)
	_, err = chunks.GetChunks(ctx, id, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkStore_GetChunk(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Path: "a.py"}
	saved := testChunks(id, 1, "a\n", "b\n")
	require.NoError(t, chunks.SaveChunks(ctx, id, 1, saved))

	chunk, err := chunks.GetChunk(ctx, saved[1].ID)
	require.NoError(t, err)
	assert.Equal(t, saved[1], *chunk)
}

func TestChunkStore_CurrentChunksAcrossDocuments(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	b := domain.DocumentID{Path: "b.py"}
	a := domain.DocumentID{Path: "a.py"}

	require.NoError(t, chunks.SaveChunks(ctx, b, 1, testChunks(b, 1, "b0\n", "b1\n")))
	require.NoError(t, chunks.SaveChunks(ctx, a, 1, testChunks(a, 1, "stale\n")))
	require.NoError(t, chunks.SaveChunks(ctx, a, 2, testChunks(a, 2, "a0\n")))

	all, err := chunks.CurrentChunks(ctx, nil)
	require.NoError(t, err)

	var texts []string
	for _, c := range all {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"a0\n", "b0\n", "b1\n"}, texts)
}

func TestChunkStore_EmbeddedFlags(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Path: "a.py"}
	saved := testChunks(id, 1, "a\n", "b\n", "c\n")
	require.NoError(t, chunks.SaveChunks(ctx, id, 1, saved))

	pending, err := chunks.ListUnembedded(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.NoError(t, chunks.MarkEmbedded(ctx, []string{saved[0].ID, saved[2].ID, "unknown"}, true))
	require.NoError(t, chunks.MarkEmbedded(ctx, nil, true))

	pending, err = chunks.ListUnembedded(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, saved[1].ID, pending[0].ID)

	require.NoError(t, chunks.MarkEmbedded(ctx, []string{saved[0].ID}, false))
	limited, err := chunks.ListUnembedded(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, saved[0].ID, limited[0].ID)
}

func TestChunkStore_Clear(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	chunks := store.ChunkStore()
	id := domain.DocumentID{Path: "a.py"}
	require.NoError(t, chunks.SaveChunks(ctx, id, 1, testChunks(id, 1, "a\n")))

	require.NoError(t, chunks.Clear(ctx))

	all, err := chunks.CurrentChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = chunks.GetChunks(ctx, id, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
