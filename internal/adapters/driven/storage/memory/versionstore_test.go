package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func snapshot(path, hash string) domain.VersionRecord {
	return domain.VersionRecord{
		DocumentID:  domain.DocumentID{Path: path},
		ContentHash: hash,
		Language:    domain.LanguagePython,
		Text:        "def add(a, b):\n    return a + b\n",
		Symbols:     []domain.Symbol{{Kind: domain.SymbolFunction, Name: "add", StartLine: 1, EndLine: 2}},
	}
}

func TestVersionStore_CommitAssignsVersions(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()

	rec, created, err := store.Commit(ctx, snapshot("a.py", "h1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, rec.Version)
	assert.False(t, rec.CommittedAt.IsZero())

	rec, created, err = store.Commit(ctx, snapshot("a.py", "h2"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 2, rec.Version)
}

func TestVersionStore_CommitSameHashIsIdempotent(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()

	first, _, err := store.Commit(ctx, snapshot("a.py", "h1"))
	require.NoError(t, err)

	again, created, err := store.Commit(ctx, snapshot("a.py", "h1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)

	history, err := store.History(ctx, domain.DocumentID{Path: "a.py"})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestVersionStore_RevertAppendsNewVersion(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()

	for _, h := range []string{"h1", "h2", "h1"} {
		_, _, err := store.Commit(ctx, snapshot("a.py", h))
		require.NoError(t, err)
	}

	latest, err := store.Latest(ctx, domain.DocumentID{Path: "a.py"})
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, "h1", latest.ContentHash)
}

func TestVersionStore_InvalidIdentity(t *testing.T) {
	store := NewVersionStore()
	_, _, err := store.Commit(context.Background(), snapshot("/abs/a.py", "h1"))
	assert.ErrorIs(t, err, domain.ErrInvalidDocumentIdentity)
}

func TestVersionStore_Lookups(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()
	id := domain.DocumentID{Path: "a.py"}

	_, err := store.Latest(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, h := range []string{"h1", "h2", "h3"} {
		_, _, err := store.Commit(ctx, snapshot("a.py", h))
		require.NoError(t, err)
	}

	rec, err := store.Get(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, "h2", rec.ContentHash)

	_, err = store.Get(ctx, id, 4)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	before, err := store.LatestBefore(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, before.Version)

	before, err = store.LatestBefore(ctx, id, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, before.Version)

	_, err = store.LatestBefore(ctx, id, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVersionStore_HistoryIsIsolated(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()
	_, _, err := store.Commit(ctx, snapshot("a.py", "h1"))
	require.NoError(t, err)

	history, err := store.History(ctx, domain.DocumentID{Path: "a.py"})
	require.NoError(t, err)
	history[0].Symbols[0].Name = "mutated"

	latest, err := store.Latest(ctx, domain.DocumentID{Path: "a.py"})
	require.NoError(t, err)
	assert.Equal(t, "add", latest.Symbols[0].Name)
}

func TestVersionStore_ListDocuments(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()

	for _, p := range []string{"b.py", "a.py", "c/d.go"} {
		_, _, err := store.Commit(ctx, snapshot(p, "h"))
		require.NoError(t, err)
	}

	ids, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "a.py", ids[0].Path)
	assert.Equal(t, "b.py", ids[1].Path)
	assert.Equal(t, "c/d.go", ids[2].Path)
}

func TestVersionStore_ConcurrentCommitsStayDense(t *testing.T) {
	store := NewVersionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, _ = store.Commit(ctx, snapshot("a.py", fmt.Sprintf("h%d", n)))
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, domain.DocumentID{Path: "a.py"})
	require.NoError(t, err)
	for i, rec := range history {
		assert.Equal(t, i+1, rec.Version)
	}
}
