package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	if ports.Context == nil {
		ports.Context = &mockContextService{bundle: &domain.ContextBundle{}}
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("maps request and result", func(t *testing.T) {
		ingest := &mockIngestService{result: &domain.IngestResult{
			DocumentID: domain.DocumentID{Module: "calc", Path: "a.py"},
			Version:    2,
			Created:    true,
			Symbols:    3,
			Chunks:     2,
			Embedded:   1,
			Warnings: []domain.Warning{
				{Kind: domain.WarningEmbeddingUnavailable, ChunkID: "c1", Message: "timeout"},
			},
		}}
		server := newTestServer(t, &Ports{Ingest: ingest})

		_, output, err := server.handleIngest(ctx, nil, IngestInput{
			Path:     "a.py",
			Module:   "calc",
			Text:     "def add(a, b):\n    return a + b\n",
			Language: "python",
		})

		require.NoError(t, err)
		assert.Equal(t, domain.IngestRequest{
			Path:         "a.py",
			Module:       "calc",
			Text:         "def add(a, b):\n    return a + b\n",
			LanguageHint: "python",
		}, ingest.got)
		assert.Equal(t, "calc:a.py", output.DocumentID)
		assert.Equal(t, 2, output.Version)
		assert.True(t, output.Created)
		assert.Equal(t, 1, output.Embedded)
		assert.Equal(t, []string{"EmbeddingUnavailable [c1]: timeout"}, output.Warnings)
	})

	t.Run("not configured", func(t *testing.T) {
		server := newTestServer(t, &Ports{})
		_, _, err := server.handleIngest(ctx, nil, IngestInput{Path: "a.py"})
		assert.ErrorIs(t, err, errNotConfigured)
	})

	t.Run("propagates identity errors", func(t *testing.T) {
		ingest := &mockIngestService{err: domain.ErrInvalidDocumentIdentity}
		server := newTestServer(t, &Ports{Ingest: ingest})
		_, _, err := server.handleIngest(ctx, nil, IngestInput{Path: "/abs.py"})
		assert.ErrorIs(t, err, domain.ErrInvalidDocumentIdentity)
	})
}

func TestServer_handleChangeRecord(t *testing.T) {
	ctx := context.Background()
	record := &domain.ChangeRecord{
		DocumentID:  domain.DocumentID{Path: "a.py"},
		FromVersion: 1,
		ToVersion:   2,
		Added:       []domain.Symbol{{Kind: domain.SymbolFunction, Name: "sub", StartLine: 4, EndLine: 5}},
		Modified: []domain.ModifiedSymbol{{
			Old:      domain.Symbol{Kind: domain.SymbolFunction, Name: "add"},
			New:      domain.Symbol{Kind: domain.SymbolFunction, Name: "add", Signature: "def add(a, b, c):"},
			Severity: domain.SeverityBehavioral,
			Lines:    domain.LineDelta{Added: 1, Removed: 1},
		}},
		Lines:    domain.LineDelta{Added: 3, Removed: 1},
		Severity: domain.SeverityBehavioral,
	}

	t.Run("latest change", func(t *testing.T) {
		changes := &mockChangeService{record: record}
		server := newTestServer(t, &Ports{Changes: changes})

		_, output, err := server.handleChangeRecord(ctx, nil, ChangeInput{Path: "a.py"})
		require.NoError(t, err)
		assert.True(t, output.Found)
		assert.Equal(t, "behavioral", output.Severity)
		assert.Equal(t, 3, output.LinesAdded)
		require.Len(t, output.Added, 1)
		assert.Equal(t, "sub", output.Added[0].Name)
		assert.Empty(t, output.Removed)
		require.Len(t, output.Modified, 1)
		assert.Equal(t, "def add(a, b, c):", output.Modified[0].Symbol.Signature)
		assert.Equal(t, [2]int{}, changes.compared)
	})

	t.Run("explicit versions compare", func(t *testing.T) {
		changes := &mockChangeService{record: record}
		server := newTestServer(t, &Ports{Changes: changes})

		_, _, err := server.handleChangeRecord(ctx, nil, ChangeInput{Path: "a.py", FromVersion: 1, ToVersion: 3})
		require.NoError(t, err)
		assert.Equal(t, [2]int{1, 3}, changes.compared)
	})

	t.Run("no record", func(t *testing.T) {
		server := newTestServer(t, &Ports{Changes: &mockChangeService{}})

		_, output, err := server.handleChangeRecord(ctx, nil, ChangeInput{Path: "a.py", Module: "m"})
		require.NoError(t, err)
		assert.False(t, output.Found)
		assert.Equal(t, "m:a.py", output.DocumentID)
	})

	t.Run("invalid identity", func(t *testing.T) {
		server := newTestServer(t, &Ports{Changes: &mockChangeService{}})

		_, _, err := server.handleChangeRecord(ctx, nil, ChangeInput{Path: "../etc/passwd"})
		assert.ErrorIs(t, err, domain.ErrInvalidDocumentIdentity)
	})
}

func TestServer_handleAssembleContext(t *testing.T) {
	ctx := context.Background()

	t.Run("maps bundle", func(t *testing.T) {
		id := domain.DocumentID{Path: "a.py"}
		contextSvc := &mockContextService{bundle: &domain.ContextBundle{
			Items: []domain.ScoredChunk{{
				Chunk: domain.Chunk{
					DocumentID: id,
					Version:    2,
					Text:       "    return a + b\n",
					Carry:      "def add(a, b):",
					Carried:    true,
					StartLine:  2,
					EndLine:    2,
				},
				Score:   0.9,
				Boosted: true,
			}},
			Change:     &domain.ChangeRecord{DocumentID: id, FromVersion: 1, ToVersion: 2},
			TotalChars: 32,
			MaxChars:   200,
			Candidates: 1,
			Mode:       domain.RetrievalSemantic,
		}}
		server := newTestServer(t, &Ports{Context: contextSvc})

		_, output, err := server.handleAssembleContext(ctx, nil, ContextInput{
			Query:    "tests for add",
			Path:     "a.py",
			MaxChars: 200,
		})

		require.NoError(t, err)
		require.NotNil(t, contextSvc.got.Document)
		assert.Equal(t, id, *contextSvc.got.Document)
		assert.Equal(t, 200, contextSvc.got.MaxChars)
		assert.Equal(t, "semantic", output.Mode)
		require.Len(t, output.Items, 1)
		assert.Equal(t, "a.py", output.Items[0].DocumentID)
		assert.Equal(t, "def add(a, b):\n    return a + b\n", output.Items[0].Content)
		assert.True(t, output.Items[0].Boosted)
		require.NotNil(t, output.Change)
		assert.Equal(t, 2, output.Change.ToVersion)
	})

	t.Run("unscoped query", func(t *testing.T) {
		contextSvc := &mockContextService{bundle: &domain.ContextBundle{
			Mode: domain.RetrievalKeyword,
			Warnings: []domain.Warning{
				{Kind: domain.WarningEmbeddingUnavailable, Message: "no embedder"},
			},
		}}
		server := newTestServer(t, &Ports{Context: contextSvc})

		_, output, err := server.handleAssembleContext(ctx, nil, ContextInput{Query: "anything"})
		require.NoError(t, err)
		assert.Nil(t, contextSvc.got.Document)
		assert.Equal(t, "keyword", output.Mode)
		assert.Empty(t, output.Items)
		assert.Len(t, output.Warnings, 1)
	})

	t.Run("returns error", func(t *testing.T) {
		contextSvc := &mockContextService{err: errors.New("storage failed")}
		server := newTestServer(t, &Ports{Context: contextSvc})

		_, _, err := server.handleAssembleContext(ctx, nil, ContextInput{Query: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage failed")
	})
}

func TestServer_handleSearchSymbols(t *testing.T) {
	ctx := context.Background()

	t.Run("returns matches", func(t *testing.T) {
		catalog := &mockCatalogService{matches: []domain.SymbolMatch{{
			DocumentID: domain.DocumentID{Path: "shapes.py"},
			Version:    1,
			Symbol: domain.Symbol{
				Kind:      domain.SymbolMethod,
				Name:      "area",
				Parent:    "Circle",
				StartLine: 5,
				EndLine:   6,
			},
		}}}
		server := newTestServer(t, &Ports{Catalog: catalog})

		_, output, err := server.handleSearchSymbols(ctx, nil, SymbolSearchInput{Name: "area", Kind: "method"})
		require.NoError(t, err)
		assert.Equal(t, domain.SymbolMethod, catalog.kind)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, "Circle", output.Matches[0].Symbol.Parent)
		assert.Equal(t, "shapes.py", output.Matches[0].DocumentID)
	})

	t.Run("not configured", func(t *testing.T) {
		server := newTestServer(t, &Ports{})
		_, _, err := server.handleSearchSymbols(ctx, nil, SymbolSearchInput{Name: "x"})
		assert.ErrorIs(t, err, errNotConfigured)
	})
}
