package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/services"
)

// mockIngestService records ingestion requests.
type mockIngestService struct {
	mu       sync.Mutex
	requests []domain.IngestRequest
	rebuilt  int
	err      error
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{
		DocumentID: domain.DocumentID{Path: req.Path, Module: req.Module},
		Version:    1,
		Created:    true,
		Symbols:    2,
		Chunks:     1,
		Embedded:   1,
		Complexity: domain.ComplexityLow,
	}, nil
}

func (m *mockIngestService) IngestBatch(ctx context.Context, reqs []domain.IngestRequest) ([]*domain.IngestResult, error) {
	results := make([]*domain.IngestResult, len(reqs))
	for i := range reqs {
		res, err := m.Ingest(ctx, reqs[i])
		if err != nil {
			return results, err
		}
		results[i] = res
	}
	return results, nil
}

func (m *mockIngestService) Rebuild(context.Context) (int, error) {
	return m.rebuilt, m.err
}

func (m *mockIngestService) RetryUnembedded(context.Context, int) (int, error) {
	return 0, nil
}

func (m *mockIngestService) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r.Path)
	}
	return out
}

// mockChangeService returns canned change records.
type mockChangeService struct {
	record   *domain.ChangeRecord
	history  []domain.VersionRecord
	compared [2]int
	lastID   domain.DocumentID
	err      error
}

func (m *mockChangeService) GetChangeRecord(_ context.Context, id domain.DocumentID) (*domain.ChangeRecord, error) {
	m.lastID = id
	return m.record, m.err
}

func (m *mockChangeService) CompareVersions(
	_ context.Context, id domain.DocumentID, from, to int,
) (*domain.ChangeRecord, error) {
	m.lastID = id
	m.compared = [2]int{from, to}
	return m.record, m.err
}

func (m *mockChangeService) History(_ context.Context, id domain.DocumentID) ([]domain.VersionRecord, error) {
	m.lastID = id
	return m.history, m.err
}

// mockContextService returns a canned bundle.
type mockContextService struct {
	bundle  *domain.ContextBundle
	lastReq domain.ContextRequest
	err     error
}

func (m *mockContextService) AssembleContext(_ context.Context, req domain.ContextRequest) (*domain.ContextBundle, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.bundle, nil
}

// mockCatalogService returns canned catalogue data.
type mockCatalogService struct {
	matches  []domain.SymbolMatch
	stats    *domain.Stats
	lastKind domain.SymbolKind
	cleared  bool
	err      error
}

func (m *mockCatalogService) FindSymbols(_ context.Context, _ string, kind domain.SymbolKind) ([]domain.SymbolMatch, error) {
	m.lastKind = kind
	return m.matches, m.err
}

func (m *mockCatalogService) Stats(context.Context) (*domain.Stats, error) {
	return m.stats, m.err
}

func (m *mockCatalogService) ClearIndex(context.Context) error {
	m.cleared = true
	return m.err
}

// testServices bundles the mocks installed by setupTestServices.
type testServices struct {
	ingest   *mockIngestService
	changes  *mockChangeService
	context  *mockContextService
	catalog  *mockCatalogService
	settings *services.SettingsService
}

func sampleSymbol(name string) domain.Symbol {
	return domain.Symbol{
		Kind:      domain.SymbolFunction,
		Name:      name,
		StartLine: 1,
		EndLine:   2,
		Signature: "def " + name + "(a, b):",
	}
}

// setupTestServices installs mocks with sample data and returns a cleanup
// function restoring the previous services.
func setupTestServices() (*testServices, func()) {
	prev := Services{
		Ingest:            ingestService,
		Changes:           changeService,
		Context:           contextService,
		Catalog:           catalogService,
		Settings:          settingsService,
		Scheduler:         scheduler,
		ValidateEmbedding: validateEmbedding,
	}

	id := domain.DocumentID{Path: "calc.py"}
	ts := &testServices{
		ingest: &mockIngestService{rebuilt: 3},
		changes: &mockChangeService{
			record: &domain.ChangeRecord{
				DocumentID:  id,
				FromVersion: 1,
				ToVersion:   2,
				Added:       []domain.Symbol{sampleSymbol("sub")},
				Modified: []domain.ModifiedSymbol{{
					Old:      sampleSymbol("add"),
					New:      sampleSymbol("add"),
					Severity: domain.SeverityBehavioral,
					Lines:    domain.LineDelta{Added: 1, Removed: 1},
				}},
				Lines:    domain.LineDelta{Added: 3, Removed: 1},
				Severity: domain.SeverityBehavioral,
			},
			history: []domain.VersionRecord{
				{
					DocumentID:  id,
					Version:     1,
					ContentHash: "0123456789abcdef0123",
					Language:    domain.LanguagePython,
					Symbols:     []domain.Symbol{sampleSymbol("add")},
					CommittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				},
			},
		},
		context: &mockContextService{
			bundle: &domain.ContextBundle{
				Items: []domain.ScoredChunk{{
					Chunk: domain.Chunk{
						ID:         "c1",
						DocumentID: id,
						Version:    2,
						Text:       "def add(a, b):\n    return a + b\n",
						StartLine:  1,
						EndLine:    2,
					},
					Score:   0.91,
					Boosted: true,
				}},
				TotalChars: 33,
				MaxChars:   8000,
				Candidates: 4,
				Mode:       domain.RetrievalSemantic,
			},
		},
		catalog: &mockCatalogService{
			matches: []domain.SymbolMatch{{DocumentID: id, Version: 2, Symbol: sampleSymbol("add")}},
			stats: &domain.Stats{
				Documents:      1,
				Versions:       2,
				Chunks:         3,
				EmbeddedChunks: 3,
				IndexedVectors: 3,
				Languages:      map[domain.Language]int{domain.LanguagePython: 1},
				SymbolKinds:    map[domain.SymbolKind]int{domain.SymbolFunction: 2},
			},
		},
		settings: services.NewSettingsService(memory.NewConfigStore()),
	}

	SetServices(&Services{
		Ingest:   ts.ingest,
		Changes:  ts.changes,
		Context:  ts.context,
		Catalog:  ts.catalog,
		Settings: ts.settings,
	})

	return ts, func() {
		SetServices(&prev)
	}
}

// execute runs rootCmd with args and returns its combined output. Flags are
// reset afterwards so values do not leak between tests.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
