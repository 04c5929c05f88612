package mcp

import (
	"context"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// mockContextService is a mock implementation of driving.ContextService.
type mockContextService struct {
	bundle *domain.ContextBundle
	got    domain.ContextRequest
	err    error
}

func (m *mockContextService) AssembleContext(_ context.Context, req domain.ContextRequest) (*domain.ContextBundle, error) {
	m.got = req
	return m.bundle, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	result *domain.IngestResult
	got    domain.IngestRequest
	err    error
}

func (m *mockIngestService) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	m.got = req
	return m.result, m.err
}

func (m *mockIngestService) IngestBatch(_ context.Context, _ []domain.IngestRequest) ([]*domain.IngestResult, error) {
	return nil, m.err
}

func (m *mockIngestService) Rebuild(_ context.Context) (int, error) {
	return 0, m.err
}

func (m *mockIngestService) RetryUnembedded(_ context.Context, _ int) (int, error) {
	return 0, m.err
}

// mockChangeService is a mock implementation of driving.ChangeService.
type mockChangeService struct {
	record   *domain.ChangeRecord
	history  []domain.VersionRecord
	compared [2]int
	err      error
}

func (m *mockChangeService) GetChangeRecord(_ context.Context, _ domain.DocumentID) (*domain.ChangeRecord, error) {
	return m.record, m.err
}

func (m *mockChangeService) CompareVersions(
	_ context.Context,
	_ domain.DocumentID,
	from, to int,
) (*domain.ChangeRecord, error) {
	m.compared = [2]int{from, to}
	return m.record, m.err
}

func (m *mockChangeService) History(_ context.Context, _ domain.DocumentID) ([]domain.VersionRecord, error) {
	return m.history, m.err
}

// mockCatalogService is a mock implementation of driving.CatalogService.
type mockCatalogService struct {
	matches []domain.SymbolMatch
	stats   *domain.Stats
	kind    domain.SymbolKind
	err     error
}

func (m *mockCatalogService) FindSymbols(
	_ context.Context,
	_ string,
	kind domain.SymbolKind,
) ([]domain.SymbolMatch, error) {
	m.kind = kind
	return m.matches, m.err
}

func (m *mockCatalogService) Stats(_ context.Context) (*domain.Stats, error) {
	return m.stats, m.err
}

func (m *mockCatalogService) ClearIndex(_ context.Context) error {
	return m.err
}
