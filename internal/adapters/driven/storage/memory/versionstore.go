package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure VersionStore implements the interface.
var _ driven.VersionStore = (*VersionStore)(nil)

// VersionStore is an in-memory implementation of driven.VersionStore.
type VersionStore struct {
	mu       sync.RWMutex
	versions map[string][]domain.VersionRecord
	now      func() time.Time
}

// NewVersionStore creates a new in-memory version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{
		versions: make(map[string][]domain.VersionRecord),
		now:      time.Now,
	}
}

// Commit appends a snapshot unless its content hash equals the latest one.
func (s *VersionStore) Commit(
	_ context.Context, snapshot domain.VersionRecord,
) (domain.VersionRecord, bool, error) {
	if err := snapshot.DocumentID.Validate(); err != nil {
		return domain.VersionRecord{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshot.DocumentID.Key()
	history := s.versions[key]
	if n := len(history); n > 0 && history[n-1].ContentHash == snapshot.ContentHash {
		return cloneRecord(history[n-1]), false, nil
	}

	snapshot.Version = len(history) + 1
	snapshot.CommittedAt = s.now().UTC()
	rec := cloneRecord(snapshot)
	s.versions[key] = append(history, rec)
	return cloneRecord(rec), true, nil
}

// Latest returns the newest record.
func (s *VersionStore) Latest(_ context.Context, id domain.DocumentID) (*domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[id.Key()]
	if len(history) == 0 {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	rec := cloneRecord(history[len(history)-1])
	return &rec, nil
}

// Get returns a specific version.
func (s *VersionStore) Get(_ context.Context, id domain.DocumentID, version int) (*domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[id.Key()]
	if version < 1 || version > len(history) {
		return nil, fmt.Errorf("document %s version %d: %w", id, version, domain.ErrNotFound)
	}
	rec := cloneRecord(history[version-1])
	return &rec, nil
}

// History returns all records for a document, oldest first.
func (s *VersionStore) History(_ context.Context, id domain.DocumentID) ([]domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[id.Key()]
	out := make([]domain.VersionRecord, len(history))
	for i := range history {
		out[i] = cloneRecord(history[i])
	}
	return out, nil
}

// LatestBefore returns the newest record below version.
func (s *VersionStore) LatestBefore(
	_ context.Context, id domain.DocumentID, version int,
) (*domain.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[id.Key()]
	// Versions are dense, so version v lives at index v-1.
	n := version - 1
	if n > len(history) {
		n = len(history)
	}
	if n < 1 {
		return nil, fmt.Errorf("document %s before version %d: %w", id, version, domain.ErrNotFound)
	}
	rec := cloneRecord(history[n-1])
	return &rec, nil
}

// ListDocuments returns every known document identity, sorted by key.
func (s *VersionStore) ListDocuments(_ context.Context) ([]domain.DocumentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.versions))
	for key := range s.versions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ids := make([]domain.DocumentID, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, s.versions[key][0].DocumentID)
	}
	return ids, nil
}

// cloneRecord copies the symbol slice so callers cannot mutate stored history.
func cloneRecord(r domain.VersionRecord) domain.VersionRecord {
	if r.Symbols != nil {
		r.Symbols = append([]domain.Symbol(nil), r.Symbols...)
	}
	return r
}
