package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// chunkLoc addresses a stored chunk.
type chunkLoc struct {
	doc      string
	version  int
	sequence int
}

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu      sync.RWMutex
	chunks  map[string]map[int][]domain.Chunk // doc key -> version -> chunks
	current map[string]int
	byID    map[string]chunkLoc
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks:  make(map[string]map[int][]domain.Chunk),
		current: make(map[string]int),
		byID:    make(map[string]chunkLoc),
	}
}

// SaveChunks stores the chunks of one version and makes it current.
func (s *ChunkStore) SaveChunks(_ context.Context, id domain.DocumentID, version int, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	versions := s.chunks[key]
	if versions == nil {
		versions = make(map[int][]domain.Chunk)
		s.chunks[key] = versions
	}
	for _, old := range versions[version] {
		delete(s.byID, old.ID)
	}

	stored := make([]domain.Chunk, len(chunks))
	for i := range chunks {
		stored[i] = cloneChunk(chunks[i])
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Sequence < stored[j].Sequence })
	for i := range stored {
		s.byID[stored[i].ID] = chunkLoc{doc: key, version: version, sequence: i}
	}
	versions[version] = stored
	s.current[key] = version
	return nil
}

// GetChunks returns the chunks of a version; version 0 selects the current one.
func (s *ChunkStore) GetChunks(_ context.Context, id domain.DocumentID, version int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := id.Key()
	versions, ok := s.chunks[key]
	if !ok {
		return nil, fmt.Errorf("chunks of %s: %w", id, domain.ErrNotFound)
	}
	if version == 0 {
		version = s.current[key]
	}
	return cloneChunks(versions[version]), nil
}

// GetChunk retrieves a chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.byID[chunkID]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	c := cloneChunk(s.chunks[loc.doc][loc.version][loc.sequence])
	return &c, nil
}

// CurrentChunks returns the current chunks of one or all documents.
func (s *ChunkStore) CurrentChunks(_ context.Context, id *domain.DocumentID) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id != nil {
		key := id.Key()
		if _, ok := s.chunks[key]; !ok {
			return nil, nil
		}
		return cloneChunks(s.chunks[key][s.current[key]]), nil
	}

	var out []domain.Chunk
	for _, key := range s.sortedKeys() {
		out = append(out, cloneChunks(s.chunks[key][s.current[key]])...)
	}
	return out, nil
}

// MarkEmbedded sets the Embedded flag on the given chunks.
func (s *ChunkStore) MarkEmbedded(_ context.Context, chunkIDs []string, embedded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIDs {
		loc, ok := s.byID[id]
		if !ok {
			continue
		}
		s.chunks[loc.doc][loc.version][loc.sequence].Embedded = embedded
	}
	return nil
}

// ListUnembedded returns up to limit current chunks without an embedding.
func (s *ChunkStore) ListUnembedded(_ context.Context, limit int) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Chunk
	for _, key := range s.sortedKeys() {
		for _, c := range s.chunks[key][s.current[key]] {
			if c.Embedded {
				continue
			}
			out = append(out, cloneChunk(c))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Clear removes every chunk.
func (s *ChunkStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]map[int][]domain.Chunk)
	s.current = make(map[string]int)
	s.byID = make(map[string]chunkLoc)
	return nil
}

func (s *ChunkStore) sortedKeys() []string {
	keys := make([]string, 0, len(s.chunks))
	for key := range s.chunks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneChunks(chunks []domain.Chunk) []domain.Chunk {
	if chunks == nil {
		return nil
	}
	out := make([]domain.Chunk, len(chunks))
	for i := range chunks {
		out[i] = cloneChunk(chunks[i])
	}
	return out
}

func cloneChunk(c domain.Chunk) domain.Chunk {
	if c.Symbols != nil {
		c.Symbols = append([]domain.SymbolRef(nil), c.Symbols...)
	}
	if c.Metadata != nil {
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		c.Metadata = meta
	}
	return c
}
