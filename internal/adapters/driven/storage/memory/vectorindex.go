package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// vectorEntry is a stored vector with its precomputed norm.
type vectorEntry struct {
	entry driven.VectorEntry
	norm  float64
}

// indexedDoc tracks the version and chunk IDs indexed for a document.
type indexedDoc struct {
	id      domain.DocumentID
	version int
	chunks  map[string]struct{}
}

// VectorIndex is an in-memory cosine-similarity index with exact search.
type VectorIndex struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]vectorEntry
	docs    map[string]*indexedDoc
}

// NewVectorIndex creates an in-memory vector index. A dims of zero adopts
// the dimension of the first inserted vector.
func NewVectorIndex(dims int) *VectorIndex {
	return &VectorIndex{
		dims:    dims,
		entries: make(map[string]vectorEntry),
		docs:    make(map[string]*indexedDoc),
	}
}

// Dimensions returns the vector size, or 0 if not yet known.
func (v *VectorIndex) Dimensions() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dims
}

// Upsert inserts or replaces the vector for a single chunk.
func (v *VectorIndex) Upsert(_ context.Context, entry driven.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDims(entry.Vector); err != nil {
		return err
	}
	key := entry.DocumentID.Key()
	doc := v.docs[key]
	if doc != nil && doc.version != entry.Version {
		return fmt.Errorf("%w: %s indexed at version %d, chunk is version %d",
			domain.ErrStaleIndexConflict, entry.DocumentID, doc.version, entry.Version)
	}
	if doc == nil {
		doc = &indexedDoc{id: entry.DocumentID, version: entry.Version, chunks: make(map[string]struct{})}
		v.docs[key] = doc
	}
	v.put(doc, entry)
	return nil
}

// Reindex atomically replaces every entry of a document.
func (v *VectorIndex) Reindex(_ context.Context, id domain.DocumentID, version int, entries []driven.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := id.Key()
	if doc := v.docs[key]; doc != nil && doc.version > version {
		return fmt.Errorf("%w: %s indexed at version %d, reindexing version %d",
			domain.ErrStaleIndexConflict, id, doc.version, version)
	}
	for i := range entries {
		if err := v.checkDims(entries[i].Vector); err != nil {
			return err
		}
	}

	v.remove(key)
	doc := &indexedDoc{id: id, version: version, chunks: make(map[string]struct{}, len(entries))}
	v.docs[key] = doc
	for _, e := range entries {
		e.DocumentID = id
		e.Version = version
		v.put(doc, e)
	}
	return nil
}

// Search returns up to k hits by descending cosine similarity.
func (v *VectorIndex) Search(
	_ context.Context, query []float32, k int, filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	if v.dims > 0 && len(query) != v.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), v.dims)
	}
	qnorm := Norm(query)

	var hits []driven.VectorHit
	collect := func(e vectorEntry) {
		hits = append(hits, driven.VectorHit{
			ChunkID:    e.entry.ChunkID,
			DocumentID: e.entry.DocumentID,
			Version:    e.entry.Version,
			Sequence:   e.entry.Sequence,
			Similarity: cosine(query, qnorm, e.entry.Vector, e.norm),
		})
	}
	if filter.Document != nil {
		if doc := v.docs[filter.Document.Key()]; doc != nil {
			for id := range doc.chunks {
				collect(v.entries[id])
			}
		}
	} else {
		for _, e := range v.entries {
			collect(e)
		}
	}

	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// IndexedVersion returns the indexed version of a document, or 0.
func (v *VectorIndex) IndexedVersion(_ context.Context, id domain.DocumentID) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if doc := v.docs[id.Key()]; doc != nil {
		return doc.version, nil
	}
	return 0, nil
}

// DeleteDocument removes all entries of a document.
func (v *VectorIndex) DeleteDocument(_ context.Context, id domain.DocumentID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.remove(id.Key())
	return nil
}

// Count returns the number of indexed vectors.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Clear removes every entry.
func (v *VectorIndex) Clear(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]vectorEntry)
	v.docs = make(map[string]*indexedDoc)
	return nil
}

// Close releases resources.
func (v *VectorIndex) Close() error {
	return nil
}

func (v *VectorIndex) checkDims(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	if v.dims == 0 {
		v.dims = len(vec)
		return nil
	}
	if len(vec) != v.dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), v.dims)
	}
	return nil
}

func (v *VectorIndex) put(doc *indexedDoc, e driven.VectorEntry) {
	if old, ok := v.entries[e.ChunkID]; ok && old.entry.DocumentID.Key() != doc.id.Key() {
		if other := v.docs[old.entry.DocumentID.Key()]; other != nil {
			delete(other.chunks, e.ChunkID)
		}
	}
	e.Vector = append([]float32(nil), e.Vector...)
	v.entries[e.ChunkID] = vectorEntry{entry: e, norm: Norm(e.Vector)}
	doc.chunks[e.ChunkID] = struct{}{}
}

func (v *VectorIndex) remove(key string) {
	doc := v.docs[key]
	if doc == nil {
		return
	}
	for id := range doc.chunks {
		delete(v.entries, id)
	}
	delete(v.docs, key)
}

// Norm returns the Euclidean norm of a vector.
func Norm(vec []float32) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

// SortHits orders hits by similarity descending, then sequence, then chunk ID.
func SortHits(hits []driven.VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ChunkID < b.ChunkID
	})
}
