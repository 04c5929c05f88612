package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Ensure vectorIndex implements the interface.
var _ driven.VectorIndex = (*vectorIndex)(nil)

// vectorIndex persists embeddings in SQLite and serves searches from an
// in-memory copy loaded at open. Writes go to the database first; the
// copy is only updated after the transaction commits.
type vectorIndex struct {
	store *Store
	mu    sync.Mutex
	cache *memory.VectorIndex
}

// VectorIndex opens the persisted vector index. Stored embeddings whose
// dimension differs from dims are discarded, since the index is derived
// data and a rebuild repopulates it.
func (s *Store) VectorIndex(ctx context.Context, dims int) (driven.VectorIndex, error) {
	v := &vectorIndex{
		store: s,
		cache: memory.NewVectorIndex(dims),
	}
	if err := v.load(ctx, dims); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *vectorIndex) load(ctx context.Context, dims int) error {
	docs, err := v.indexedDocuments(ctx)
	if err != nil {
		return err
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT chunk_id, doc_key, version, sequence, vector
		FROM embeddings ORDER BY doc_key, sequence
	`)
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	defer rows.Close()

	entries := make(map[string][]driven.VectorEntry, len(docs))
	mismatched := 0
	for rows.Next() {
		var (
			e    driven.VectorEntry
			key  string
			blob []byte
		)
		if err := rows.Scan(&e.ChunkID, &key, &e.Version, &e.Sequence, &blob); err != nil {
			return fmt.Errorf("scanning embedding: %w", err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		if dims > 0 && len(e.Vector) != dims {
			mismatched++
			continue
		}
		entries[key] = append(entries[key], e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	rows.Close()

	if mismatched > 0 {
		logger.L().Warn("discarding embeddings with mismatched dimensions",
			zap.Int("count", mismatched), zap.Int("dimensions", dims))
		return v.clear(ctx)
	}

	for key, doc := range docs {
		if err := v.cache.Reindex(ctx, doc.id, doc.version, entries[key]); err != nil {
			return fmt.Errorf("loading %s: %w", doc.id, err)
		}
	}
	return nil
}

type persistedDoc struct {
	id      domain.DocumentID
	version int
}

func (v *vectorIndex) indexedDocuments(ctx context.Context) (map[string]persistedDoc, error) {
	rows, err := v.store.db.QueryContext(ctx, "SELECT doc_key, module, path, version FROM indexed_documents")
	if err != nil {
		return nil, fmt.Errorf("loading indexed documents: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]persistedDoc)
	for rows.Next() {
		var (
			key string
			doc persistedDoc
		)
		if err := rows.Scan(&key, &doc.id.Module, &doc.id.Path, &doc.version); err != nil {
			return nil, fmt.Errorf("scanning indexed document: %w", err)
		}
		docs[key] = doc
	}
	return docs, rows.Err()
}

// Upsert inserts or replaces the vector for a single chunk.
func (v *vectorIndex) Upsert(ctx context.Context, entry driven.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDims(entry.Vector); err != nil {
		return err
	}

	err := v.inTx(ctx, func(tx *sql.Tx) error {
		indexed, err := indexedVersion(ctx, tx, entry.DocumentID)
		if err != nil {
			return err
		}
		if indexed != 0 && indexed != entry.Version {
			return fmt.Errorf("%w: %s indexed at version %d, chunk is version %d",
				domain.ErrStaleIndexConflict, entry.DocumentID, indexed, entry.Version)
		}
		if indexed == 0 {
			if err := setIndexedVersion(ctx, tx, entry.DocumentID, entry.Version); err != nil {
				return err
			}
		}
		return insertEmbedding(ctx, tx, entry)
	})
	if err != nil {
		return err
	}
	return v.cache.Upsert(ctx, entry)
}

// Reindex atomically replaces every entry of a document.
func (v *vectorIndex) Reindex(ctx context.Context, id domain.DocumentID, version int, entries []driven.VectorEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range entries {
		if err := v.checkDims(entries[i].Vector); err != nil {
			return err
		}
	}

	err := v.inTx(ctx, func(tx *sql.Tx) error {
		indexed, err := indexedVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if indexed > version {
			return fmt.Errorf("%w: %s indexed at version %d, reindexing version %d",
				domain.ErrStaleIndexConflict, id, indexed, version)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE doc_key = ?", id.Key()); err != nil {
			return fmt.Errorf("deleting embeddings: %w", err)
		}
		if err := setIndexedVersion(ctx, tx, id, version); err != nil {
			return err
		}
		for _, e := range entries {
			e.DocumentID = id
			e.Version = version
			if err := insertEmbedding(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.cache.Reindex(ctx, id, version, entries)
}

// Search returns up to k hits by descending cosine similarity.
func (v *vectorIndex) Search(
	ctx context.Context, query []float32, k int, filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	return v.cache.Search(ctx, query, k, filter)
}

// IndexedVersion returns the indexed version of a document, or 0.
func (v *vectorIndex) IndexedVersion(ctx context.Context, id domain.DocumentID) (int, error) {
	return v.cache.IndexedVersion(ctx, id)
}

// DeleteDocument removes all entries of a document.
func (v *vectorIndex) DeleteDocument(ctx context.Context, id domain.DocumentID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE doc_key = ?", id.Key()); err != nil {
			return fmt.Errorf("deleting embeddings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_documents WHERE doc_key = ?", id.Key()); err != nil {
			return fmt.Errorf("deleting indexed document: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.cache.DeleteDocument(ctx, id)
}

// Count returns the number of indexed vectors.
func (v *vectorIndex) Count(ctx context.Context) (int, error) {
	return v.cache.Count(ctx)
}

// Clear removes every entry.
func (v *vectorIndex) Clear(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clear(ctx)
}

func (v *vectorIndex) clear(ctx context.Context) error {
	err := v.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings"); err != nil {
			return fmt.Errorf("deleting embeddings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_documents"); err != nil {
			return fmt.Errorf("deleting indexed documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return v.cache.Clear(ctx)
}

// Close releases resources. The database is owned by Store.
func (v *vectorIndex) Close() error {
	return nil
}

func (v *vectorIndex) checkDims(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	if dims := v.cache.Dimensions(); dims > 0 && len(vec) != dims {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), dims)
	}
	return nil
}

func (v *vectorIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func indexedVersion(ctx context.Context, tx *sql.Tx, id domain.DocumentID) (int, error) {
	var version int
	err := tx.QueryRowContext(ctx,
		"SELECT version FROM indexed_documents WHERE doc_key = ?", id.Key()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting indexed version: %w", err)
	}
	return version, nil
}

func setIndexedVersion(ctx context.Context, tx *sql.Tx, id domain.DocumentID, version int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO indexed_documents (doc_key, module, path, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_key) DO UPDATE SET version = excluded.version
	`, id.Key(), id.Module, id.Path, version)
	if err != nil {
		return fmt.Errorf("saving indexed version: %w", err)
	}
	return nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, e driven.VectorEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (chunk_id, doc_key, version, sequence, vector)
		VALUES (?, ?, ?, ?, ?)
	`, e.ChunkID, e.DocumentID.Key(), e.Version, e.Sequence, float32SliceToBytes(e.Vector))
	if err != nil {
		return fmt.Errorf("saving embedding %s: %w", e.ChunkID, err)
	}
	return nil
}
