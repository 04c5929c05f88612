package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure chunkStore implements the interface.
var _ driven.ChunkStore = (*chunkStore)(nil)

// chunkStore wraps Store to implement driven.ChunkStore.
// documents.chunk_version records the current chunk version per document;
// 0 means no chunks have been saved.
type chunkStore struct {
	store *Store
}

const chunkColumns = `c.id, d.module, d.path, c.version, c.sequence, c.text, c.carry, c.carried,
	c.start_line, c.end_line, c.symbols, c.embedded, c.metadata`

// SaveChunks stores the chunks of one version and makes it current.
func (c *chunkStore) SaveChunks(ctx context.Context, id domain.DocumentID, version int, chunks []domain.Chunk) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	key := id.Key()
	if err := ensureDocument(ctx, tx, id, time.Now()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE doc_key = ? AND version = ?", key, version); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, doc_key, version, sequence, text, carry, carried,
			start_line, end_line, symbols, embedded, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		chunk := &chunks[i]
		symbols, err := json.Marshal(chunk.Symbols)
		if err != nil {
			return fmt.Errorf("marshaling symbols: %w", err)
		}
		var metadata any
		if chunk.Metadata != nil {
			data, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshaling metadata: %w", err)
			}
			metadata = string(data)
		}

		_, err = stmt.ExecContext(ctx,
			chunk.ID,
			key,
			version,
			chunk.Sequence,
			chunk.Text,
			chunk.Carry,
			boolToInt(chunk.Carried),
			chunk.StartLine,
			chunk.EndLine,
			string(symbols),
			boolToInt(chunk.Embedded),
			metadata,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET chunk_version = ? WHERE doc_key = ?", version, key); err != nil {
		return fmt.Errorf("updating current version: %w", err)
	}

	return tx.Commit()
}

// GetChunks returns the chunks of a version; version 0 selects the current one.
func (c *chunkStore) GetChunks(ctx context.Context, id domain.DocumentID, version int) ([]domain.Chunk, error) {
	current, err := c.currentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, fmt.Errorf("chunks of %s: %w", id, domain.ErrNotFound)
	}
	if version == 0 {
		version = current
	}

	return c.query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.doc_key = c.doc_key
		WHERE c.doc_key = ? AND c.version = ?
		ORDER BY c.sequence
	`, id.Key(), version)
}

// GetChunk retrieves a chunk by ID.
func (c *chunkStore) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	chunk, err := scanChunk(c.store.db.QueryRowContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.doc_key = c.doc_key
		WHERE c.id = ?
	`, chunkID))
	if err != nil {
		return nil, notFound(err, "chunk %s", chunkID)
	}
	return chunk, nil
}

// CurrentChunks returns the current chunks of one or all documents.
func (c *chunkStore) CurrentChunks(ctx context.Context, id *domain.DocumentID) ([]domain.Chunk, error) {
	if id != nil {
		return c.query(ctx, `
			SELECT `+chunkColumns+`
			FROM chunks c JOIN documents d ON d.doc_key = c.doc_key AND d.chunk_version = c.version
			WHERE c.doc_key = ?
			ORDER BY c.sequence
		`, id.Key())
	}
	return c.query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.doc_key = c.doc_key AND d.chunk_version = c.version
		ORDER BY c.doc_key, c.sequence
	`)
}

// MarkEmbedded sets the Embedded flag on the given chunks.
func (c *chunkStore) MarkEmbedded(ctx context.Context, chunkIDs []string, embedded bool) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, boolToInt(embedded))
	for _, id := range chunkIDs {
		args = append(args, id)
	}

	_, err := c.store.db.ExecContext(ctx,
		"UPDATE chunks SET embedded = ? WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("marking chunks embedded: %w", err)
	}
	return nil
}

// ListUnembedded returns up to limit current chunks without an embedding.
func (c *chunkStore) ListUnembedded(ctx context.Context, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return c.query(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks c JOIN documents d ON d.doc_key = c.doc_key AND d.chunk_version = c.version
		WHERE c.embedded = 0
		ORDER BY c.doc_key, c.sequence
		LIMIT ?
	`, limit)
}

// Clear removes every chunk.
func (c *chunkStore) Clear(ctx context.Context) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE documents SET chunk_version = 0"); err != nil {
		return fmt.Errorf("resetting current versions: %w", err)
	}
	return tx.Commit()
}

// currentVersion returns the current chunk version, or 0 if none was saved.
func (c *chunkStore) currentVersion(ctx context.Context, id domain.DocumentID) (int, error) {
	var version int
	err := c.store.db.QueryRowContext(ctx,
		"SELECT chunk_version FROM documents WHERE doc_key = ?", id.Key()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting current version: %w", err)
	}
	return version, nil
}

func (c *chunkStore) query(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, *chunk)
	}
	return chunks, rows.Err()
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var (
		chunk    domain.Chunk
		carried  int
		symbols  string
		embedded int
		metadata sql.NullString
	)
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID.Module,
		&chunk.DocumentID.Path,
		&chunk.Version,
		&chunk.Sequence,
		&chunk.Text,
		&chunk.Carry,
		&carried,
		&chunk.StartLine,
		&chunk.EndLine,
		&symbols,
		&embedded,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	chunk.Carried = carried == 1
	chunk.Embedded = embedded == 1
	if err := json.Unmarshal([]byte(symbols), &chunk.Symbols); err != nil {
		return nil, fmt.Errorf("unmarshaling symbols: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &chunk, nil
}
