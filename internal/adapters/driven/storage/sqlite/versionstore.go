package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Ensure versionStore implements the interface.
var _ driven.VersionStore = (*versionStore)(nil)

// versionStore wraps Store to implement driven.VersionStore.
type versionStore struct {
	store *Store
	now   func() time.Time
}

const versionColumns = `version, content_hash, language, text, symbols, parse_degraded, committed_at`

// Commit appends a snapshot unless its content hash equals the latest one.
// The read of the latest version and the insert share one transaction.
func (v *versionStore) Commit(
	ctx context.Context, snapshot domain.VersionRecord,
) (domain.VersionRecord, bool, error) {
	if err := snapshot.DocumentID.Validate(); err != nil {
		return domain.VersionRecord{}, false, err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.VersionRecord{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id := snapshot.DocumentID
	latest, err := scanVersion(tx.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions WHERE doc_key = ?
		ORDER BY version DESC LIMIT 1
	`, id.Key()), id)
	switch {
	case err == nil:
		if latest.ContentHash == snapshot.ContentHash {
			return *latest, false, nil
		}
		snapshot.Version = latest.Version + 1
	case errors.Is(err, sql.ErrNoRows):
		snapshot.Version = 1
	default:
		return domain.VersionRecord{}, false, fmt.Errorf("getting latest version: %w", err)
	}

	now := v.now().UTC()
	snapshot.CommittedAt = now
	if err := ensureDocument(ctx, tx, id, now); err != nil {
		return domain.VersionRecord{}, false, err
	}

	symbols, err := json.Marshal(snapshot.Symbols)
	if err != nil {
		return domain.VersionRecord{}, false, fmt.Errorf("marshaling symbols: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (doc_key, `+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id.Key(),
		snapshot.Version,
		snapshot.ContentHash,
		string(snapshot.Language),
		snapshot.Text,
		string(symbols),
		boolToInt(snapshot.ParseDegraded),
		formatTime(now),
	)
	if err != nil {
		return domain.VersionRecord{}, false, fmt.Errorf("inserting version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.VersionRecord{}, false, fmt.Errorf("committing version: %w", err)
	}
	return snapshot, true, nil
}

// Latest returns the newest record.
func (v *versionStore) Latest(ctx context.Context, id domain.DocumentID) (*domain.VersionRecord, error) {
	rec, err := scanVersion(v.store.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions WHERE doc_key = ?
		ORDER BY version DESC LIMIT 1
	`, id.Key()), id)
	if err != nil {
		return nil, notFound(err, "document %s", id)
	}
	return rec, nil
}

// Get returns a specific version.
func (v *versionStore) Get(ctx context.Context, id domain.DocumentID, version int) (*domain.VersionRecord, error) {
	rec, err := scanVersion(v.store.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions WHERE doc_key = ? AND version = ?
	`, id.Key(), version), id)
	if err != nil {
		return nil, notFound(err, "document %s version %d", id, version)
	}
	return rec, nil
}

// History returns all records for a document, oldest first.
func (v *versionStore) History(ctx context.Context, id domain.DocumentID) ([]domain.VersionRecord, error) {
	rows, err := v.store.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions WHERE doc_key = ?
		ORDER BY version ASC
	`, id.Key())
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	history := []domain.VersionRecord{}
	for rows.Next() {
		rec, err := scanVersion(rows, id)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		history = append(history, *rec)
	}
	return history, rows.Err()
}

// LatestBefore returns the newest record below version.
func (v *versionStore) LatestBefore(
	ctx context.Context, id domain.DocumentID, version int,
) (*domain.VersionRecord, error) {
	rec, err := scanVersion(v.store.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM versions WHERE doc_key = ? AND version < ?
		ORDER BY version DESC LIMIT 1
	`, id.Key(), version), id)
	if err != nil {
		return nil, notFound(err, "document %s before version %d", id, version)
	}
	return rec, nil
}

// ListDocuments returns every document with at least one version, sorted by key.
func (v *versionStore) ListDocuments(ctx context.Context) ([]domain.DocumentID, error) {
	rows, err := v.store.db.QueryContext(ctx, `
		SELECT d.module, d.path FROM documents d
		WHERE EXISTS (SELECT 1 FROM versions v WHERE v.doc_key = d.doc_key)
		ORDER BY d.doc_key
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	ids := []domain.DocumentID{} //nolint:prealloc
	for rows.Next() {
		var id domain.DocumentID
		if err := rows.Scan(&id.Module, &id.Path); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner, id domain.DocumentID) (*domain.VersionRecord, error) {
	var (
		rec         domain.VersionRecord
		language    string
		symbols     string
		degraded    int
		committedAt string
	)
	err := row.Scan(
		&rec.Version,
		&rec.ContentHash,
		&language,
		&rec.Text,
		&symbols,
		&degraded,
		&committedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.DocumentID = id
	rec.Language = domain.Language(language)
	rec.ParseDegraded = degraded == 1
	if err := json.Unmarshal([]byte(symbols), &rec.Symbols); err != nil {
		return nil, fmt.Errorf("unmarshaling symbols: %w", err)
	}
	if rec.CommittedAt, err = parseTime(committedAt); err != nil {
		return nil, fmt.Errorf("parsing committed_at: %w", err)
	}
	return &rec, nil
}
