package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown extractor, processor or backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidDocumentIdentity indicates the caller supplied an unusable
	// document identity (empty, absolute or escaping the repository root).
	// It is surfaced immediately and never retried.
	ErrInvalidDocumentIdentity = errors.New("invalid document identity")

	// Ingestion Errors.

	// ErrParseDegraded indicates a language-specific extractor failed and the
	// generic extractor was used instead. Non-fatal.
	ErrParseDegraded = errors.New("parse degraded to generic extractor")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured
	// or exhausted its retries. Chunks without an embedding are not indexed.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrMalformedInput indicates the embedding service rejected its input.
	// Retrying the same input cannot succeed.
	ErrMalformedInput = errors.New("malformed embedding input")

	// ErrStaleIndexConflict indicates the index already holds a newer version
	// of the document than the one being written. The reindex step is retried.
	ErrStaleIndexConflict = errors.New("stale index conflict")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	// Context assembly falls back to keyword ranking.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector does not match the index dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
