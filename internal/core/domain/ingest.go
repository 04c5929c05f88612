package domain

import "fmt"

// WarningKind classifies a non-fatal condition.
type WarningKind string

// Warning kinds.
const (
	// WarningParseDegraded means extraction fell back to the generic extractor.
	WarningParseDegraded WarningKind = "ParseDegraded"

	// WarningEmbeddingUnavailable means a chunk or query could not be embedded.
	WarningEmbeddingUnavailable WarningKind = "EmbeddingUnavailable"
)

// Warning is a structured non-fatal condition reported alongside a result.
type Warning struct {
	// Kind classifies the warning.
	Kind WarningKind `json:"kind"`

	// ChunkID identifies the affected chunk, if any.
	ChunkID string `json:"chunk_id,omitempty"`

	// Message describes the underlying cause.
	Message string `json:"message"`
}

// String returns a log-friendly representation.
func (w Warning) String() string {
	if w.ChunkID != "" {
		return fmt.Sprintf("%s [%s]: %s", w.Kind, w.ChunkID, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// IngestRequest carries one file to be ingested.
type IngestRequest struct {
	// Path is the repository-relative file path.
	Path string `json:"path"`

	// Module is the logical module name. May be empty.
	Module string `json:"module,omitempty"`

	// Text is the raw file content.
	Text string `json:"text"`

	// LanguageHint overrides extension-based detection when set.
	LanguageHint string `json:"language,omitempty"`
}

// IngestResult reports the outcome of a successful ingestion.
type IngestResult struct {
	// DocumentID is the normalised identity.
	DocumentID DocumentID `json:"document_id"`

	// Version is the current version number after ingestion.
	Version int `json:"version"`

	// Created is false when the content was unchanged and no version was added.
	Created bool `json:"created"`

	// ParseDegraded is true when the generic extractor was used.
	ParseDegraded bool `json:"parse_degraded"`

	// Symbols is the number of extracted symbols.
	Symbols int `json:"symbols"`

	// Chunks is the number of chunks produced.
	Chunks int `json:"chunks"`

	// Embedded is the number of chunks written to the index.
	Embedded int `json:"embedded"`

	// Complexity rates the whole file.
	Complexity ComplexityLevel `json:"complexity"`

	// Warnings lists non-fatal conditions.
	Warnings []Warning `json:"warnings,omitempty"`
}

// HasWarning returns true if any warning of the given kind was reported.
func (r IngestResult) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// Stats summarises the stored history and derived index.
type Stats struct {
	Documents      int                `json:"documents"`
	Versions       int                `json:"versions"`
	Chunks         int                `json:"chunks"`
	EmbeddedChunks int                `json:"embedded_chunks"`
	IndexedVectors int                `json:"indexed_vectors"`
	Languages      map[Language]int   `json:"languages"`
	SymbolKinds    map[SymbolKind]int `json:"symbol_kinds"`
}

// SymbolMatch is a symbol found by catalogue search.
type SymbolMatch struct {
	DocumentID DocumentID `json:"document_id"`
	Version    int        `json:"version"`
	Symbol     Symbol     `json:"symbol"`
}
