package domain

import "time"

// VersionRecord is an append-only snapshot of a document's symbols.
// Version numbers start at 1 and increase by one per distinct content hash.
type VersionRecord struct {
	// DocumentID identifies the document.
	DocumentID DocumentID `json:"document_id"`

	// Version is the monotonically increasing version number.
	Version int `json:"version"`

	// ContentHash is the document content hash at this version.
	ContentHash string `json:"content_hash"`

	// Language is the language tag used for extraction.
	Language Language `json:"language"`

	// Text is the document snapshot. Kept so the derived index can be
	// rebuilt and line deltas computed.
	Text string `json:"text"`

	// Symbols is the extracted symbol list, in source order.
	Symbols []Symbol `json:"symbols"`

	// ParseDegraded records whether extraction fell back to generic parsing.
	ParseDegraded bool `json:"parse_degraded"`

	// CommittedAt is when the record was appended.
	CommittedAt time.Time `json:"committed_at"`
}

// Document returns the CodeDocument snapshot held by the record.
func (r VersionRecord) Document() CodeDocument {
	return CodeDocument{
		ID:          r.DocumentID,
		Text:        r.Text,
		Language:    r.Language,
		IngestedAt:  r.CommittedAt,
		ContentHash: r.ContentHash,
	}
}
