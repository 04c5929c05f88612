package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxFileSize is the default upper bound on ingested document text, in bytes.
const MaxFileSize = 1_000_000

// keySeparator joins module and path in DocumentID.Key.
const keySeparator = "::"

// DocumentID identifies a source file across versions.
// Two documents with the same identity are successive versions of one file.
type DocumentID struct {
	// Path is the repository-relative, slash-separated file path.
	Path string `json:"path"`

	// Module is the logical module (repository or package) the file belongs to.
	// May be empty for single-module workspaces.
	Module string `json:"module,omitempty"`
}

// NewDocumentID normalises and validates a document identity.
func NewDocumentID(filePath, module string) (DocumentID, error) {
	id := DocumentID{
		Path:   normalisePath(filePath),
		Module: strings.TrimSpace(module),
	}
	if err := id.Validate(); err != nil {
		return DocumentID{}, err
	}
	return id, nil
}

// Validate returns ErrInvalidDocumentIdentity if the identity is unusable.
func (id DocumentID) Validate() error {
	switch {
	case id.Path == "" || id.Path == ".":
		return fmt.Errorf("%w: empty path", ErrInvalidDocumentIdentity)
	case strings.HasPrefix(id.Path, "/"):
		return fmt.Errorf("%w: path %q must be repository-relative", ErrInvalidDocumentIdentity, id.Path)
	case id.Path == ".." || strings.HasPrefix(id.Path, "../"):
		return fmt.Errorf("%w: path %q escapes the repository", ErrInvalidDocumentIdentity, id.Path)
	case strings.ContainsRune(id.Path, 0) || strings.ContainsRune(id.Module, 0):
		return fmt.Errorf("%w: identity contains NUL byte", ErrInvalidDocumentIdentity)
	case strings.Contains(id.Module, keySeparator):
		return fmt.Errorf("%w: module %q contains %q", ErrInvalidDocumentIdentity, id.Module, keySeparator)
	}
	return nil
}

// Key returns a stable string form of the identity, used as a storage key.
func (id DocumentID) Key() string {
	return id.Module + keySeparator + id.Path
}

// String returns a human-readable form of the identity.
func (id DocumentID) String() string {
	if id.Module == "" {
		return id.Path
	}
	return id.Module + ":" + id.Path
}

// ParseDocumentKey reverses DocumentID.Key.
func ParseDocumentKey(key string) (DocumentID, error) {
	module, p, ok := strings.Cut(key, keySeparator)
	if !ok {
		return DocumentID{}, fmt.Errorf("%w: malformed key %q", ErrInvalidDocumentIdentity, key)
	}
	id := DocumentID{Path: p, Module: module}
	return id, id.Validate()
}

// normalisePath converts a path to clean slash-separated form.
func normalisePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// CodeDocument is one ingested snapshot of a source file.
// It is immutable once stored; re-ingestion creates a new snapshot.
type CodeDocument struct {
	// ID identifies the file.
	ID DocumentID `json:"id"`

	// Text is the raw file content.
	Text string `json:"text"`

	// Language is the detected or hinted language tag.
	Language Language `json:"language"`

	// IngestedAt is when this snapshot was received.
	IngestedAt time.Time `json:"ingested_at"`

	// ContentHash is the sha256 hex digest of Text.
	ContentHash string `json:"content_hash"`
}

// NewCodeDocument builds a document snapshot, computing its content hash.
// When language is unknown it is detected from the path extension.
func NewCodeDocument(id DocumentID, text string, language Language, ingestedAt time.Time) CodeDocument {
	if language == LanguageUnknown {
		language = DetectLanguage(id.Path)
	}
	return CodeDocument{
		ID:          id,
		Text:        text,
		Language:    language,
		IngestedAt:  ingestedAt,
		ContentHash: HashText(text),
	}
}

// LineCount returns the number of lines in the document.
func (d CodeDocument) LineCount() int {
	return CountLines(d.Text)
}

// HashText returns the sha256 hex digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CountLines counts lines the way an editor does: a trailing newline does
// not start a new line, and empty text has zero lines.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// RunePrefix returns the longest prefix of text holding at most n runes.
// Invalid bytes count as one rune each and are kept as they are, so the
// prefix is always a byte slice of text.
func RunePrefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	offset := 0
	for i := 0; i < n && offset < len(text); i++ {
		_, width := utf8.DecodeRuneInString(text[offset:])
		offset += width
	}
	return text[:offset]
}
