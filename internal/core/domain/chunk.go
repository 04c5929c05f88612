package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxImportContext caps the import lines attached to a chunk.
const MaxImportContext = 10

// Chunk metadata keys.
const (
	// MetaCarriedSignature marks a chunk whose Carry holds a copied signature.
	MetaCarriedSignature = "carried_signature"

	// MetaKeywords holds the chunk's extracted keyword list ([]string).
	MetaKeywords = "keywords"

	// MetaLanguage holds the owning document's language tag.
	MetaLanguage = "language"

	// MetaImports holds the document's import lines ([]string) for chunks
	// that do not contain them.
	MetaImports = "imports"
)

// Chunk is a bounded, independently retrievable slice of a document version.
type Chunk struct {
	// ID is deterministic over (document, version, sequence).
	ID string `json:"id"`

	// DocumentID identifies the owning document.
	DocumentID DocumentID `json:"document_id"`

	// Version is the VersionRecord number the chunk was produced from.
	Version int `json:"version"`

	// Sequence is the chunk's position within the document version.
	Sequence int `json:"sequence"`

	// Text is the raw slice of the document. Concatenating Text of all chunks
	// in sequence order reproduces the document exactly.
	Text string `json:"text"`

	// Carry is a copy of the enclosing signature prepended to continuation
	// chunks of a split symbol. It is not part of the document text.
	Carry string `json:"carry,omitempty"`

	// Carried is true when Carry is set.
	Carried bool `json:"carried,omitempty"`

	// StartLine is the first document line covered by Text (1-based).
	StartLine int `json:"start_line"`

	// EndLine is the last document line covered by Text (1-based).
	EndLine int `json:"end_line"`

	// Symbols lists the symbols this chunk covers, in source order.
	Symbols []SymbolRef `json:"symbols,omitempty"`

	// Embedded is true once an embedding for the chunk is in the index.
	Embedded bool `json:"embedded"`

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Content returns the interpretable chunk text: the carried signature,
// if any, followed by the raw slice.
func (c Chunk) Content() string {
	if !c.Carried || c.Carry == "" {
		return c.Text
	}
	return c.Carry + "\n" + c.Text
}

// Size returns the character count of Content.
func (c Chunk) Size() int {
	return utf8.RuneCountInString(c.Content())
}

// EmbeddingText is the text sent to the embedding model: the attached
// import lines, if any, followed by Content. Imports do not count
// towards Size.
func (c Chunk) EmbeddingText() string {
	imports := c.Imports()
	if len(imports) == 0 {
		return c.Content()
	}
	return strings.Join(imports, "\n") + "\n" + c.Content()
}

// Keywords returns the keyword list stored in metadata, if any.
func (c Chunk) Keywords() []string {
	return c.stringList(MetaKeywords)
}

// Imports returns the import lines stored in metadata, if any.
func (c Chunk) Imports() []string {
	return c.stringList(MetaImports)
}

// stringList reads a string slice from metadata. Values decoded from JSON
// arrive as []any.
func (c Chunk) stringList(key string) []string {
	if c.Metadata == nil {
		return nil
	}
	switch v := c.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Covers reports whether the chunk references any symbol whose key is in keys.
func (c Chunk) Covers(keys map[string]struct{}) bool {
	for _, ref := range c.Symbols {
		if _, ok := keys[ref.Key()]; ok {
			return true
		}
	}
	return false
}

// ReconstructText concatenates chunk texts in the given order.
func ReconstructText(chunks []Chunk) string {
	n := 0
	for i := range chunks {
		n += len(chunks[i].Text)
	}
	buf := make([]byte, 0, n)
	for i := range chunks {
		buf = append(buf, chunks[i].Text...)
	}
	return string(buf)
}
