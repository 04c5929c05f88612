package domain

// RetrievalMode records how a context bundle was ranked.
type RetrievalMode string

// Retrieval modes.
const (
	// RetrievalSemantic ranks by cosine similarity of embeddings.
	RetrievalSemantic RetrievalMode = "semantic"

	// RetrievalKeyword ranks by keyword overlap. Used when the query
	// cannot be embedded or no vector index is configured.
	RetrievalKeyword RetrievalMode = "keyword"
)

// ContextRequest is the input to context assembly.
type ContextRequest struct {
	// Query is the free-text request, e.g. "generate unit tests for add".
	Query string `json:"query"`

	// Document optionally scopes retrieval to a single document.
	Document *DocumentID `json:"document,omitempty"`

	// MaxChars bounds the total character count of the bundle.
	// Zero uses the configured default.
	MaxChars int `json:"max_chars,omitempty"`

	// TopK bounds the number of candidates retrieved before truncation.
	// Zero uses the configured default.
	TopK int `json:"top_k,omitempty"`
}

// ScoredChunk is a chunk with its final relevance score.
type ScoredChunk struct {
	// Chunk is the retrieved chunk. Its Text may be cut when the bundle
	// is truncated.
	Chunk Chunk `json:"chunk"`

	// Score is the relevance after any change boost.
	Score float64 `json:"score"`

	// Boosted is true when the chunk covers a changed symbol.
	Boosted bool `json:"boosted,omitempty"`
}

// ContextBundle is the ranked, size-bounded output of context assembly.
type ContextBundle struct {
	// Items are the accepted chunks in descending relevance.
	Items []ScoredChunk `json:"items"`

	// Change is the document's latest change record, when scoped and available.
	Change *ChangeRecord `json:"change,omitempty"`

	// Truncated is true when the top chunk alone exceeded MaxChars and its
	// text was cut at a line boundary.
	Truncated bool `json:"truncated"`

	// TotalChars is the summed character count of all item contents. The
	// separators added by Text are not included, but the bundle was
	// assembled so that Text never exceeds MaxChars.
	TotalChars int `json:"total_chars"`

	// MaxChars is the bound the bundle was assembled under.
	MaxChars int `json:"max_chars"`

	// Candidates is the number of ranked chunks before truncation.
	Candidates int `json:"candidates"`

	// Mode is semantic or keyword.
	Mode RetrievalMode `json:"mode"`

	// Warnings lists non-fatal conditions met while assembling.
	Warnings []Warning `json:"warnings,omitempty"`
}

// BundleSeparator is placed between item contents by ContextBundle.Text.
const BundleSeparator = "\n\n"

// Text renders the bundle contents in order, separated by blank lines.
func (b *ContextBundle) Text() string {
	if b == nil || len(b.Items) == 0 {
		return ""
	}
	out := make([]byte, 0, b.TotalChars+len(BundleSeparator)*len(b.Items))
	for i := range b.Items {
		if i > 0 {
			out = append(out, BundleSeparator...)
		}
		out = append(out, b.Items[i].Chunk.Content()...)
	}
	return string(out)
}
