// Package keywords annotates chunks with the keywords used by the
// keyword-overlap ranker.
package keywords

import (
	"context"
	"strings"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// Processor stores each chunk's keyword list in its metadata.
// It implements the PostProcessor interface.
type Processor struct{}

// New creates a new keyword processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "keywords"
}

// Process annotates chunks in place. Keywords come from the chunk text and
// the names of the symbols it covers; the carried signature is ignored.
func (p *Processor) Process(ctx context.Context, _ *domain.VersionRecord, chunks []domain.Chunk) ([]domain.Chunk, error) {
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		counts := Count(chunks[i])
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		chunks[i].Metadata[domain.MetaKeywords] = domain.KeywordList(counts)
	}
	return chunks, nil
}

// Count returns the keyword counts of a chunk's text and symbol names.
func Count(c domain.Chunk) map[string]int {
	counts := domain.ExtractKeywords(c.Text)
	for _, ref := range c.Symbols {
		name := ref.Name
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		for kw := range domain.ExtractKeywords(name) {
			if _, ok := counts[kw]; !ok {
				counts[kw] = 1
			}
		}
	}
	return counts
}
