package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Ensure ContextService implements the interface.
var _ driving.ContextService = (*ContextService)(nil)

// symbolNameWeight is added to a keyword's count when it names a symbol
// covered by the chunk.
const symbolNameWeight = 3

// ContextService assembles ranked, size-bounded context bundles.
type ContextService struct {
	chunks   driven.ChunkStore
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	changes  *ChangeService
	locks    *KeyedLocker
	settings domain.RetrievalSettings
}

// NewContextService creates a context service.
// The index and embedder parameters are optional (can be nil); without them
// bundles are ranked by keyword overlap.
func NewContextService(
	chunks driven.ChunkStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	changes *ChangeService,
	locks *KeyedLocker,
	settings domain.RetrievalSettings,
) *ContextService {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	defaults := domain.DefaultAppSettings().Retrieval
	if settings.TopK <= 0 {
		settings.TopK = defaults.TopK
	}
	if settings.MaxChars <= 0 {
		settings.MaxChars = defaults.MaxChars
	}
	if settings.ChangeBoost < 0 {
		settings.ChangeBoost = 0
	}
	return &ContextService{
		chunks:   chunks,
		index:    index,
		embedder: embedder,
		changes:  changes,
		locks:    locks,
		settings: settings,
	}
}

// AssembleContext retrieves chunks relevant to the query, boosts chunks that
// cover changed symbols and truncates the result to the size bound.
func (s *ContextService) AssembleContext(
	ctx context.Context, req domain.ContextRequest,
) (*domain.ContextBundle, error) {
	logger.Section("Context Assembly")

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	maxChars := req.MaxChars
	if maxChars <= 0 {
		maxChars = s.settings.MaxChars
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.settings.TopK
	}

	bundle := &domain.ContextBundle{MaxChars: maxChars}

	if req.Document != nil {
		if err := req.Document.Validate(); err != nil {
			return nil, err
		}
		unlock := s.locks.RLock(*req.Document)
		defer unlock()

		if s.changes != nil {
			change, err := s.changes.GetChangeRecord(ctx, *req.Document)
			if err != nil {
				return nil, fmt.Errorf("get change record: %w", err)
			}
			bundle.Change = change
		}
	}

	items, mode, warnings, err := s.rank(ctx, query, req.Document, topK)
	if err != nil {
		return nil, err
	}
	bundle.Mode = mode
	bundle.Warnings = warnings

	items = s.applyBoost(items, bundle.Change)
	items = filterMinScore(items, s.settings.MinScore)
	sortScored(items)
	if len(items) > topK {
		items = items[:topK]
	}
	bundle.Candidates = len(items)

	truncate(bundle, items, maxChars)

	logger.L().Debug("context assembled",
		zap.String("mode", string(bundle.Mode)),
		zap.Int("candidates", bundle.Candidates),
		zap.Int("items", len(bundle.Items)),
		zap.Int("total_chars", bundle.TotalChars),
		zap.Bool("truncated", bundle.Truncated))

	return bundle, nil
}

// rank returns scored candidates, semantically when possible and by keyword
// overlap otherwise. Query-time failures degrade rather than fail.
func (s *ContextService) rank(
	ctx context.Context, query string, doc *domain.DocumentID, topK int,
) ([]domain.ScoredChunk, domain.RetrievalMode, []domain.Warning, error) {
	var warnings []domain.Warning

	if s.embedder != nil && s.index != nil {
		items, err := s.semantic(ctx, query, doc, topK)
		if err == nil {
			return items, domain.RetrievalSemantic, nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", nil, ctxErr
		}
		logger.Warn("Semantic retrieval unavailable, using keywords: %v", err)
		warnings = append(warnings, domain.Warning{
			Kind:    domain.WarningEmbeddingUnavailable,
			Message: err.Error(),
		})
	} else {
		warnings = append(warnings, domain.Warning{
			Kind:    domain.WarningEmbeddingUnavailable,
			Message: fmt.Sprintf("%v: no embedder or index configured", domain.ErrVectorIndexUnavailable),
		})
	}

	items, err := s.keyword(ctx, query, doc)
	if err != nil {
		return nil, "", nil, err
	}
	return items, domain.RetrievalKeyword, warnings, nil
}

func (s *ContextService) semantic(
	ctx context.Context, query string, doc *domain.DocumentID, topK int,
) ([]domain.ScoredChunk, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, vec, topK, driven.VectorFilter{Document: doc})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	logger.Debug("Vector hits: %d", len(hits))

	items := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.chunks.GetChunk(ctx, hit.ChunkID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("Skipping unknown chunk %s", hit.ChunkID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get chunk: %w", err)
		}
		items = append(items, domain.ScoredChunk{Chunk: *chunk, Score: hit.Similarity})
	}
	return items, nil
}

// keyword scores current chunks by overlap with the query keywords.
// Scores are normalised so the best chunk scores 1.
func (s *ContextService) keyword(
	ctx context.Context, query string, doc *domain.DocumentID,
) ([]domain.ScoredChunk, error) {
	queryCounts := domain.ExtractKeywords(query)
	if len(queryCounts) == 0 {
		return nil, nil
	}

	candidates, err := s.chunks.CurrentChunks(ctx, doc)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	var items []domain.ScoredChunk
	best := 0.0
	for i := range candidates {
		score := KeywordScore(queryCounts, candidates[i])
		if score <= 0 {
			continue
		}
		if score > best {
			best = score
		}
		items = append(items, domain.ScoredChunk{Chunk: candidates[i], Score: score})
	}
	for i := range items {
		items[i].Score /= best
	}
	logger.Debug("Keyword matches: %d of %d chunks", len(items), len(candidates))
	return items, nil
}

// KeywordScore scores a chunk against query keyword counts. Each query
// keyword contributes its query count times its count in the chunk text,
// plus a bonus when it names a covered symbol. The carried signature is
// not scored.
func KeywordScore(query map[string]int, chunk domain.Chunk) float64 {
	if annotated := chunk.Keywords(); annotated != nil && !containsAny(annotated, query) {
		return 0
	}

	text := domain.ExtractKeywords(chunk.Text)
	names := make(map[string]struct{})
	for _, ref := range chunk.Symbols {
		name := ref.Name
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		for kw := range domain.ExtractKeywords(name) {
			names[kw] = struct{}{}
		}
	}

	score := 0
	for kw, qc := range query {
		n := text[kw]
		if _, ok := names[kw]; ok {
			n += symbolNameWeight
		}
		score += qc * n
	}
	return float64(score)
}

func containsAny(sorted []string, query map[string]int) bool {
	for kw := range query {
		i := sort.SearchStrings(sorted, kw)
		if i < len(sorted) && sorted[i] == kw {
			return true
		}
	}
	return false
}

// applyBoost multiplies the score of chunks covering changed symbols.
func (s *ContextService) applyBoost(items []domain.ScoredChunk, change *domain.ChangeRecord) []domain.ScoredChunk {
	if change.IsEmpty() || s.settings.ChangeBoost == 0 {
		return items
	}
	keys := change.ChangedKeys()
	for i := range items {
		if items[i].Chunk.Covers(keys) {
			items[i].Score *= 1 + s.settings.ChangeBoost
			items[i].Boosted = true
		}
	}
	return items
}

func filterMinScore(items []domain.ScoredChunk, minScore float64) []domain.ScoredChunk {
	if minScore <= 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		if item.Score >= minScore {
			out = append(out, item)
		}
	}
	return out
}

// sortScored orders by score descending, then sequence, then chunk ID.
func sortScored(items []domain.ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Sequence != b.Chunk.Sequence {
			return a.Chunk.Sequence < b.Chunk.Sequence
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}

// truncate accepts items in order until the next one would exceed maxChars.
// The separators Text puts between items count against the bound but not
// towards TotalChars. When the top item alone is too large its text is cut
// at a line boundary.
func truncate(bundle *domain.ContextBundle, items []domain.ScoredChunk, maxChars int) {
	bundle.Items = []domain.ScoredChunk{}
	rendered := 0
	for i, item := range items {
		size := item.Chunk.Size()
		need := size
		if i > 0 {
			need += len(domain.BundleSeparator)
		}
		if rendered+need <= maxChars {
			bundle.Items = append(bundle.Items, item)
			bundle.TotalChars += size
			rendered += need
			continue
		}
		if i == 0 {
			item.Chunk = cutChunk(item.Chunk, maxChars)
			bundle.Items = append(bundle.Items, item)
			bundle.TotalChars = item.Chunk.Size()
			bundle.Truncated = true
		}
		break
	}
}

// cutChunk shortens a chunk so its content fits maxChars, keeping whole
// lines where possible. The carried signature is dropped if it leaves no
// room for text.
func cutChunk(c domain.Chunk, maxChars int) domain.Chunk {
	budget := maxChars
	if c.Carried && c.Carry != "" {
		budget -= utf8.RuneCountInString(c.Carry) + 1
		if budget <= 0 {
			c.Carry = ""
			c.Carried = false
			budget = maxChars
		}
	}

	if utf8.RuneCountInString(c.Text) > budget {
		text := domain.RunePrefix(c.Text, budget)
		if i := strings.LastIndexByte(text, '\n'); i >= 0 {
			text = text[:i+1]
		}
		c.Text = text
	}

	if n := domain.CountLines(c.Text); n > 0 {
		c.EndLine = c.StartLine + n - 1
	}
	refs := make([]domain.SymbolRef, len(c.Symbols))
	for i, ref := range c.Symbols {
		ref.Partial = true
		refs[i] = ref
	}
	c.Symbols = refs
	return c
}
