package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// maxStaleRetries bounds reindex attempts that hit ErrStaleIndexConflict.
const maxStaleRetries = 3

// IngestService runs the indexing direction of the core:
// text -> symbols -> version -> chunks -> embeddings -> index.
type IngestService struct {
	versions   driven.VersionStore
	chunks     driven.ChunkStore
	extraction *ExtractionService
	pipeline   driven.PostProcessorPipeline
	index      driven.VectorIndex
	embedder   driven.EmbeddingService
	locks      *KeyedLocker
	settings   domain.IngestSettings
}

// NewIngestService creates an ingest service.
// The index and embedder parameters are optional (can be nil); without them
// chunks are stored unembedded and retrieval ranks by keyword overlap.
func NewIngestService(
	versions driven.VersionStore,
	chunks driven.ChunkStore,
	extraction *ExtractionService,
	pipeline driven.PostProcessorPipeline,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	locks *KeyedLocker,
	settings domain.IngestSettings,
) *IngestService {
	if locks == nil {
		locks = NewKeyedLocker()
	}
	defaults := domain.DefaultAppSettings().Ingest
	if settings.MaxFileSize <= 0 {
		settings.MaxFileSize = defaults.MaxFileSize
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = defaults.Concurrency
	}
	return &IngestService{
		versions:   versions,
		chunks:     chunks,
		extraction: extraction,
		pipeline:   pipeline,
		index:      index,
		embedder:   embedder,
		locks:      locks,
		settings:   settings,
	}
}

// canEmbed reports whether chunks can be written to the index.
func (s *IngestService) canEmbed() bool {
	return s.index != nil && s.embedder != nil
}

// Ingest commits a new version of a file when its content changed and
// refreshes the derived chunks and index entries.
func (s *IngestService) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	id, err := domain.NewDocumentID(req.Path, req.Module)
	if err != nil {
		return nil, err
	}
	if len(req.Text) > s.settings.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d",
			domain.ErrInvalidInput, id, len(req.Text), s.settings.MaxFileSize)
	}

	lang := domain.ParseLanguage(req.LanguageHint)
	if lang == domain.LanguageUnknown {
		lang = domain.DetectLanguage(id.Path)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	log := logger.L().With(zap.String("document", id.String()))
	hash := domain.HashText(req.Text)

	latest, err := s.versions.Latest(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get latest version: %w", err)
	}
	if latest != nil && latest.ContentHash == hash {
		existing, err := s.chunks.GetChunks(ctx, id, latest.Version)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("get chunks: %w", err)
		}
		if len(existing) > 0 || latest.Text == "" {
			log.Debug("content unchanged", zap.Int("version", latest.Version))
			return &domain.IngestResult{
				DocumentID:    id,
				Version:       latest.Version,
				Created:       false,
				ParseDegraded: latest.ParseDegraded,
				Symbols:       len(latest.Symbols),
				Chunks:        len(existing),
				Embedded:      countEmbedded(existing),
				Complexity:    domain.RateComplexity(domain.CountLines(latest.Text), latest.Symbols),
			}, nil
		}
		// The version was committed but its chunks were never stored.
		log.Info("repairing derived index", zap.Int("version", latest.Version))
	}

	var (
		rec      domain.VersionRecord
		created  bool
		warnings []domain.Warning
	)
	if latest != nil && latest.ContentHash == hash {
		rec = *latest
	} else {
		symbols, extractWarnings, err := s.extraction.Extract(ctx, req.Text, lang)
		if err != nil {
			return nil, fmt.Errorf("extract symbols: %w", err)
		}
		warnings = append(warnings, extractWarnings...)

		rec, created, err = s.versions.Commit(ctx, domain.VersionRecord{
			DocumentID:    id,
			ContentHash:   hash,
			Language:      lang,
			Text:          req.Text,
			Symbols:       symbols,
			ParseDegraded: len(extractWarnings) > 0,
		})
		if err != nil {
			return nil, fmt.Errorf("commit version: %w", err)
		}
	}

	chunks, derivedWarnings, err := s.refresh(ctx, rec)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, derivedWarnings...)

	result := &domain.IngestResult{
		DocumentID:    id,
		Version:       rec.Version,
		Created:       created,
		ParseDegraded: rec.ParseDegraded,
		Symbols:       len(rec.Symbols),
		Chunks:        len(chunks),
		Embedded:      countEmbedded(chunks),
		Complexity:    domain.RateComplexity(domain.CountLines(rec.Text), rec.Symbols),
		Warnings:      warnings,
	}

	log.Info("ingested",
		zap.Int("version", result.Version),
		zap.Bool("created", result.Created),
		zap.Int("symbols", result.Symbols),
		zap.Int("chunks", result.Chunks),
		zap.Int("embedded", result.Embedded),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// IngestBatch ingests requests concurrently, bounded by the configured
// concurrency. Requests for the same document are serialised by its lock.
func (s *IngestService) IngestBatch(ctx context.Context, reqs []domain.IngestRequest) ([]*domain.IngestResult, error) {
	results := make([]*domain.IngestResult, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.settings.Concurrency)
	for i := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			res, err := s.Ingest(ctx, reqs[i])
			if err != nil {
				errs[i] = fmt.Errorf("ingest %s: %w", reqs[i].Path, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// Rebuild regenerates chunks and index entries for the latest version of
// every document. It returns the number of documents rebuilt.
func (s *IngestService) Rebuild(ctx context.Context) (int, error) {
	logger.Section("Rebuild")

	ids, err := s.versions.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	rebuilt := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}
		if err := s.rebuildDocument(ctx, id); err != nil {
			return rebuilt, fmt.Errorf("rebuild %s: %w", id, err)
		}
		rebuilt++
	}

	logger.Info("Rebuilt %d documents", rebuilt)
	return rebuilt, nil
}

func (s *IngestService) rebuildDocument(ctx context.Context, id domain.DocumentID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	latest, err := s.versions.Latest(ctx, id)
	if err != nil {
		return fmt.Errorf("get latest version: %w", err)
	}

	// The index is a derived cache: entries from another history are dropped.
	if s.index != nil {
		indexed, err := s.index.IndexedVersion(ctx, id)
		if err != nil {
			return fmt.Errorf("get indexed version: %w", err)
		}
		if indexed > latest.Version {
			if err := s.index.DeleteDocument(ctx, id); err != nil {
				return fmt.Errorf("delete stale entries: %w", err)
			}
		}
	}

	_, warnings, err := s.refresh(ctx, *latest)
	for _, w := range warnings {
		logger.Debug("Rebuild %s: %s", id, w)
	}
	return err
}

// RetryUnembedded embeds current chunks that were stored without an
// embedding. It returns the number of chunks newly indexed.
func (s *IngestService) RetryUnembedded(ctx context.Context, limit int) (int, error) {
	if !s.canEmbed() {
		logger.Debug("Embedding retry skipped: no embedder or index configured")
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}

	pending, err := s.chunks.ListUnembedded(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unembedded chunks: %w", err)
	}

	byDoc := make(map[string][]domain.Chunk)
	var order []domain.DocumentID
	for _, c := range pending {
		key := c.DocumentID.Key()
		if _, ok := byDoc[key]; !ok {
			order = append(order, c.DocumentID)
		}
		byDoc[key] = append(byDoc[key], c)
	}

	indexed := 0
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		n, err := s.retryDocument(ctx, id, byDoc[id.Key()])
		if err != nil {
			return indexed, err
		}
		indexed += n
	}
	return indexed, nil
}

func (s *IngestService) retryDocument(ctx context.Context, id domain.DocumentID, chunks []domain.Chunk) (int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	latest, err := s.versions.Latest(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get latest version: %w", err)
	}

	var current []domain.Chunk
	for _, c := range chunks {
		if c.Version == latest.Version {
			current = append(current, c)
		}
	}
	if len(current) == 0 {
		return 0, nil
	}

	vectors, _ := s.embedChunks(ctx, current)
	var done []string
	for i, c := range current {
		if vectors[i] == nil {
			continue
		}
		err := s.index.Upsert(ctx, driven.VectorEntry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Version:    c.Version,
			Sequence:   c.Sequence,
			Vector:     vectors[i],
		})
		if errors.Is(err, domain.ErrStaleIndexConflict) {
			logger.Debug("Skipping stale chunk %s", c.ID)
			continue
		}
		if err != nil {
			return len(done), fmt.Errorf("upsert %s: %w", c.ID, err)
		}
		done = append(done, c.ID)
	}

	if len(done) > 0 {
		if err := s.chunks.MarkEmbedded(ctx, done, true); err != nil {
			return 0, fmt.Errorf("mark embedded: %w", err)
		}
	}
	return len(done), nil
}

// refresh chunks and embeds rec, stores its chunks and replaces its index
// entries. The caller holds the document's write lock.
func (s *IngestService) refresh(ctx context.Context, rec domain.VersionRecord) ([]domain.Chunk, []domain.Warning, error) {
	var lastErr error
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		if attempt > 0 {
			latest, err := s.versions.Latest(ctx, rec.DocumentID)
			if err != nil {
				return nil, nil, fmt.Errorf("get latest version: %w", err)
			}
			rec = *latest
			logger.L().Debug("retrying reindex",
				zap.String("document", rec.DocumentID.String()),
				zap.Int("version", rec.Version),
				zap.Int("attempt", attempt+1))
		}

		chunks, vectors, warnings, err := s.derive(ctx, rec)
		if err != nil {
			return nil, nil, err
		}

		err = s.reindex(ctx, rec, chunks, vectors)
		if err == nil {
			return chunks, warnings, nil
		}
		if !errors.Is(err, domain.ErrStaleIndexConflict) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// derive produces and stores the chunks of rec, embedding them when an
// embedder and index are configured. vectors has one entry per chunk; nil
// entries were not embedded.
func (s *IngestService) derive(
	ctx context.Context, rec domain.VersionRecord,
) ([]domain.Chunk, [][]float32, []domain.Warning, error) {
	chunks, err := s.pipeline.Process(ctx, &rec)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("chunk document: %w", err)
	}

	vectors := make([][]float32, len(chunks))
	var warnings []domain.Warning
	if s.canEmbed() && len(chunks) > 0 {
		vectors, warnings = s.embedChunks(ctx, chunks)
		for i := range chunks {
			chunks[i].Embedded = vectors[i] != nil
		}
	}

	if err := s.chunks.SaveChunks(ctx, rec.DocumentID, rec.Version, chunks); err != nil {
		return nil, nil, nil, fmt.Errorf("save chunks: %w", err)
	}
	return chunks, vectors, warnings, nil
}

// reindex replaces the document's index entries with the embedded chunks.
func (s *IngestService) reindex(
	ctx context.Context, rec domain.VersionRecord, chunks []domain.Chunk, vectors [][]float32,
) error {
	if s.index == nil {
		return nil
	}
	entries := make([]driven.VectorEntry, 0, len(chunks))
	for i := range chunks {
		if vectors[i] == nil {
			continue
		}
		entries = append(entries, driven.VectorEntry{
			ChunkID:    chunks[i].ID,
			DocumentID: rec.DocumentID,
			Version:    rec.Version,
			Sequence:   chunks[i].Sequence,
			Vector:     vectors[i],
		})
	}

	if err := s.index.Reindex(ctx, rec.DocumentID, rec.Version, entries); err != nil {
		return fmt.Errorf("reindex %s: %w", rec.DocumentID, err)
	}
	return nil
}

// embedChunks embeds chunk contents. The result has one entry per chunk;
// failed chunks have a nil vector and a warning.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, []domain.Warning) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].EmbeddingText()
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}
	if err != nil && errors.Is(err, domain.ErrMalformedInput) {
		// One input poisoned the batch; embed the rest individually.
		vectors = make([][]float32, len(chunks))
		var warnings []domain.Warning
		for i := range chunks {
			vec, err := s.embedder.Embed(ctx, texts[i])
			if err != nil {
				warnings = append(warnings, embeddingWarning(chunks[i].ID, err))
				continue
			}
			vectors[i] = vec
		}
		return s.checkDimensions(chunks, vectors, warnings)
	}
	if err != nil {
		warnings := make([]domain.Warning, len(chunks))
		for i := range chunks {
			warnings[i] = embeddingWarning(chunks[i].ID, err)
		}
		return make([][]float32, len(chunks)), warnings
	}
	return s.checkDimensions(chunks, vectors, nil)
}

func (s *IngestService) checkDimensions(
	chunks []domain.Chunk, vectors [][]float32, warnings []domain.Warning,
) ([][]float32, []domain.Warning) {
	dims := s.embedder.Dimensions()
	for i := range vectors {
		if vectors[i] == nil || dims <= 0 || len(vectors[i]) == dims {
			continue
		}
		warnings = append(warnings, embeddingWarning(chunks[i].ID,
			fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vectors[i]), dims)))
		vectors[i] = nil
	}
	return vectors, warnings
}

func embeddingWarning(chunkID string, err error) domain.Warning {
	return domain.Warning{
		Kind:    domain.WarningEmbeddingUnavailable,
		ChunkID: chunkID,
		Message: err.Error(),
	}
}

func countEmbedded(chunks []domain.Chunk) int {
	n := 0
	for i := range chunks {
		if chunks[i].Embedded {
			n++
		}
	}
	return n
}
