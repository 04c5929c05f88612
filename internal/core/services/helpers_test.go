package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/extractors"
	"github.com/custodia-labs/testctx/internal/extractors/generic"
	"github.com/custodia-labs/testctx/internal/extractors/golang"
	"github.com/custodia-labs/testctx/internal/postprocessors"
	"github.com/custodia-labs/testctx/internal/postprocessors/chunker"
	"github.com/custodia-labs/testctx/internal/postprocessors/keywords"
)

const testDims = 256

// --- Mock embedder ---

// mockEmbedder hashes keywords into a fixed-size bag-of-words vector.
// poison marks inputs that are rejected as malformed.
type mockEmbedder struct {
	mu     sync.Mutex
	dims   int
	err    error
	poison string
	calls  atomic.Int32
	batchN atomic.Int32

	// EmbedBatch signals stalled and waits on stall while stall is set.
	stall   chan struct{}
	stalled chan struct{}
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: testDims}
}

func (m *mockEmbedder) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockEmbedder) vector(text string) ([]float32, error) {
	m.mu.Lock()
	err, poison := m.err, m.poison
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if poison != "" && strings.Contains(text, poison) {
		return nil, domain.ErrMalformedInput
	}
	vec := make([]float32, m.dims)
	for kw, n := range domain.ExtractKeywords(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(kw))
		vec[h.Sum32()%uint32(m.dims)] += float32(n)
	}
	return vec, nil
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.vector(text)
}

// stallBatches makes EmbedBatch block until release is called. stalled
// receives once a batch is waiting.
func (m *mockEmbedder) stallBatches() (stalled <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stall = make(chan struct{})
	m.stalled = make(chan struct{}, 1)
	var once sync.Once
	stall := m.stall
	return m.stalled, func() { once.Do(func() { close(stall) }) }
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchN.Add(1)
	m.mu.Lock()
	stall, stalled := m.stall, m.stalled
	m.mu.Unlock()
	if stall != nil {
		select {
		case stalled <- struct{}{}:
		default:
		}
		<-stall
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.vector(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int           { return m.dims }
func (m *mockEmbedder) ModelName() string         { return "mock-bow" }
func (m *mockEmbedder) Ping(context.Context) error { return nil }
func (m *mockEmbedder) Close() error              { return nil }

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

// errTransient stands in for a network failure.
var errTransient = errors.New("connection reset")

// --- Harness ---

// harness wires the core services over in-memory adapters.
type harness struct {
	versions *memory.VersionStore
	chunks   *memory.ChunkStore
	index    *memory.VectorIndex
	embedder *mockEmbedder
	locks    *KeyedLocker

	ingest  *IngestService
	changes *ChangeService
	context *ContextService
	catalog *CatalogService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	maxChars  int
	retrieval domain.RetrievalSettings
	noEmbed   bool
}

func withChunkChars(n int) harnessOption {
	return func(c *harnessConfig) { c.maxChars = n }
}

func withRetrieval(r domain.RetrievalSettings) harnessOption {
	return func(c *harnessConfig) { c.retrieval = r }
}

func withoutEmbeddings() harnessOption {
	return func(c *harnessConfig) { c.noEmbed = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		maxChars:  chunker.DefaultMaxChars,
		retrieval: domain.DefaultAppSettings().Retrieval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := extractors.NewRegistry(generic.New())
	registry.Register(golang.New())

	h := &harness{
		versions: memory.NewVersionStore(),
		chunks:   memory.NewChunkStore(),
		locks:    NewKeyedLocker(),
	}

	var (
		index    driven.VectorIndex
		embedder driven.EmbeddingService
	)
	if !cfg.noEmbed {
		h.index = memory.NewVectorIndex(testDims)
		h.embedder = newMockEmbedder()
		index, embedder = h.index, h.embedder
	}

	pipeline := postprocessors.NewPipeline(chunker.New(chunker.WithMaxChars(cfg.maxChars)), keywords.New())
	h.ingest = NewIngestService(h.versions, h.chunks, NewExtractionService(registry), pipeline,
		index, embedder, h.locks, domain.IngestSettings{})
	h.changes = NewChangeService(h.versions)
	h.context = NewContextService(h.chunks, index, embedder, h.changes, h.locks, cfg.retrieval)
	h.catalog = NewCatalogService(h.versions, h.chunks, index)
	return h
}

// receive waits for a value on ch or fails the test after a timeout.
func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func (h *harness) mustIngest(t *testing.T, path, text string) *domain.IngestResult {
	t.Helper()
	res, err := h.ingest.Ingest(context.Background(), domain.IngestRequest{Path: path, Text: text})
	require.NoError(t, err)
	return res
}

const addV1 = `def add(a, b):
    """Add two numbers."""
    total = a
    total = total + b
    if total is None:
        return 0
    return total


def unrelated(x):
    return x * 2
`

const addV2 = `def add(a, b, c):
    """Add three numbers."""
    total = a
    total = total + b + c
    if total is None:
        return 0
    return total


def unrelated(x):
    return x * 2
`
