package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// recordingIngest implements driving.IngestService and records requests.
type recordingIngest struct {
	mu      sync.Mutex
	single  []domain.IngestRequest
	batches [][]domain.IngestRequest
	err     error
	calls   chan domain.IngestRequest
}

func newRecordingIngest() *recordingIngest {
	return &recordingIngest{calls: make(chan domain.IngestRequest, 64)}
}

func (r *recordingIngest) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	r.mu.Lock()
	r.single = append(r.single, req)
	err := r.err
	r.mu.Unlock()
	r.calls <- req
	if err != nil {
		return nil, err
	}
	return &domain.IngestResult{DocumentID: domain.DocumentID{Path: req.Path}, Version: 1, Created: true}, nil
}

func (r *recordingIngest) IngestBatch(_ context.Context, reqs []domain.IngestRequest) ([]*domain.IngestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, reqs)
	out := make([]*domain.IngestResult, len(reqs))
	for i := range reqs {
		out[i] = &domain.IngestResult{DocumentID: domain.DocumentID{Path: reqs[i].Path}, Version: 1}
	}
	return out, nil
}

func (r *recordingIngest) Rebuild(context.Context) (int, error) { return 0, nil }

func (r *recordingIngest) RetryUnembedded(context.Context, int) (int, error) { return 0, nil }

func (r *recordingIngest) batchPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, batch := range r.batches {
		for _, req := range batch {
			paths = append(paths, req.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func waitForIngest(t *testing.T, ingest *recordingIngest, path string) domain.IngestRequest {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case req := <-ingest.calls:
			if req.Path == path {
				return req
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ingestion of %s", path)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Root: t.TempDir()})
	assert.Error(t, err)

	_, err = New(newRecordingIngest(), Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "a.py", "x = 1\n")
	_, err = New(newRecordingIngest(), Config{Root: file})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	w, err := New(newRecordingIngest(), Config{Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.cfg.Debounce)
	assert.EqualValues(t, domain.MaxFileSize, w.cfg.MaxFileSize)
}

func TestScan_SkipsHiddenVendoredAndUnsupported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "calc.py", "def add(a, b):\n    return a + b\n")
	writeFile(t, root, "pkg/util.go", "package pkg\n")
	writeFile(t, root, "README.md", "# readme\n")
	writeFile(t, root, ".hidden.py", "x = 1\n")
	writeFile(t, root, ".git/hooks/pre.py", "x = 1\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = {}\n")
	writeFile(t, root, "big.py", string(make([]byte, 64)))

	ingest := newRecordingIngest()
	w, err := New(ingest, Config{Root: root, Module: "calc", MaxFileSize: 40})
	require.NoError(t, err)

	results, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"calc.py", "pkg/util.go"}, ingest.batchPaths())

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	require.Len(t, ingest.batches, 1)
	for _, req := range ingest.batches[0] {
		assert.Equal(t, "calc", req.Module)
		assert.NotEmpty(t, req.Text)
	}
}

func TestScan_EmptyTree(t *testing.T) {
	ingest := newRecordingIngest()
	w, err := New(ingest, Config{Root: t.TempDir()})
	require.NoError(t, err)

	results, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, ingest.batchPaths())
}

func TestRun_ReingestsChangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a():\n    pass\n")

	ingest := newRecordingIngest()
	w, err := New(ingest, Config{Root: root, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	var mu sync.Mutex
	var observed []string
	w.OnIngest(func(path string, _ *domain.IngestResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			observed = append(observed, path)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}

	writeFile(t, root, "a.py", "def a():\n    return 1\n")
	req := waitForIngest(t, ingest, "a.py")
	assert.Contains(t, req.Text, "return 1")

	// Files in directories created after start are picked up.
	writeFile(t, root, "sub/b.py", "def b():\n    pass\n")
	waitForIngest(t, ingest, "sub/b.py")

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, ingest.batchPaths(), "a.py")
	mu.Lock()
	assert.Contains(t, observed, "a.py")
	mu.Unlock()
}

func TestRun_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	ingest := newRecordingIngest()
	w, err := New(ingest, Config{Root: root, Debounce: 150 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-w.Ready()

	for i := 0; i < 5; i++ {
		writeFile(t, root, "burst.py", "x = "+string(rune('0'+i))+"\n")
	}
	req := waitForIngest(t, ingest, "burst.py")
	assert.Equal(t, "x = 4\n", req.Text)

	cancel()
	require.NoError(t, <-done)

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	count := 0
	for _, r := range ingest.single {
		if r.Path == "burst.py" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRun_IgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	ingest := newRecordingIngest()
	ingest.err = errors.New("should not be called")
	w, err := New(ingest, Config{Root: root, Debounce: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-w.Ready()

	writeFile(t, root, ".scratch.py", "x = 1\n")
	writeFile(t, root, "notes.txt", "hello\n")

	select {
	case req := <-ingest.calls:
		t.Fatalf("unexpected ingestion of %s", req.Path)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestIgnored(t *testing.T) {
	w := &Watcher{cfg: Config{Root: "/repo"}}

	assert.False(t, w.ignored("/repo/a.py"))
	assert.False(t, w.ignored("/repo/src/a.py"))
	assert.True(t, w.ignored("/repo/.env.py"))
	assert.True(t, w.ignored("/repo/.git/config.py"))
	assert.True(t, w.ignored("/repo/node_modules/x.js"))
	assert.False(t, w.ignored("/repo/vendor.py"))
}
