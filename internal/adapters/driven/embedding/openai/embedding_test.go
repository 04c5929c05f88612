package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewEmbeddingService(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return svc
}

func TestNewEmbeddingService_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.Error(t, err)
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	svc, err := NewEmbeddingService(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, 1536, svc.Dimensions())

	large, err := NewEmbeddingService(Config{APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, large.Dimensions())

	custom, err := NewEmbeddingService(Config{APIKey: "k", Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, 1536, custom.Dimensions())

	override, err := NewEmbeddingService(Config{APIKey: "k", Dimensions: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, override.Dimensions())
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	var got map[string]any
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			]
		}`))
	})

	vectors, err := svc.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	assert.Equal(t, "text-embedding-3-small", got["model"])
	assert.EqualValues(t, 1536, got["dimensions"])
}

func TestEmbed_Single(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [0.5, 0.5]}]}`))
	})

	vec, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestEmbedBatch_MissingEmbedding(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"index": 0, "embedding": [1]}]}`))
	})

	_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedBatch_Empty(t *testing.T) {
	svc, err := NewEmbeddingService(Config{APIKey: "k"})
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbed_BadRequestIsMalformedInput(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "input too long", "type": "invalid_request_error"}}`))
	})

	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestEmbed_ServerErrorIsRetryable(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	})

	_, err := svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrMalformedInput)
}

func TestPing(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": []}`))
	})

	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestPing_Unauthorized(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	})

	assert.Error(t, svc.Ping(context.Background()))
}
