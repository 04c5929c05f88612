package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// stubOpener records the dimension it was asked for.
type stubOpener struct {
	dims int
	err  error
}

func (o *stubOpener) VectorIndex(_ context.Context, dims int) (driven.VectorIndex, error) {
	o.dims = dims
	if o.err != nil {
		return nil, o.err
	}
	return memory.NewVectorIndex(dims), nil
}

func TestInitResult_Close(t *testing.T) {
	t.Run("close with nil services", func(t *testing.T) {
		result := &InitResult{}
		// Should not panic
		result.Close()
	})

	t.Run("close with services", func(t *testing.T) {
		result := Initialise(context.Background(), &domain.AppSettings{
			Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderHashing, Dimensions: 8},
			Index:     domain.IndexSettings{Backend: domain.IndexBackendMemory},
		}, nil)
		require.NotNil(t, result.EmbeddingService)
		result.Close()
	})
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantNil     bool
		wantErr     bool
		wantModel   string
		wantDims    int
		errContains string
	}{
		{
			name:     "nil settings returns nil",
			settings: nil,
			wantNil:  true,
		},
		{
			name:     "unconfigured settings returns nil",
			settings: &domain.EmbeddingSettings{},
			wantNil:  true,
		},
		{
			name:     "none provider returns nil",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderNone},
			wantNil:  true,
		},
		{
			name:      "hashing provider creates service",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderHashing, Dimensions: 64},
			wantModel: "feature-hash",
			wantDims:  64,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				Model:    "nomic-embed-text",
			},
			wantModel: "nomic-embed-text",
			wantDims:  768,
		},
		{
			name: "ollama provider honours dimension override",
			settings: &domain.EmbeddingSettings{
				Provider:   domain.AIProviderOllama,
				Model:      "custom-model",
				Dimensions: 512,
			},
			wantModel: "custom-model",
			wantDims:  512,
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				Model:    "text-embedding-3-large",
				APIKey:   "sk-test",
			},
			wantModel: "text-embedding-3-large",
			wantDims:  3072,
		},
		{
			name: "openai without key is unconfigured",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateEmbeddingService_UnknownProvider(t *testing.T) {
	// IsConfigured rejects unknown providers, so the factory returns nil.
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{Provider: "unknown"})
	assert.NoError(t, err)
	assert.Nil(t, svc)
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	ctx := context.Background()

	t.Run("hashing is always reachable", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(ctx, &domain.EmbeddingSettings{Provider: domain.AIProviderHashing})
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, 256, svc.Dimensions())
	})

	t.Run("unreachable ollama wraps ErrEmbeddingUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		svc, err := CreateAndValidateEmbeddingService(ctx, &domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  srv.URL,
		})
		assert.Nil(t, svc)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("unconfigured returns nil", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(ctx, nil)
		assert.NoError(t, err)
		assert.Nil(t, svc)
	})
}

func TestValidateEmbeddingConfig(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, ValidateEmbeddingConfig(ctx, nil))
	assert.NoError(t, ValidateEmbeddingConfig(ctx, &domain.EmbeddingSettings{Provider: domain.AIProviderHashing}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	assert.NoError(t, ValidateEmbeddingConfig(ctx, &domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  srv.URL,
	}))
}

func TestCreateVectorIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		index, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: domain.IndexBackendMemory}, 4, nil)
		require.NoError(t, err)
		assert.IsType(t, &memory.VectorIndex{}, index)
	})

	t.Run("sqlite backend uses opener", func(t *testing.T) {
		opener := &stubOpener{}
		index, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: domain.IndexBackendSQLite}, 16, opener)
		require.NoError(t, err)
		assert.NotNil(t, index)
		assert.Equal(t, 16, opener.dims)
	})

	t.Run("sqlite backend without opener", func(t *testing.T) {
		_, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: domain.IndexBackendSQLite}, 16, nil)
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	})

	t.Run("sqlite opener failure", func(t *testing.T) {
		opener := &stubOpener{err: errors.New("disk full")}
		_, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: domain.IndexBackendSQLite}, 16, opener)
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("invalid dimension", func(t *testing.T) {
		_, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: domain.IndexBackendMemory}, 0, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := CreateVectorIndex(ctx, domain.IndexSettings{Backend: "redis"}, 4, nil)
		assert.Error(t, err)
	})
}

func TestInitialise(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured embedding is keyword only without fallback", func(t *testing.T) {
		result := Initialise(ctx, &domain.AppSettings{
			Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderNone},
		}, nil)
		assert.Nil(t, result.EmbeddingService)
		assert.Nil(t, result.VectorIndex)
		assert.False(t, result.FellBack)
		assert.Empty(t, result.Warnings)
	})

	t.Run("index sized to embedding dimension", func(t *testing.T) {
		opener := &stubOpener{}
		result := Initialise(ctx, &domain.AppSettings{
			Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderHashing, Dimensions: 32},
			Index:     domain.IndexSettings{Backend: domain.IndexBackendSQLite},
		}, opener)
		defer result.Close()
		assert.NotNil(t, result.EmbeddingService)
		assert.NotNil(t, result.VectorIndex)
		assert.Equal(t, 32, opener.dims)
		assert.False(t, result.FellBack)
	})

	t.Run("index failure falls back", func(t *testing.T) {
		result := Initialise(ctx, &domain.AppSettings{
			Embedding: domain.EmbeddingSettings{Provider: domain.AIProviderHashing},
			Index:     domain.IndexSettings{Backend: domain.IndexBackendSQLite},
		}, &stubOpener{err: errors.New("locked")})
		assert.True(t, result.FellBack)
		assert.Nil(t, result.EmbeddingService)
		assert.Nil(t, result.VectorIndex)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "locked")
	})
}
