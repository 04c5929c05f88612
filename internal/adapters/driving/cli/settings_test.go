package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShow(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Feature hashing (offline)")
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "Top K: 10")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsEmbedding_WithArgs(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	var validated *domain.EmbeddingSettings
	validateEmbedding = func(_ context.Context, s *domain.EmbeddingSettings) error {
		validated = s
		return nil
	}

	out, err := execute(t, "settings", "embedding", "openai", "--api-key", "sk-test-1234567890")

	require.NoError(t, err)
	assert.Contains(t, out, "Validating configuration... OK")

	settings, err := ts.settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 1536, settings.Embedding.Dimensions)
	require.NotNil(t, validated)
	assert.Equal(t, "sk-test-1234567890", validated.APIKey)

	out, err = execute(t, "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "API Key: sk-t...7890")
}

func TestSettingsEmbedding_ValidationFailure(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	validateEmbedding = func(context.Context, *domain.EmbeddingSettings) error {
		return errors.New("connection refused")
	}

	out, err := execute(t, "settings", "embedding", "ollama")

	require.Error(t, err)
	assert.Contains(t, out, "FAILED: connection refused")
}

func TestSettingsEmbedding_UnknownProvider(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "settings", "embedding", "cohere")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown embedding provider "cohere"`)
}

func TestSettingsEmbedding_MissingAPIKey(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "settings", "embedding", "openai")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestSettingsEmbedding_Interactive(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	defer func() { embeddingModel = "" }()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetIn(strings.NewReader("2\nmxbai-embed-large\n"))
	rootCmd.SetArgs([]string{"settings", "embedding"})
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	require.NoError(t, rootCmd.Execute())

	settings, err := ts.settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, "mxbai-embed-large", settings.Embedding.Model)
	assert.Equal(t, "http://localhost:11434", settings.Embedding.BaseURL)
	assert.Equal(t, 1024, settings.Embedding.Dimensions)
}

func TestSettingsIndex(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "settings", "index", "Qdrant")

	require.NoError(t, err)
	assert.Contains(t, out, "Index backend set to: qdrant")
	settings, err := ts.settings.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.IndexBackendQdrant, settings.Index.Backend)

	_, err = execute(t, "settings", "index", "redis")
	assert.Error(t, err)
}
