package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrInvalidDocumentIdentity", ErrInvalidDocumentIdentity},
		{"ErrParseDegraded", ErrParseDegraded},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrMalformedInput", ErrMalformedInput},
		{"ErrStaleIndexConflict", ErrStaleIndexConflict},
		{"ErrVectorIndexUnavailable", ErrVectorIndexUnavailable},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("reindex a.py: %w", ErrStaleIndexConflict)

	assert.True(t, errors.Is(wrapped, ErrStaleIndexConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestErrors_Distinct(t *testing.T) {
	assert.NotEqual(t, ErrEmbeddingUnavailable, ErrMalformedInput)
	assert.NotEqual(t, ErrParseDegraded, ErrInvalidDocumentIdentity)
}
