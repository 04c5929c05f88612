package keywords

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "keywords", New().Name())
}

func TestProcessor_AnnotatesChunks(t *testing.T) {
	chunks := []domain.Chunk{
		{
			Text:    "    return total + value\n",
			Carry:   "def accumulate_total(values):",
			Carried: true,
			Symbols: []domain.SymbolRef{{Kind: domain.SymbolMethod, Name: "Ledger.accumulateTotal", Partial: true}},
		},
		{Text: "x = 1\n"},
	}

	out, err := New().Process(context.Background(), nil, chunks)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"accumulate", "accumulatetotal", "return", "total", "value"}, out[0].Keywords())
	assert.NotContains(t, out[0].Keywords(), "values", "carried signature must not be scored")
	assert.Empty(t, out[1].Keywords())
	assert.NotNil(t, out[1].Metadata)
}

func TestProcessor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Process(ctx, nil, []domain.Chunk{{Text: "abc"}})
	assert.ErrorIs(t, err, context.Canceled)
}
