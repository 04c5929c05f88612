package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentID(t *testing.T) {
	t.Run("normalises path", func(t *testing.T) {
		id, err := NewDocumentID("./src//calc/../calc/a.py", " core ")
		require.NoError(t, err)
		assert.Equal(t, "src/calc/a.py", id.Path)
		assert.Equal(t, "core", id.Module)
	})

	t.Run("backslashes become slashes", func(t *testing.T) {
		id, err := NewDocumentID(`pkg\util\strings.go`, "")
		require.NoError(t, err)
		assert.Equal(t, "pkg/util/strings.go", id.Path)
	})

	invalid := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"dot", "."},
		{"absolute", "/etc/passwd"},
		{"escapes root", "../outside.go"},
		{"escapes after clean", "a/../../b.go"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := NewDocumentID(tt.path, "")
			assert.ErrorIs(t, err, ErrInvalidDocumentIdentity)
		})
	}

	t.Run("rejects separator in module", func(t *testing.T) {
		_, err := NewDocumentID("a.go", "x::y")
		assert.ErrorIs(t, err, ErrInvalidDocumentIdentity)
	})
}

func TestDocumentID_KeyRoundTrip(t *testing.T) {
	id := DocumentID{Path: "src/a.py", Module: "calc"}

	parsed, err := ParseDocumentKey(id.Key())

	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, "calc:src/a.py", id.String())
	assert.Equal(t, "src/a.py", DocumentID{Path: "src/a.py"}.String())
}

func TestParseDocumentKey_Malformed(t *testing.T) {
	_, err := ParseDocumentKey("no-separator")
	assert.ErrorIs(t, err, ErrInvalidDocumentIdentity)
}

func TestNewCodeDocument(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := DocumentID{Path: "a.py"}

	doc := NewCodeDocument(id, "def add(a, b):\n    return a + b\n", LanguageUnknown, now)

	assert.Equal(t, LanguagePython, doc.Language)
	assert.Equal(t, HashText(doc.Text), doc.ContentHash)
	assert.Len(t, doc.ContentHash, 64)
	assert.Equal(t, 2, doc.LineCount())
	assert.Equal(t, now, doc.IngestedAt)
}

func TestNewCodeDocument_HintWins(t *testing.T) {
	doc := NewCodeDocument(DocumentID{Path: "script"}, "x", LanguageRuby, time.Now())
	assert.Equal(t, LanguageRuby, doc.Language)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(""))
	assert.Equal(t, 1, CountLines("a"))
	assert.Equal(t, 1, CountLines("a\n"))
	assert.Equal(t, 2, CountLines("a\nb"))
	assert.Equal(t, 3, CountLines("a\n\nb\n"))
}

func TestRunePrefix(t *testing.T) {
	assert.Equal(t, "", RunePrefix("abc", 0))
	assert.Equal(t, "ab", RunePrefix("abc", 2))
	assert.Equal(t, "abc", RunePrefix("abc", 10))
	assert.Equal(t, "hé", RunePrefix("héllo", 2))
	assert.Equal(t, "\xff\xffa", RunePrefix("\xff\xffab", 3))
	assert.Equal(t, "\xe2\x98", RunePrefix("\xe2\x98a", 2))
}
