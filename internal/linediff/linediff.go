// Package linediff counts line-level insertions and deletions between two
// texts using the sergi/go-diff line mode.
package linediff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// Engine computes line deltas.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// New creates a diff engine. The diff timeout is disabled so results are
// deterministic regardless of machine load.
func New() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// Default is the shared engine. It holds no mutable state.
var Default = New()

// Delta returns the number of lines added and removed going from older to newer.
func (e *Engine) Delta(older, newer string) domain.LineDelta {
	if older == newer {
		return domain.LineDelta{}
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(older, newer)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	var delta domain.LineDelta
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			delta.Added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			delta.Removed += countLines(d.Text)
		}
	}
	return delta
}

// Delta computes a line delta with the default engine.
func Delta(older, newer string) domain.LineDelta {
	return Default.Delta(older, newer)
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
