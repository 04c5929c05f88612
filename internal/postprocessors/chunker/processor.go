// Package chunker provides a symbol-aware, lossless chunking processor.
//
// Whole symbols are packed greedily into chunks up to a character bound.
// A symbol larger than the bound is split at line boundaries, and each
// continuation chunk carries a copy of the enclosing signatures so it can be
// read on its own. Concatenating the Text of every chunk in sequence order
// reproduces the document exactly; the carried signature lives in
// Chunk.Carry and is flagged in metadata. Chunks that do not contain the
// document's imports get up to domain.MaxImportContext import lines in
// metadata for embedding.
package chunker

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// DefaultMaxChars is the default chunk size bound in characters.
const DefaultMaxChars = 1500

// minMaxChars is the smallest accepted bound.
const minMaxChars = 16

// chunkNamespace seeds deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c6c2e-3a52-4f0b-9d7e-5b8f1e0a9c41")

// ChunkID returns the deterministic ID of a chunk.
func ChunkID(id domain.DocumentID, version, sequence int) string {
	key := fmt.Sprintf("%s#%d#%d", id.Key(), version, sequence)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// Processor splits a version snapshot into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	maxChars int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxChars sets the chunk size bound in characters.
func WithMaxChars(n int) Option {
	return func(p *Processor) {
		if n >= minMaxChars {
			p.maxChars = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxChars: DefaultMaxChars,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MaxChars returns the configured bound.
func (p *Processor) MaxChars() int {
	return p.maxChars
}

// Process chunks the snapshot text. Input chunks are ignored; this processor
// creates new chunks.
func (p *Processor) Process(ctx context.Context, rec *domain.VersionRecord, _ []domain.Chunk) ([]domain.Chunk, error) {
	if rec == nil || rec.Text == "" {
		return nil, nil
	}

	lines := splitKeepNewlines(rec.Text)
	symbols := validSymbols(rec.Symbols, len(lines))

	b := &builder{
		rec:      rec,
		lines:    lines,
		symbols:  symbols,
		maxChars: p.maxChars,
	}
	b.imports, b.importLines = importContext(lines, symbols)

	for _, seg := range segments(len(lines), symbols) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		size := b.rangeSize(seg.start, seg.end)
		if b.size+size <= p.maxChars {
			b.appendLines(seg.start, seg.end)
			continue
		}
		b.flush()
		if size <= p.maxChars {
			b.appendLines(seg.start, seg.end)
			continue
		}
		b.split(seg)
	}
	b.flush()

	return b.chunks, nil
}

// segment is a run of lines: either one or more overlapping symbols, or
// the gap text between them.
type segment struct {
	start, end int
	symbol     bool
}

// segments partitions lines 1..n into symbol units and gaps.
func segments(n int, symbols []domain.Symbol) []segment {
	var units []segment
	for _, s := range symbols {
		if len(units) > 0 && s.StartLine <= units[len(units)-1].end {
			if s.EndLine > units[len(units)-1].end {
				units[len(units)-1].end = s.EndLine
			}
			continue
		}
		units = append(units, segment{start: s.StartLine, end: s.EndLine, symbol: true})
	}

	var out []segment
	next := 1
	for _, u := range units {
		if u.start > next {
			out = append(out, segment{start: next, end: u.start - 1})
		}
		out = append(out, u)
		next = u.end + 1
	}
	if next <= n {
		out = append(out, segment{start: next, end: n})
	}
	return out
}

// builder accumulates the chunk under construction.
type builder struct {
	rec      *domain.VersionRecord
	lines    []string
	symbols  []domain.Symbol
	maxChars int
	chunks   []domain.Chunk

	imports     []string
	importLines []int

	// current chunk
	text    strings.Builder
	size    int
	start   int
	end     int
	carry   string
	partial bool
}

func (b *builder) rangeSize(start, end int) int {
	n := 0
	for i := start; i <= end; i++ {
		n += utf8.RuneCountInString(b.lines[i-1])
	}
	return n
}

func (b *builder) appendLines(start, end int) {
	for i := start; i <= end; i++ {
		b.appendLine(i)
	}
}

func (b *builder) appendLine(i int) {
	if b.text.Len() == 0 {
		b.start = i
	}
	b.text.WriteString(b.lines[i-1])
	b.size += utf8.RuneCountInString(b.lines[i-1])
	b.end = i
}

// split emits an oversized segment line by line. Continuation chunks of a
// symbol carry the enclosing signatures.
func (b *builder) split(seg segment) {
	for i := seg.start; i <= seg.end; i++ {
		if b.text.Len() == 0 && seg.symbol && i > seg.start {
			b.carry = b.carryFor(i)
			b.size = carrySize(b.carry)
		}
		lineSize := utf8.RuneCountInString(b.lines[i-1])
		if b.size+lineSize <= b.maxChars {
			b.appendLine(i)
			continue
		}
		if b.text.Len() > 0 {
			b.flush()
			if seg.symbol && i > seg.start {
				b.carry = b.carryFor(i)
				b.size = carrySize(b.carry)
			}
			if b.size+lineSize <= b.maxChars {
				b.appendLine(i)
				continue
			}
		}
		b.splitLine(i)
	}
}

// splitLine emits a single line longer than the bound as rune-bounded pieces.
func (b *builder) splitLine(i int) {
	line := b.lines[i-1]
	for line != "" {
		budget := b.maxChars - b.size
		if budget < 1 {
			// The carry alone exhausts the bound.
			b.carry = ""
			b.size = 0
			budget = b.maxChars
		}
		piece := domain.RunePrefix(line, budget)
		line = line[len(piece):]

		b.text.WriteString(piece)
		b.size += utf8.RuneCountInString(piece)
		b.start, b.end = i, i
		b.partial = true
		b.flush()
	}
}

// carryFor returns the signatures of the symbols enclosing line i that
// started before it, outermost first. Signatures that would leave less than
// half the bound for text are dropped from the outside in.
func (b *builder) carryFor(i int) string {
	var sigs []string
	for _, s := range b.symbols {
		if s.Kind == domain.SymbolImport || s.Signature == "" {
			continue
		}
		if s.StartLine < i && s.EndLine >= i {
			sigs = append(sigs, strings.TrimRight(s.Signature, "\r\n"))
		}
	}
	for len(sigs) > 0 {
		carry := strings.Join(sigs, "\n")
		if carrySize(carry) <= b.maxChars/2 {
			return carry
		}
		sigs = sigs[1:]
	}
	return ""
}

func carrySize(carry string) int {
	if carry == "" {
		return 0
	}
	return utf8.RuneCountInString(carry) + 1
}

func (b *builder) flush() {
	if b.text.Len() == 0 {
		b.carry = ""
		b.size = 0
		b.partial = false
		return
	}

	seq := len(b.chunks)
	chunk := domain.Chunk{
		ID:         ChunkID(b.rec.DocumentID, b.rec.Version, seq),
		DocumentID: b.rec.DocumentID,
		Version:    b.rec.Version,
		Sequence:   seq,
		Text:       b.text.String(),
		StartLine:  b.start,
		EndLine:    b.end,
		Symbols:    b.refs(b.start, b.end, b.partial),
		Metadata: map[string]any{
			domain.MetaLanguage: string(b.rec.Language),
		},
	}
	if b.carry != "" {
		chunk.Carry = b.carry
		chunk.Carried = true
		chunk.Metadata[domain.MetaCarriedSignature] = true
	}
	if len(b.imports) > 0 && !b.holdsImport(b.start, b.end) {
		chunk.Metadata[domain.MetaImports] = slices.Clone(b.imports)
	}
	b.chunks = append(b.chunks, chunk)

	b.text.Reset()
	b.size = 0
	b.carry = ""
	b.partial = false
}

// holdsImport reports whether lines start..end include an import line.
func (b *builder) holdsImport(start, end int) bool {
	for _, n := range b.importLines {
		if n >= start && n <= end {
			return true
		}
	}
	return false
}

// importContext collects the distinct first lines of import symbols, in
// source order and capped at domain.MaxImportContext, with the line numbers
// of every import.
func importContext(lines []string, symbols []domain.Symbol) ([]string, []int) {
	var (
		imports []string
		at      []int
		seen    = make(map[string]struct{})
	)
	for _, s := range symbols {
		if s.Kind != domain.SymbolImport {
			continue
		}
		at = append(at, s.StartLine)
		text := strings.TrimSpace(lines[s.StartLine-1])
		if text == "" || len(imports) >= domain.MaxImportContext {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		imports = append(imports, text)
	}
	return imports, at
}

// refs lists symbols overlapping lines start..end in source order.
func (b *builder) refs(start, end int, partialLine bool) []domain.SymbolRef {
	var out []domain.SymbolRef
	for _, s := range b.symbols {
		if s.EndLine < start || s.StartLine > end {
			continue
		}
		ref := s.Ref()
		ref.Partial = partialLine || s.StartLine < start || s.EndLine > end
		out = append(out, ref)
	}
	return out
}

// splitKeepNewlines splits text into lines that keep their terminators.
func splitKeepNewlines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// validSymbols returns symbols with spans clamped to the document, sorted by
// start line then widest first.
func validSymbols(symbols []domain.Symbol, n int) []domain.Symbol {
	out := make([]domain.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if s.StartLine < 1 || s.StartLine > n || s.EndLine < s.StartLine {
			continue
		}
		if s.EndLine > n {
			s.EndLine = n
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].EndLine > out[j].EndLine
	})
	return out
}
