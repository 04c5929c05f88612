package domain

import "strings"

// SymbolKind classifies a Symbol.
type SymbolKind string

// Symbol kinds produced by extractors.
const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
	SymbolImport   SymbolKind = "import"
)

// IsValid returns true if the kind is recognised.
func (k SymbolKind) IsValid() bool {
	switch k {
	case SymbolFunction, SymbolClass, SymbolMethod, SymbolImport:
		return true
	default:
		return false
	}
}

// Symbol is a named construct found in one CodeDocument.
// Symbols are never mutated after extraction.
type Symbol struct {
	// Kind is function, class, method or import.
	Kind SymbolKind `json:"kind"`

	// Name is the unqualified symbol name. For imports it is the import path.
	Name string `json:"name"`

	// Parent is the qualified name of the enclosing symbol.
	// Empty for top-level symbols.
	Parent string `json:"parent,omitempty"`

	// StartLine is the first line of the symbol (1-based, inclusive).
	StartLine int `json:"start_line"`

	// EndLine is the last line of the symbol (1-based, inclusive).
	EndLine int `json:"end_line"`

	// Signature is the header text (function or class declaration line).
	Signature string `json:"signature,omitempty"`

	// Complexity is the cyclomatic complexity estimate (1 + decision points).
	Complexity int `json:"complexity"`

	// Hash is the sha256 of the symbol's source span.
	Hash string `json:"hash"`

	// NormalizedHash is the sha256 of the span with comments and
	// insignificant whitespace removed.
	NormalizedHash string `json:"normalized_hash"`
}

// QualifiedName returns the scope path of the symbol joined with dots.
func (s Symbol) QualifiedName() string {
	if s.Parent == "" {
		return s.Name
	}
	return s.Parent + "." + s.Name
}

// MatchKey identifies a symbol across versions by kind, name and scope path.
func (s Symbol) MatchKey() string {
	return string(s.Kind) + "|" + s.QualifiedName()
}

// Ref returns a reference to this symbol suitable for embedding in a Chunk.
func (s Symbol) Ref() SymbolRef {
	return SymbolRef{Kind: s.Kind, Name: s.QualifiedName()}
}

// LineCount returns the number of lines the symbol spans.
func (s Symbol) LineCount() int {
	if s.EndLine < s.StartLine {
		return 0
	}
	return s.EndLine - s.StartLine + 1
}

// Contains reports whether other lies within this symbol's span.
func (s Symbol) Contains(other Symbol) bool {
	return other.StartLine >= s.StartLine && other.EndLine <= s.EndLine
}

// SymbolRef is a lightweight reference from a Chunk to a Symbol.
type SymbolRef struct {
	// Kind is the referenced symbol's kind.
	Kind SymbolKind `json:"kind"`

	// Name is the referenced symbol's qualified name.
	Name string `json:"name"`

	// Partial is true when the chunk covers only part of the symbol.
	Partial bool `json:"partial,omitempty"`
}

// Key matches SymbolRef against Symbol.MatchKey.
func (r SymbolRef) Key() string {
	return string(r.Kind) + "|" + r.Name
}

// Fingerprint fills Hash, NormalizedHash and, when empty, Signature
// from the document lines covered by the symbol span.
func (s *Symbol) Fingerprint(lines []string, lang Language) {
	body := SpanText(lines, s.StartLine, s.EndLine)
	s.Hash = HashText(body)
	s.NormalizedHash = HashText(NormalizeCode(body, lang))
	if s.Signature == "" && s.StartLine >= 1 && s.StartLine <= len(lines) {
		s.Signature = strings.TrimRight(lines[s.StartLine-1], "\r")
	}
}

// SplitLines splits text into lines without their terminators.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// SpanText returns the lines start..end (1-based, inclusive) joined by newlines.
// Out-of-range bounds are clamped.
func SpanText(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// commentStyle describes the comment and literal syntax NormalizeCode
// understands for a language.
type commentStyle struct {
	slash        bool // "//" and "/* */" comments
	hash         bool // "#" comments
	singleQuotes bool // '...' is a literal
	rawBackticks bool // `...` has no escapes
	indented     bool // leading indentation is significant
	docstrings   bool // statement-level triple-quoted strings are comments
}

func styleFor(lang Language) commentStyle {
	switch lang {
	case LanguagePython:
		return commentStyle{hash: true, singleQuotes: true, indented: true, docstrings: true}
	case LanguageRuby:
		return commentStyle{hash: true, singleQuotes: true}
	case LanguagePHP:
		return commentStyle{slash: true, hash: true, singleQuotes: true}
	case LanguageRust:
		// Lifetimes make single quotes ambiguous.
		return commentStyle{slash: true}
	case LanguageGo:
		return commentStyle{slash: true, singleQuotes: true, rawBackticks: true}
	default:
		return commentStyle{slash: true, singleQuotes: true}
	}
}

// NormalizeCode strips comments and collapses whitespace so that two spans
// differing only in formatting or commentary compare equal. String literals
// are kept verbatim. For Python each logical line also keeps its relative
// indentation depth.
func NormalizeCode(text string, lang Language) string {
	n := &normalizer{src: text, style: styleFor(lang)}
	n.run()
	return strings.TrimSpace(n.out.String())
}

// normalizer is a single-pass scanner over source bytes.
type normalizer struct {
	src   string
	style commentStyle
	pos   int
	out   strings.Builder

	space    bool  // whitespace pending before the next token
	brackets int   // open (, [ and { outside literals
	indents  []int // indentation widths of enclosing blocks
}

func (n *normalizer) run() {
	if n.style.indented {
		n.lineStart()
	}
	for n.pos < len(n.src) {
		c := n.src[n.pos]
		switch {
		case c == '\n':
			n.pos++
			if n.style.indented && n.brackets == 0 {
				n.lineStart()
			} else {
				n.space = true
			}
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			n.space = true
			n.pos++
		case c == '\\' && n.style.indented && n.peek(1) == '\n':
			// Explicit line joining.
			n.space = true
			n.pos += 2
		case n.style.hash && c == '#', n.style.slash && n.hasPrefix("//"):
			n.skipLine()
		case n.style.slash && n.hasPrefix("/*"):
			n.skipBlockComment()
		case c == '"' || c == '`' || (c == '\'' && n.style.singleQuotes):
			n.literal()
		default:
			switch c {
			case '(', '[', '{':
				n.brackets++
			case ')', ']', '}':
				if n.brackets > 0 {
					n.brackets--
				}
			}
			n.emit(n.src[n.pos : n.pos+1])
			n.pos++
		}
	}
}

// lineStart handles the start of a logical line in indentation-sensitive
// code. Blank lines, comment-only lines and docstring statements are
// skipped; otherwise the line's depth is written.
func (n *normalizer) lineStart() {
	for n.pos < len(n.src) {
		width, end := n.indentation()
		n.pos = end
		switch {
		case n.pos >= len(n.src):
			return
		case n.src[n.pos] == '\n' || n.src[n.pos] == '\r',
			n.style.hash && n.src[n.pos] == '#':
			n.nextLine()
			continue
		case n.style.docstrings && n.docstring():
			continue
		}
		n.writeDepth(width)
		return
	}
}

// indentation measures the leading whitespace at pos, expanding tabs to
// multiples of eight.
func (n *normalizer) indentation() (width, end int) {
	end = n.pos
	for end < len(n.src) {
		switch n.src[end] {
		case ' ':
			width++
		case '\t':
			width += 8 - width%8
		case '\f':
		default:
			return width, end
		}
		end++
	}
	return width, end
}

func (n *normalizer) writeDepth(width int) {
	if n.indents == nil {
		n.indents = []int{width}
	}
	for len(n.indents) > 1 && width < n.indents[len(n.indents)-1] {
		n.indents = n.indents[:len(n.indents)-1]
	}
	if width > n.indents[len(n.indents)-1] {
		n.indents = append(n.indents, width)
	}
	if n.out.Len() > 0 {
		n.out.WriteByte('\n')
	}
	n.out.WriteString(strings.Repeat("\t", len(n.indents)-1))
	n.space = false
}

// docstring skips a triple-quoted string that forms a whole statement and
// the rest of its line. It reports whether one was found.
func (n *normalizer) docstring() bool {
	var delim string
	switch {
	case n.hasPrefix(`"""`):
		delim = `"""`
	case n.hasPrefix("'''"):
		delim = "'''"
	default:
		return false
	}
	closing := strings.Index(n.src[n.pos+3:], delim)
	if closing < 0 {
		return false
	}
	end := n.pos + 3 + closing + 3
	rest := end
	for rest < len(n.src) && (n.src[rest] == ' ' || n.src[rest] == '\t' || n.src[rest] == '\r') {
		rest++
	}
	switch {
	case rest >= len(n.src):
	case n.src[rest] == '\n':
		rest++
	case n.src[rest] == '#':
		if nl := strings.IndexByte(n.src[rest:], '\n'); nl >= 0 {
			rest += nl + 1
		} else {
			rest = len(n.src)
		}
	default:
		return false
	}
	n.pos = rest
	return true
}

// literal copies a string or character literal verbatim.
func (n *normalizer) literal() {
	start := n.pos
	quote := n.src[n.pos]
	if n.style.docstrings && (n.hasPrefix(`"""`) || n.hasPrefix("'''")) {
		delim := n.src[n.pos : n.pos+3]
		end := n.pos + 3
		for end < len(n.src) && !strings.HasPrefix(n.src[end:], delim) {
			if n.src[end] == '\\' {
				end++
			}
			end++
		}
		n.pos = min(end+3, len(n.src))
		n.emit(n.src[start:n.pos])
		return
	}

	escapes := quote != '`' || !n.style.rawBackticks
	multiline := quote == '`'
	n.pos++
	for n.pos < len(n.src) {
		c := n.src[n.pos]
		if c == '\n' && !multiline {
			break
		}
		n.pos++
		if c == '\\' && escapes && n.pos < len(n.src) {
			n.pos++
			continue
		}
		if c == quote {
			break
		}
	}
	n.emit(n.src[start:n.pos])
}

func (n *normalizer) skipLine() {
	if nl := strings.IndexByte(n.src[n.pos:], '\n'); nl >= 0 {
		n.pos += nl
		return
	}
	n.pos = len(n.src)
}

// nextLine moves past the next newline.
func (n *normalizer) nextLine() {
	n.skipLine()
	if n.pos < len(n.src) {
		n.pos++
	}
}

func (n *normalizer) skipBlockComment() {
	if end := strings.Index(n.src[n.pos+2:], "*/"); end >= 0 {
		n.pos += 2 + end + 2
	} else {
		n.pos = len(n.src)
	}
	n.space = true
}

func (n *normalizer) emit(token string) {
	if n.space && n.out.Len() > 0 {
		n.out.WriteByte(' ')
	}
	n.space = false
	n.out.WriteString(token)
}

func (n *normalizer) hasPrefix(prefix string) bool {
	return strings.HasPrefix(n.src[n.pos:], prefix)
}

func (n *normalizer) peek(offset int) byte {
	if n.pos+offset < len(n.src) {
		return n.src[n.pos+offset]
	}
	return 0
}

// ComplexityLevel is a coarse, file-level complexity rating.
type ComplexityLevel string

// Complexity levels.
const (
	ComplexityLow      ComplexityLevel = "low"
	ComplexityMedium   ComplexityLevel = "medium"
	ComplexityHigh     ComplexityLevel = "high"
	ComplexityVeryHigh ComplexityLevel = "very_high"
)

// RateComplexity scores a file from its size and symbol counts.
func RateComplexity(lineCount int, symbols []Symbol) ComplexityLevel {
	var funcs, classes int
	for i := range symbols {
		switch symbols[i].Kind {
		case SymbolFunction, SymbolMethod:
			funcs++
		case SymbolClass:
			classes++
		}
	}
	score := float64(lineCount)/100 + float64(funcs) + float64(classes)*2
	switch {
	case score < 5:
		return ComplexityLow
	case score < 15:
		return ComplexityMedium
	case score < 30:
		return ComplexityHigh
	default:
		return ComplexityVeryHigh
	}
}
