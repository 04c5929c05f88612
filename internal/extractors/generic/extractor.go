// Package generic provides the line-based fallback symbol extractor.
//
// It scans source text with per-language regular expressions and derives
// spans from brace balance or indentation. It never fails: text it cannot
// make sense of simply yields fewer symbols. The registry uses it for
// unknown language tags and whenever a language-specific parser fails.
package generic

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LanguageExtractor = (*Extractor)(nil)

// openLookahead is how many lines past a header the scanner looks for the
// opening brace before treating the header as a one-line declaration.
const openLookahead = 3

var statementPrefixRe = regexp.MustCompile(`^\s*(?:return|throw|else|new|await|yield|case|delete)\b`)

// Extractor is the generic regex/heuristic extractor.
type Extractor struct{}

// New creates a generic extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name returns the extractor name.
func (e *Extractor) Name() string {
	return "generic"
}

// Languages returns nil; the generic extractor is only used as a fallback.
func (e *Extractor) Languages() []domain.Language {
	return nil
}

// Parse scans text line by line. It only fails on a cancelled context.
func (e *Extractor) Parse(ctx context.Context, text string, lang domain.Language) (driven.ParsedSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := &source{
		lines: domain.SplitLines(text),
		lang:  lang,
		prof:  profileFor(lang),
	}
	src.scan()
	return src, nil
}

// source is the scanned capability set for one file.
type source struct {
	lines     []string
	lang      domain.Language
	prof      profile
	functions []domain.Symbol
	classes   []domain.Symbol
	imports   []domain.Symbol
}

func (s *source) FindFunctions() []domain.Symbol { return s.functions }
func (s *source) FindClasses() []domain.Symbol   { return s.classes }
func (s *source) FindImports() []domain.Symbol   { return s.imports }

// EstimateComplexity counts decision keywords and operators in the symbol's
// span after comments are stripped.
func (s *source) EstimateComplexity(sym domain.Symbol) int {
	body := domain.NormalizeCode(domain.SpanText(s.lines, sym.StartLine, sym.EndLine), s.lang)
	return 1 + len(decisionRe.FindAllStringIndex(body, -1))
}

func (s *source) scan() {
	var scoped []domain.Symbol

	for i, line := range s.lines {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}

		if name, _, ok := matchFirst(s.prof.imports, line); ok {
			s.imports = append(s.imports, domain.Symbol{
				Kind:      domain.SymbolImport,
				Name:      name,
				StartLine: lineNo,
				EndLine:   lineNo,
			})
			continue
		}

		if name, _, ok := matchFirst(s.prof.classes, line); ok {
			scoped = append(scoped, domain.Symbol{
				Kind:      domain.SymbolClass,
				Name:      name,
				StartLine: lineNo,
				EndLine:   s.endLine(i),
			})
			continue
		}

		if statementPrefixRe.MatchString(line) {
			continue
		}
		if name, parent, ok := matchFirst(s.prof.functions, line); ok {
			sym := domain.Symbol{
				Kind:      domain.SymbolFunction,
				Name:      name,
				StartLine: lineNo,
				EndLine:   s.endLine(i),
			}
			if parent != "" {
				sym.Kind = domain.SymbolMethod
				sym.Parent = parent
			}
			scoped = append(scoped, sym)
		}
	}

	assignParents(scoped)

	for _, sym := range scoped {
		if sym.Kind == domain.SymbolClass {
			s.classes = append(s.classes, sym)
		} else {
			s.functions = append(s.functions, sym)
		}
	}
}

// endLine returns the last line (1-based) of the symbol whose header is at
// index i.
func (s *source) endLine(i int) int {
	if s.prof.block == blockIndent {
		return s.indentEnd(i)
	}
	return s.braceEnd(i)
}

// braceEnd follows brace depth from the header until it returns to zero.
func (s *source) braceEnd(i int) int {
	depth := 0
	opened := false
	for j := i; j < len(s.lines); j++ {
		line := stripStrings(s.lines[j], s.lang != domain.LanguageRust)
		for _, r := range line {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return j + 1
		}
		if !opened {
			trimmed := strings.TrimSpace(line)
			if strings.HasSuffix(trimmed, ";") || j-i >= openLookahead {
				return i + 1
			}
		}
	}
	if opened {
		return len(s.lines)
	}
	return i + 1
}

// indentEnd returns the last non-blank line indented deeper than the header.
// A trailing "end" at the header's indentation is included.
func (s *source) indentEnd(i int) int {
	base := indentOf(s.lines[i])
	end := i + 1
	for j := i + 1; j < len(s.lines); j++ {
		line := s.lines[j]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indentOf(line) <= base {
			if indentOf(line) == base && strings.TrimSpace(line) == "end" {
				return j + 1
			}
			break
		}
		end = j + 1
	}
	return end
}

// assignParents sets Parent to the innermost enclosing class or function.
// A function directly inside a class becomes a method.
func assignParents(symbols []domain.Symbol) {
	sort.SliceStable(symbols, func(a, b int) bool {
		if symbols[a].StartLine != symbols[b].StartLine {
			return symbols[a].StartLine < symbols[b].StartLine
		}
		return symbols[a].EndLine > symbols[b].EndLine
	})

	var stack []domain.Symbol
	for i := range symbols {
		sym := &symbols[i]
		for len(stack) > 0 && stack[len(stack)-1].EndLine < sym.StartLine {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 && sym.Parent == "" {
			encl := stack[len(stack)-1]
			if encl.Contains(*sym) && encl.StartLine < sym.StartLine {
				sym.Parent = encl.QualifiedName()
				if encl.Kind == domain.SymbolClass && sym.Kind == domain.SymbolFunction {
					sym.Kind = domain.SymbolMethod
				}
			}
		}
		if sym.EndLine > sym.StartLine {
			stack = append(stack, *sym)
		}
	}
}

// matchFirst returns the name (and parent, if captured) from the first
// pattern that matches line with a non-reserved name.
func matchFirst(patterns []*regexp.Regexp, line string) (name, parent string, ok bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx := re.SubexpIndex("name")
		if idx < 0 || m[idx] == "" {
			continue
		}
		if _, reserved := reservedNames[m[idx]]; reserved {
			continue
		}
		if p := re.SubexpIndex("parent"); p >= 0 {
			parent = m[p]
		}
		return m[idx], parent, true
	}
	return "", "", false
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "/*") ||
		strings.HasPrefix(t, "*") || (strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "#include"))
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// stripStrings blanks out quoted literals and trailing line comments so
// braces inside them do not affect depth. Single quotes are ignored when
// singleQuotes is false (Rust lifetimes).
func stripStrings(line string, singleQuotes bool) string {
	var b strings.Builder
	b.Grow(len(line))
	var quote rune
	escaped := false
	prev := rune(0)
	for _, r := range line {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			b.WriteRune(' ')
			continue
		}
		switch {
		case r == '"' || r == '`' || (singleQuotes && r == '\''):
			quote = r
			b.WriteRune(' ')
		case r == '/' && prev == '/':
			return b.String()
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}
