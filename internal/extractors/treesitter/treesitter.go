//go:build cgo

// Package treesitter extracts symbols with tree-sitter grammars for Python,
// JavaScript, TypeScript, TSX, Java, Kotlin and Rust.
//
// Builds without cgo get a stub that reports itself unavailable, so those
// languages are handled by the generic extractor instead.
package treesitter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LanguageExtractor = (*Extractor)(nil)

// Extractor parses source with tree-sitter. A parser is created per call,
// so one Extractor is safe for concurrent use.
type Extractor struct{}

// New creates a tree-sitter extractor.
func New() *Extractor {
	return &Extractor{}
}

// IsAvailable reports whether tree-sitter was compiled in.
func IsAvailable() bool {
	return true
}

// Name returns the extractor name.
func (e *Extractor) Name() string {
	return "treesitter"
}

// Languages returns the languages with a registered grammar.
func (e *Extractor) Languages() []domain.Language {
	langs := make([]domain.Language, 0, len(grammars))
	for lang := range grammars {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Parse parses text. A tree containing syntax errors is reported as a
// failure so the caller degrades to the generic extractor.
func (e *Extractor) Parse(ctx context.Context, text string, lang domain.Language) (driven.ParsedSource, error) {
	g, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("%w: no grammar for %s", domain.ErrUnsupportedType, lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language())

	src := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", lang, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse %s: syntax errors in source", lang)
	}

	s := &source{
		src:        src,
		lang:       lang,
		grammar:    g,
		complexity: make(map[spanKey]int),
	}
	s.walk(root, nil)
	return s, nil
}

type spanKey struct {
	start, end int
}

type scope struct {
	name string
	kind domain.SymbolKind
}

// source is the parsed capability set. Complexity is computed during the
// walk because nodes do not outlive the tree.
type source struct {
	src        []byte
	lang       domain.Language
	grammar    grammar
	functions  []domain.Symbol
	classes    []domain.Symbol
	imports    []domain.Symbol
	complexity map[spanKey]int
}

func (s *source) FindFunctions() []domain.Symbol { return s.functions }
func (s *source) FindClasses() []domain.Symbol   { return s.classes }
func (s *source) FindImports() []domain.Symbol   { return s.imports }

// EstimateComplexity returns 1 + the decision nodes counted for the span.
func (s *source) EstimateComplexity(sym domain.Symbol) int {
	if c, ok := s.complexity[spanKey{sym.StartLine, sym.EndLine}]; ok {
		return c
	}
	return 1
}

func (s *source) walk(n *sitter.Node, scopes []scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		typ := child.Type()

		switch {
		case s.grammar.imports[typ]:
			s.addImport(child)

		case s.grammar.classes[typ]:
			sym, ok := s.symbol(child, domain.SymbolClass, className(child, s.src), scopes)
			if !ok {
				s.walk(child, scopes)
				continue
			}
			s.classes = append(s.classes, sym)
			s.walk(child, append(scopes, scope{name: sym.QualifiedName(), kind: domain.SymbolClass}))

		case s.grammar.functions[typ]:
			sym, ok := s.symbol(child, domain.SymbolFunction, functionName(child, s.src), scopes)
			if !ok {
				s.walk(child, scopes)
				continue
			}
			s.functions = append(s.functions, sym)
			s.walk(child, append(scopes, scope{name: sym.QualifiedName(), kind: sym.Kind}))

		case typ == "variable_declarator":
			value := child.ChildByFieldName("value")
			if value == nil || !arrowValueTypes[value.Type()] {
				s.walk(child, scopes)
				continue
			}
			// Span the whole declaration so the const/let keyword is included.
			span := child
			if p := child.Parent(); p != nil && (p.Type() == "lexical_declaration" || p.Type() == "variable_declaration") {
				span = p
			}
			name := ""
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(s.src)
			}
			sym, ok := s.symbolSpan(span, value, domain.SymbolFunction, name, scopes)
			if !ok {
				continue
			}
			s.functions = append(s.functions, sym)
			s.walk(value, append(scopes, scope{name: sym.QualifiedName(), kind: sym.Kind}))

		default:
			s.walk(child, scopes)
		}
	}
}

func (s *source) symbol(n *sitter.Node, kind domain.SymbolKind, name string, scopes []scope) (domain.Symbol, bool) {
	return s.symbolSpan(n, n, kind, name, scopes)
}

// symbolSpan builds a symbol whose span comes from spanNode and whose
// complexity is counted over body.
func (s *source) symbolSpan(spanNode, body *sitter.Node, kind domain.SymbolKind, name string, scopes []scope) (domain.Symbol, bool) {
	if name == "" {
		return domain.Symbol{}, false
	}
	start, end := lines(spanNode)
	sym := domain.Symbol{
		Kind:      kind,
		Name:      name,
		StartLine: start,
		EndLine:   end,
	}
	if len(scopes) > 0 {
		parent := scopes[len(scopes)-1]
		sym.Parent = parent.name
		if kind == domain.SymbolFunction && parent.kind == domain.SymbolClass {
			sym.Kind = domain.SymbolMethod
		}
	}
	if kind == domain.SymbolFunction && spanNode.Type() == "method_definition" {
		sym.Kind = domain.SymbolMethod
	}
	s.complexity[spanKey{start, end}] = 1 + s.countDecisions(body)
	return sym, true
}

func (s *source) addImport(n *sitter.Node) {
	name := importName(n, s.src, s.lang)
	if name == "" {
		return
	}
	start, end := lines(n)
	s.imports = append(s.imports, domain.Symbol{
		Kind:      domain.SymbolImport,
		Name:      name,
		StartLine: start,
		EndLine:   end,
	})
}

// countDecisions counts decision nodes under n. Binary expressions only
// count for short-circuit operators.
func (s *source) countDecisions(n *sitter.Node) int {
	count := 0
	var visit func(*sitter.Node)
	visit = func(node *sitter.Node) {
		typ := node.Type()
		if s.grammar.decisions[typ] {
			if typ != "binary_expression" || isShortCircuit(node, s.src) {
				count++
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			if c := node.Child(i); c != nil {
				visit(c)
			}
		}
	}
	visit(n)
	return count
}

func isShortCircuit(n *sitter.Node, src []byte) bool {
	if op := n.ChildByFieldName("operator"); op != nil {
		text := op.Content(src)
		return text == "&&" || text == "||"
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || c.IsNamed() {
			continue
		}
		text := c.Content(src)
		if text == "&&" || text == "||" {
			return true
		}
	}
	return false
}

// lines returns the 1-based inclusive line span of n.
func lines(n *sitter.Node) (int, int) {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	if n.EndPoint().Column == 0 && end > start {
		end--
	}
	return start, end
}

func functionName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	if n.Type() == "constructor_declaration" {
		return "<init>"
	}
	return firstChildOfType(n, src, "simple_identifier", "identifier")
}

func className(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	if n.Type() == "impl_item" {
		if typ := n.ChildByFieldName("type"); typ != nil {
			return baseTypeName(typ.Content(src))
		}
	}
	return firstChildOfType(n, src, "type_identifier", "simple_identifier", "identifier")
}

func importName(n *sitter.Node, src []byte, lang domain.Language) string {
	switch lang {
	case domain.LanguagePython:
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			return mod.Content(src)
		}
		if name := n.ChildByFieldName("name"); name != nil {
			if alias := name.ChildByFieldName("name"); alias != nil && name.Type() == "aliased_import" {
				return alias.Content(src)
			}
			return name.Content(src)
		}
	case domain.LanguageJavaScript, domain.LanguageTypeScript, domain.LanguageTSX:
		if source := n.ChildByFieldName("source"); source != nil {
			return strings.Trim(source.Content(src), `'"`+"`")
		}
	case domain.LanguageRust:
		if arg := n.ChildByFieldName("argument"); arg != nil {
			return arg.Content(src)
		}
	}
	// Java import_declaration and Kotlin import_header: strip keywords.
	text := strings.TrimSpace(n.Content(src))
	text = strings.TrimPrefix(text, "import")
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "static"))
	return strings.TrimSpace(strings.TrimSuffix(text, ";"))
}

func firstChildOfType(n *sitter.Node, src []byte, types ...string) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		for _, t := range types {
			if c.Type() == t {
				return c.Content(src)
			}
		}
	}
	return ""
}

// baseTypeName strips generic arguments and paths from a Rust type.
func baseTypeName(t string) string {
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndex(t, "::"); i >= 0 {
		t = t[i+2:]
	}
	return strings.TrimSpace(t)
}
