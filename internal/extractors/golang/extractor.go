// Package golang extracts symbols from Go source using the standard go/ast parser.
package golang

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.LanguageExtractor = (*Extractor)(nil)

// Extractor parses Go files.
type Extractor struct{}

// New creates a Go extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name returns the extractor name.
func (e *Extractor) Name() string {
	return "golang"
}

// Languages returns the language tags handled by this extractor.
func (e *Extractor) Languages() []domain.Language {
	return []domain.Language{domain.LanguageGo}
}

// Parse parses text as a Go file. Any syntax error fails the parse so the
// caller can degrade to the generic extractor.
func (e *Extractor) Parse(ctx context.Context, text string, _ domain.Language) (driven.ParsedSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", text, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse go source: %w", err)
	}

	src := &source{fset: fset, bodies: make(map[spanKey]ast.Node)}
	src.collect(file)
	return src, nil
}

type spanKey struct {
	start, end int
}

// source is the parsed capability set for one Go file.
type source struct {
	fset      *token.FileSet
	functions []domain.Symbol
	classes   []domain.Symbol
	imports   []domain.Symbol
	bodies    map[spanKey]ast.Node
}

func (s *source) FindFunctions() []domain.Symbol { return s.functions }
func (s *source) FindClasses() []domain.Symbol   { return s.classes }
func (s *source) FindImports() []domain.Symbol   { return s.imports }

// EstimateComplexity counts decision points in the declaration spanning sym.
func (s *source) EstimateComplexity(sym domain.Symbol) int {
	node, ok := s.bodies[spanKey{sym.StartLine, sym.EndLine}]
	if !ok {
		return 1
	}
	return 1 + countDecisions(node)
}

func (s *source) line(pos token.Pos) int {
	return s.fset.Position(pos).Line
}

func (s *source) collect(file *ast.File) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			s.addFunc(d)
		case *ast.GenDecl:
			switch d.Tok {
			case token.IMPORT:
				s.addImports(d)
			case token.TYPE:
				s.addTypes(d)
			}
		}
	}
}

func (s *source) addFunc(d *ast.FuncDecl) {
	sym := domain.Symbol{
		Kind:      domain.SymbolFunction,
		Name:      d.Name.Name,
		StartLine: s.line(d.Pos()),
		EndLine:   s.line(d.End()),
	}
	if recv := receiverType(d); recv != "" {
		sym.Kind = domain.SymbolMethod
		sym.Parent = recv
	}
	s.bodies[spanKey{sym.StartLine, sym.EndLine}] = d
	s.functions = append(s.functions, sym)
}

func (s *source) addImports(d *ast.GenDecl) {
	for _, spec := range d.Specs {
		is, ok := spec.(*ast.ImportSpec)
		if !ok {
			continue
		}
		path, err := strconv.Unquote(is.Path.Value)
		if err != nil {
			path = is.Path.Value
		}
		s.imports = append(s.imports, domain.Symbol{
			Kind:      domain.SymbolImport,
			Name:      path,
			StartLine: s.line(is.Pos()),
			EndLine:   s.line(is.End()),
		})
	}
}

func (s *source) addTypes(d *ast.GenDecl) {
	for _, spec := range d.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		// A lone spec covers the whole declaration so the "type" keyword
		// stays inside the span.
		var start, end token.Pos = ts.Pos(), ts.End()
		if len(d.Specs) == 1 {
			start, end = d.Pos(), d.End()
		}
		sym := domain.Symbol{
			Kind:      domain.SymbolClass,
			Name:      ts.Name.Name,
			StartLine: s.line(start),
			EndLine:   s.line(end),
		}
		s.bodies[spanKey{sym.StartLine, sym.EndLine}] = ts
		s.classes = append(s.classes, sym)
	}
}

// receiverType returns the receiver's base type name, or "" for functions.
func receiverType(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	expr := d.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

// countDecisions counts branch, loop and boolean-operator nodes under n.
func countDecisions(n ast.Node) int {
	count := 0
	ast.Inspect(n, func(node ast.Node) bool {
		switch x := node.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			count++
		case *ast.CaseClause:
			if x.List != nil {
				count++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				count++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				count++
			}
		}
		return true
	})
	return count
}
