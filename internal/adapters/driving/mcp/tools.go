package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

// IngestInput is the input schema for the ingest_file tool.
type IngestInput struct {
	Path     string `json:"path" jsonschema:"repository-relative file path"`
	Module   string `json:"module,omitempty" jsonschema:"logical module the file belongs to"`
	Text     string `json:"text" jsonschema:"full file content"`
	Language string `json:"language,omitempty" jsonschema:"language tag overriding extension detection"`
}

// IngestOutput is the output schema for the ingest_file tool.
type IngestOutput struct {
	DocumentID    string   `json:"document_id"`
	Version       int      `json:"version"`
	Created       bool     `json:"created"`
	ParseDegraded bool     `json:"parse_degraded"`
	Symbols       int      `json:"symbols"`
	Chunks        int      `json:"chunks"`
	Embedded      int      `json:"embedded"`
	Complexity    string   `json:"complexity"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ChangeInput is the input schema for the get_change_record tool.
type ChangeInput struct {
	Path        string `json:"path" jsonschema:"repository-relative file path"`
	Module      string `json:"module,omitempty" jsonschema:"logical module the file belongs to"`
	FromVersion int    `json:"from_version,omitempty" jsonschema:"older version; with to_version compares two arbitrary versions"`
	ToVersion   int    `json:"to_version,omitempty" jsonschema:"newer version"`
}

// SymbolOutput is a symbol in tool output.
type SymbolOutput struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Parent     string `json:"parent,omitempty"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Signature  string `json:"signature,omitempty"`
	Complexity int    `json:"complexity"`
}

// ModifiedOutput is a modified symbol in tool output.
type ModifiedOutput struct {
	Symbol       SymbolOutput `json:"symbol"`
	Severity     string       `json:"severity"`
	LinesAdded   int          `json:"lines_added"`
	LinesRemoved int          `json:"lines_removed"`
}

// ChangeOutput is the output schema for the get_change_record tool.
type ChangeOutput struct {
	Found        bool             `json:"found"`
	DocumentID   string           `json:"document_id"`
	FromVersion  int              `json:"from_version,omitempty"`
	ToVersion    int              `json:"to_version,omitempty"`
	Severity     string           `json:"severity,omitempty"`
	LinesAdded   int              `json:"lines_added"`
	LinesRemoved int              `json:"lines_removed"`
	Added        []SymbolOutput   `json:"added"`
	Removed      []SymbolOutput   `json:"removed"`
	Modified     []ModifiedOutput `json:"modified"`
}

// ContextInput is the input schema for the assemble_context tool.
type ContextInput struct {
	Query    string `json:"query" jsonschema:"what the tests should cover"`
	Path     string `json:"path,omitempty" jsonschema:"scope retrieval to this file"`
	Module   string `json:"module,omitempty" jsonschema:"module of the scoped file"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"character budget for the bundle"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"candidates retrieved before truncation"`
}

// ContextItemOutput is one chunk of an assembled bundle.
type ContextItemOutput struct {
	DocumentID string  `json:"document_id"`
	Version    int     `json:"version"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Score      float64 `json:"score"`
	Boosted    bool    `json:"boosted,omitempty"`
	Content    string  `json:"content"`
}

// ContextOutput is the output schema for the assemble_context tool.
type ContextOutput struct {
	Mode       string              `json:"mode"`
	Truncated  bool                `json:"truncated"`
	TotalChars int                 `json:"total_chars"`
	MaxChars   int                 `json:"max_chars"`
	Candidates int                 `json:"candidates"`
	Items      []ContextItemOutput `json:"items"`
	Change     *ChangeOutput       `json:"change,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// SymbolSearchInput is the input schema for the search_symbols tool.
type SymbolSearchInput struct {
	Name string `json:"name" jsonschema:"case-insensitive substring of the symbol name"`
	Kind string `json:"kind,omitempty" jsonschema:"function, class, method or import"`
}

// SymbolMatchOutput is one symbol search hit.
type SymbolMatchOutput struct {
	DocumentID string       `json:"document_id"`
	Version    int          `json:"version"`
	Symbol     SymbolOutput `json:"symbol"`
}

// SymbolSearchOutput is the output schema for the search_symbols tool.
type SymbolSearchOutput struct {
	Matches []SymbolMatchOutput `json:"matches"`
	Count   int                 `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_file",
		Description: "Ingest a source file, recording a new version when its content changed",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_change_record",
		Description: "Describe symbol-level changes between versions of a file",
	}, s.handleChangeRecord)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "assemble_context",
		Description: "Retrieve ranked, size-bounded source context for writing tests",
	}, s.handleAssembleContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_symbols",
		Description: "Find functions, classes, methods and imports by name",
	}, s.handleSearchSymbols)
}

// handleIngest handles the ingest_file tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if s.ports.Ingest == nil {
		return nil, IngestOutput{}, fmt.Errorf("ingest_file: %w", errNotConfigured)
	}

	result, err := s.ports.Ingest.Ingest(ctx, domain.IngestRequest{
		Path:         input.Path,
		Module:       input.Module,
		Text:         input.Text,
		LanguageHint: input.Language,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{
		DocumentID:    result.DocumentID.String(),
		Version:       result.Version,
		Created:       result.Created,
		ParseDegraded: result.ParseDegraded,
		Symbols:       result.Symbols,
		Chunks:        result.Chunks,
		Embedded:      result.Embedded,
		Complexity:    string(result.Complexity),
		Warnings:      warningStrings(result.Warnings),
	}, nil
}

// handleChangeRecord handles the get_change_record tool invocation.
func (s *Server) handleChangeRecord(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChangeInput,
) (*mcp.CallToolResult, ChangeOutput, error) {
	if s.ports.Changes == nil {
		return nil, ChangeOutput{}, fmt.Errorf("get_change_record: %w", errNotConfigured)
	}

	id, err := domain.NewDocumentID(input.Path, input.Module)
	if err != nil {
		return nil, ChangeOutput{}, err
	}

	var record *domain.ChangeRecord
	if input.FromVersion > 0 && input.ToVersion > 0 {
		record, err = s.ports.Changes.CompareVersions(ctx, id, input.FromVersion, input.ToVersion)
	} else {
		record, err = s.ports.Changes.GetChangeRecord(ctx, id)
	}
	if err != nil {
		return nil, ChangeOutput{}, err
	}

	if record == nil {
		return nil, ChangeOutput{DocumentID: id.String()}, nil
	}
	return nil, *toChangeOutput(record), nil
}

// handleAssembleContext handles the assemble_context tool invocation.
func (s *Server) handleAssembleContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ContextInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	req := domain.ContextRequest{
		Query:    input.Query,
		MaxChars: input.MaxChars,
		TopK:     input.TopK,
	}
	if input.Path != "" {
		id, err := domain.NewDocumentID(input.Path, input.Module)
		if err != nil {
			return nil, ContextOutput{}, err
		}
		req.Document = &id
	}

	bundle, err := s.ports.Context.AssembleContext(ctx, req)
	if err != nil {
		return nil, ContextOutput{}, err
	}

	output := ContextOutput{
		Mode:       string(bundle.Mode),
		Truncated:  bundle.Truncated,
		TotalChars: bundle.TotalChars,
		MaxChars:   bundle.MaxChars,
		Candidates: bundle.Candidates,
		Items:      make([]ContextItemOutput, len(bundle.Items)),
		Warnings:   warningStrings(bundle.Warnings),
	}
	for i := range bundle.Items {
		item := &bundle.Items[i]
		output.Items[i] = ContextItemOutput{
			DocumentID: item.Chunk.DocumentID.String(),
			Version:    item.Chunk.Version,
			StartLine:  item.Chunk.StartLine,
			EndLine:    item.Chunk.EndLine,
			Score:      item.Score,
			Boosted:    item.Boosted,
			Content:    item.Chunk.Content(),
		}
	}
	if bundle.Change != nil {
		output.Change = toChangeOutput(bundle.Change)
	}

	return nil, output, nil
}

// handleSearchSymbols handles the search_symbols tool invocation.
func (s *Server) handleSearchSymbols(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SymbolSearchInput,
) (*mcp.CallToolResult, SymbolSearchOutput, error) {
	if s.ports.Catalog == nil {
		return nil, SymbolSearchOutput{}, fmt.Errorf("search_symbols: %w", errNotConfigured)
	}

	matches, err := s.ports.Catalog.FindSymbols(ctx, input.Name, domain.SymbolKind(input.Kind))
	if err != nil {
		return nil, SymbolSearchOutput{}, err
	}

	output := SymbolSearchOutput{
		Matches: make([]SymbolMatchOutput, len(matches)),
		Count:   len(matches),
	}
	for i := range matches {
		output.Matches[i] = SymbolMatchOutput{
			DocumentID: matches[i].DocumentID.String(),
			Version:    matches[i].Version,
			Symbol:     toSymbolOutput(matches[i].Symbol),
		}
	}

	return nil, output, nil
}

func toChangeOutput(record *domain.ChangeRecord) *ChangeOutput {
	out := &ChangeOutput{
		Found:        true,
		DocumentID:   record.DocumentID.String(),
		FromVersion:  record.FromVersion,
		ToVersion:    record.ToVersion,
		Severity:     string(record.Severity),
		LinesAdded:   record.Lines.Added,
		LinesRemoved: record.Lines.Removed,
		Added:        toSymbolOutputs(record.Added),
		Removed:      toSymbolOutputs(record.Removed),
		Modified:     make([]ModifiedOutput, len(record.Modified)),
	}
	for i, m := range record.Modified {
		out.Modified[i] = ModifiedOutput{
			Symbol:       toSymbolOutput(m.New),
			Severity:     string(m.Severity),
			LinesAdded:   m.Lines.Added,
			LinesRemoved: m.Lines.Removed,
		}
	}
	return out
}

func toSymbolOutputs(symbols []domain.Symbol) []SymbolOutput {
	out := make([]SymbolOutput, len(symbols))
	for i, sym := range symbols {
		out[i] = toSymbolOutput(sym)
	}
	return out
}

func toSymbolOutput(sym domain.Symbol) SymbolOutput {
	return SymbolOutput{
		Kind:       string(sym.Kind),
		Name:       sym.Name,
		Parent:     sym.Parent,
		StartLine:  sym.StartLine,
		EndLine:    sym.EndLine,
		Signature:  sym.Signature,
		Complexity: sym.Complexity,
	}
}

func warningStrings(warnings []domain.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}
