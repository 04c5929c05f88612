package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/testctx/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for testctx resources.
	uriScheme = "testctx://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for index statistics.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Counts of documents, versions, chunks and symbols",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	// Template for a document's version history.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "history/{+key}",
		Name:        "document-history",
		Description: "Version history of a document, keyed by module::path",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)
}

// handleStatsResource returns catalogue statistics.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Catalog == nil {
		return jsonResult(req.Params.URI, "{}"), nil
	}

	stats, err := s.ports.Catalog.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

// handleHistoryResource returns the version records of one document,
// without their full text.
func (s *Server) handleHistoryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Changes == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	id, ok := extractDocumentKey(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	records, err := s.ports.Changes.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	if len(records) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	type versionInfo struct {
		Version     int    `json:"version"`
		ContentHash string `json:"content_hash"`
		Language    string `json:"language"`
		Symbols     int    `json:"symbols"`
		CommittedAt string `json:"committed_at"`
	}

	infos := make([]versionInfo, len(records))
	for i := range records {
		infos[i] = versionInfo{
			Version:     records[i].Version,
			ContentHash: records[i].ContentHash,
			Language:    string(records[i].Language),
			Symbols:     len(records[i].Symbols),
			CommittedAt: records[i].CommittedAt.UTC().Format(time.RFC3339),
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling history: %w", err)
	}
	return jsonResult(req.Params.URI, string(data)), nil
}

func jsonResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		}},
	}
}

// extractDocumentKey parses a URI like testctx://history/{module::path}.
// The key may be percent-encoded.
func extractDocumentKey(uri string) (domain.DocumentID, bool) {
	const prefix = uriScheme + "history/"

	if !strings.HasPrefix(uri, prefix) {
		return domain.DocumentID{}, false
	}

	key, err := url.PathUnescape(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return domain.DocumentID{}, false
	}
	id, err := domain.ParseDocumentKey(key)
	if err != nil {
		return domain.DocumentID{}, false
	}
	return id, true
}
