// Package mcp provides an MCP (Model Context Protocol) server adapter for testctx.
// It lets AI assistants ingest source files, inspect change records and pull
// ranked context for test generation.
package mcp

import "errors"

// ErrMissingContextService is returned when the context service is not provided.
var ErrMissingContextService = errors.New("mcp: context service is required")

// errNotConfigured is returned by tools whose backing port is nil.
var errNotConfigured = errors.New("mcp: service not configured")
