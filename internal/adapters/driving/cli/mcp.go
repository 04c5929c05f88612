package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/testctx/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so coding assistants can ingest
files, inspect symbol changes and request context bundles for test
generation.

By default the server communicates over stdio. Use --port to serve
streamable HTTP instead, for example to test with MCP Inspector.

Tools:
  ingest_file         ingest one file's content
  get_change_record   symbol changes between versions of a document
  assemble_context    ranked, size-bounded context for a query
  search_symbols      find symbols by name and kind

Examples:
  # Stdio mode
  testctx mcp serve

  # HTTP mode
  testctx mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "testctx": {
        "command": "/path/to/testctx",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Context: contextService,
		Ingest:  ingestService,
		Changes: changeService,
		Catalog: catalogService,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		cmd.PrintErrf("MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
