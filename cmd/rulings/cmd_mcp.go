package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	rulingsmcp "github.com/ajitpratap0/rulings/internal/mcp"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/rulings"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  ruling          look up the best-matching ruling for a query
  get_ruling      fetch one ruling by key
  search_rulings  filter rulings by key, title, tag, archetype or format
  propose_ruling  queue a ruling for moderator approval
  stats           entry count, pending suggestions and top keys

If the store is unavailable at startup the server still starts;
individual tool calls will return MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			var (
				svc   *rulings.Service
				queue *moderation.Queue
			)
			st, svcOut, storeErr := openAll(cmd.Context(), logger, "mcp")
			if storeErr != nil {
				// Tool calls will return per-call errors rather than crashing.
				logger.Error("mcp: failed to open store; tool calls will fail", "error", storeErr)
			} else {
				defer func() { _ = st.Close() }()
				svc = svcOut
				queue = newQueue(st, logger)
			}

			srv := rulingsmcp.NewServer(svc, queue, cfg.MCP.Budget, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: rulings MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
