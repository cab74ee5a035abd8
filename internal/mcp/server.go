// Package mcp implements the Model Context Protocol server for rulings.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/rulings/internal/matcher"
	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/normalizer"
	"github.com/ajitpratap0/rulings/internal/rulings"
	"github.com/ajitpratap0/rulings/internal/store"
	"github.com/ajitpratap0/rulings/pkg/tokenizer"
	"github.com/ajitpratap0/rulings/pkg/xmlutil"
)

const (
	// defaultBudget is the default token budget for ruling responses.
	defaultBudget = 2000

	// defaultSearchLimit is the default number of results for search_rulings.
	defaultSearchLimit = 20

	// defaultStatsTop is the default number of top keys in stats.
	defaultStatsTop = 10
)

// Server wraps an MCPServer with rulings dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	svc    *rulings.Service
	queue  *moderation.Queue
	budget int
	logger *slog.Logger
}

// NewServer creates a new MCP server. If svc or queue are nil, the
// corresponding tool calls return an error response instead of panicking.
func NewServer(svc *rulings.Service, queue *moderation.Queue, budget int, logger *slog.Logger) *Server {
	if budget <= 0 {
		budget = defaultBudget
	}
	s := &Server{
		svc:    svc,
		queue:  queue,
		budget: budget,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"rulings",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildRulingTool(), s.handleRuling)
	mcpSrv.AddTool(buildGetRulingTool(), s.handleGetRuling)
	mcpSrv.AddTool(buildSearchTool(), s.handleSearch)
	mcpSrv.AddTool(buildProposeTool(), s.handlePropose)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleRuling is the exported handler for the "ruling" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleRuling(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRuling(ctx, req)
}

// HandleGetRuling is the exported handler for the "get_ruling" tool.
func (s *Server) HandleGetRuling(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGetRuling(ctx, req)
}

// HandleSearch is the exported handler for the "search_rulings" tool.
func (s *Server) HandleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearch(ctx, req)
}

// HandlePropose is the exported handler for the "propose_ruling" tool.
func (s *Server) HandlePropose(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handlePropose(ctx, req)
}

// HandleStats is the exported handler for the "stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// formatHit renders one matched ruling as an escaped XML block.
func formatHit(h matcher.Hit) string {
	return xmlutil.Element("ruling", h.Entry.Content,
		xmlutil.Attr{Name: "key", Value: h.Entry.Key},
		xmlutil.Attr{Name: "title", Value: h.Entry.Title},
		xmlutil.Attr{Name: "tier", Value: h.Tier},
		xmlutil.Attr{Name: "tags", Value: strings.Join(h.Entry.Tags, ",")},
	)
}

// optionalString returns a pointer to the argument when it was supplied.
func optionalString(req mcpgo.CallToolRequest, name string) *string {
	args := req.GetArguments()
	if _, ok := args[name]; !ok {
		return nil
	}
	v := req.GetString(name, "")
	return &v
}

// --- tool definitions ---

func buildRulingTool() mcpgo.Tool {
	return mcpgo.NewTool("ruling",
		mcpgo.WithDescription("Look up a ruling by free-text query. Returns the best match and other candidates as XML blocks within a token budget, plus close spellings when nothing matches."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("Topic to look up, e.g. damage step, miss timing, ash blossom"),
		),
		mcpgo.WithNumber("budget",
			mcpgo.Description("Token budget for returned context (default: server setting)"),
		),
	)
}

func buildGetRulingTool() mcpgo.Tool {
	return mcpgo.NewTool("get_ruling",
		mcpgo.WithDescription("Fetch one ruling by its exact key."),
		mcpgo.WithString("key",
			mcpgo.Required(),
			mcpgo.Description("The ruling key"),
		),
	)
}

func buildSearchTool() mcpgo.Tool {
	return mcpgo.NewTool("search_rulings",
		mcpgo.WithDescription("List rulings whose fields contain the given substrings (case-insensitive). All supplied filters must match."),
		mcpgo.WithString("key", mcpgo.Description("Substring of the key")),
		mcpgo.WithString("title", mcpgo.Description("Substring of the title")),
		mcpgo.WithString("tag", mcpgo.Description("Substring of any tag")),
		mcpgo.WithString("archetype", mcpgo.Description("Substring of the archetype")),
		mcpgo.WithString("format", mcpgo.Description("Substring of the format")),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 20)"),
		),
	)
}

func buildProposeTool() mcpgo.Tool {
	return mcpgo.NewTool("propose_ruling",
		mcpgo.WithDescription("Propose a new or corrected ruling. It is queued for moderator approval and does not change the knowledge base until approved."),
		mcpgo.WithString("key",
			mcpgo.Required(),
			mcpgo.Description("The ruling key"),
		),
		mcpgo.WithString("content",
			mcpgo.Required(),
			mcpgo.Description("The ruling text"),
		),
		mcpgo.WithString("title", mcpgo.Description("Display title (default: the key)")),
		mcpgo.WithString("tags", mcpgo.Description("Comma-separated tags")),
		mcpgo.WithString("archetype", mcpgo.Description("Archetype or category")),
		mcpgo.WithString("format", mcpgo.Description("Game format")),
		mcpgo.WithString("author_id", mcpgo.Description("Identifier of the proposer")),
		mcpgo.WithString("author_display_name", mcpgo.Description("Display name of the proposer")),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("stats",
		mcpgo.WithDescription("Knowledge base statistics: entry count, pending suggestions, most looked-up keys."),
		mcpgo.WithNumber("top",
			mcpgo.Description("Number of top keys to return (default: 10)"),
		),
	)
}

// --- tool handlers ---

// handleRuling runs a lookup and packs the hits into the token budget.
func (s *Server) handleRuling(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("lookup service is unavailable"), nil
	}

	query := req.GetString("query", "")
	if normalizer.Key(query) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}
	budget := req.GetInt("budget", s.budget)
	if budget <= 0 {
		budget = s.budget
	}

	res, err := s.svc.Lookup(ctx, query)
	if err != nil {
		return mcpgo.NewToolResultErrorf("lookup failed: %s", err.Error()), nil
	}

	var blocks []string
	if res.Best != nil {
		blocks = append(blocks, formatHit(*res.Best))
	}
	for _, h := range res.Others {
		blocks = append(blocks, formatHit(h))
	}
	output, count := tokenizer.PackWithBudget(blocks, budget)

	s.logger.Debug("mcp: ruling", "query", query, "found", res.Found(), "count", count)

	result := map[string]any{
		"found":       res.Found(),
		"context":     output,
		"count":       count,
		"suggestions": res.Suggestions,
		"tokens_used": tokenizer.EstimateTokens(output),
	}
	if res.Hint != "" {
		result["hint"] = res.Hint
	}
	return toolResultJSON(result)
}

// handleGetRuling fetches one ruling by key.
func (s *Server) handleGetRuling(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("lookup service is unavailable"), nil
	}
	key := req.GetString("key", "")
	if normalizer.Key(key) == "" {
		return mcpgo.NewToolResultError("key is required and must not be empty"), nil
	}

	e, err := s.svc.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return mcpgo.NewToolResultErrorf("no ruling with key %q", normalizer.Key(key)), nil
	}
	if err != nil {
		return mcpgo.NewToolResultErrorf("get failed: %s", err.Error()), nil
	}
	return toolResultJSON(e)
}

// handleSearch filters rulings by field substrings.
func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("lookup service is unavailable"), nil
	}

	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	f := &store.Filters{
		Key:       req.GetString("key", ""),
		Title:     req.GetString("title", ""),
		Tag:       req.GetString("tag", ""),
		Archetype: req.GetString("archetype", ""),
		Format:    req.GetString("format", ""),
	}

	entries, err := s.svc.Filter(ctx, f)
	if err != nil {
		return mcpgo.NewToolResultErrorf("search failed: %s", err.Error()), nil
	}
	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []models.Entry{}
	}

	result := map[string]any{
		"results": entries,
		"total":   total,
	}
	return toolResultJSON(result)
}

// handlePropose queues a suggestion for moderation.
func (s *Server) handlePropose(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.queue == nil {
		return mcpgo.NewToolResultError("moderation queue is unavailable"), nil
	}

	raw := models.RawEntry{
		Key:       req.GetString("key", ""),
		Title:     optionalString(req, "title"),
		Content:   optionalString(req, "content"),
		Archetype: optionalString(req, "archetype"),
		Format:    optionalString(req, "format"),
	}
	if tags := req.GetString("tags", ""); tags != "" {
		raw.Tags = models.ParseTagList(tags)
	}
	author := models.Author{
		ID:          req.GetString("author_id", "mcp"),
		DisplayName: req.GetString("author_display_name", ""),
	}

	sg, err := s.queue.Submit(ctx, raw, author)
	if errors.Is(err, normalizer.ErrInvalidEntry) {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return mcpgo.NewToolResultErrorf("propose failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: ruling proposed", "id", sg.ID, "key", sg.Entry.Key)

	result := map[string]any{
		"id":     sg.ID,
		"key":    sg.Entry.Key,
		"status": sg.Status,
	}
	return toolResultJSON(result)
}

// handleStats returns knowledge base statistics.
func (s *Server) handleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("lookup service is unavailable"), nil
	}

	top := req.GetInt("top", defaultStatsTop)
	if top < 0 {
		top = defaultStatsTop
	}
	stats, err := s.svc.Stats(ctx, top)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}
