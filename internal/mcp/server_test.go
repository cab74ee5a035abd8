package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/rulings"
	"github.com/ajitpratap0/rulings/internal/store"
)

// newTestServer returns a Server over a MemoryStore seeded with two rulings.
func newTestServer(t *testing.T, budget int) (*Server, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemoryStore()
	for _, e := range []models.Entry{
		{Key: "damage step", Title: "Damage Step", Content: "Only counters & stat changes <here>.", Tags: []string{"battle"}},
		{Key: "ash blossom", Title: "Ash Blossom", Content: "Negates searches.", Tags: []string{"hand trap"}, Archetype: "staple"},
	} {
		_, err := st.Upsert(context.Background(), e)
		require.NoError(t, err)
	}
	svc := rulings.NewService(st, logger, rulings.Config{})
	queue := moderation.NewQueue(st, logger)
	return NewServer(svc, queue, budget, logger), st
}

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content item")
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func decodeResult(t *testing.T, result *mcpgo.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, result.IsError, "tool returned error: %s", textContent(t, result))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	return out
}

func TestRuling_Found(t *testing.T) {
	srv, st := newTestServer(t, 0)
	ctx := context.Background()

	result, err := srv.HandleRuling(ctx, makeReq("ruling", map[string]any{"query": "Damage Step"}))
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.Equal(t, true, out["found"])
	assert.EqualValues(t, 1, out["count"])
	text, ok := out["context"].(string)
	require.True(t, ok)
	assert.Contains(t, text, `<ruling key="damage step" title="Damage Step" tier="exact_key" tags="battle">`)
	assert.Contains(t, text, "&amp; stat changes &lt;here&gt;")
	assert.NotContains(t, out, "hint")

	n, err := st.Usage(ctx, "damage step")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRuling_MissReturnsSuggestionsAndHint(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	result, err := srv.HandleRuling(context.Background(), makeReq("ruling", map[string]any{"query": "ash blosom"}))
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.Equal(t, false, out["found"])
	assert.Equal(t, "", out["context"])
	assert.Equal(t, rulings.NotFoundHint, out["hint"])
	assert.Contains(t, out["suggestions"], "ash blossom")
}

func TestRuling_BudgetTruncates(t *testing.T) {
	srv, st := newTestServer(t, 0)
	ctx := context.Background()
	_, err := st.Upsert(ctx, models.Entry{Key: "chain", Title: "chain", Content: strings.Repeat("long text ", 200), Tags: []string{}})
	require.NoError(t, err)

	result, err := srv.HandleRuling(ctx, makeReq("ruling", map[string]any{"query": "chain", "budget": 20}))
	require.NoError(t, err)
	out := decodeResult(t, result)

	assert.EqualValues(t, 1, out["count"])
	used, ok := out["tokens_used"].(float64)
	require.True(t, ok)
	assert.LessOrEqual(t, used, float64(20))
}

func TestRuling_EmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	result, err := srv.HandleRuling(context.Background(), makeReq("ruling", map[string]any{"query": "   "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetRuling(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ctx := context.Background()

	result, err := srv.HandleGetRuling(ctx, makeReq("get_ruling", map[string]any{"key": "  ASH Blossom "}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, "ash blossom", out["key"])
	assert.Equal(t, "Negates searches.", out["content"])

	result, err = srv.HandleGetRuling(ctx, makeReq("get_ruling", map[string]any{"key": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), `"nope"`)
}

func TestSearchRulings(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ctx := context.Background()

	result, err := srv.HandleSearch(ctx, makeReq("search_rulings", map[string]any{"tag": "TRAP"}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.EqualValues(t, 1, out["total"])
	results, ok := out["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "ash blossom", results[0].(map[string]any)["key"])

	result, err = srv.HandleSearch(ctx, makeReq("search_rulings", map[string]any{"limit": 1}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.EqualValues(t, 2, out["total"])
	assert.Len(t, out["results"], 1)

	result, err = srv.HandleSearch(ctx, makeReq("search_rulings", map[string]any{"archetype": "nothing"}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, []any{}, out["results"])
}

func TestProposeRuling(t *testing.T) {
	srv, st := newTestServer(t, 0)
	ctx := context.Background()

	result, err := srv.HandlePropose(ctx, makeReq("propose_ruling", map[string]any{
		"key":                 "  Miss Timing ",
		"content":             "Optional 'when' effects miss timing.",
		"tags":                "Timing, chain",
		"author_id":           "u1",
		"author_display_name": "Judge",
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, "miss timing", out["key"])
	assert.Equal(t, string(models.StatusPending), out["status"])

	id, ok := out["id"].(string)
	require.True(t, ok)
	sg, err := st.GetSuggestion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", sg.AuthorID)
	assert.Equal(t, "Judge", sg.AuthorDisplayName)
	assert.Equal(t, []string{"timing", "chain"}, sg.Entry.Tags)

	// Proposals do not touch the knowledge base.
	_, err = st.Get(ctx, "miss timing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProposeRuling_MissingContent(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	result, err := srv.HandlePropose(context.Background(), makeReq("propose_ruling", map[string]any{"key": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ctx := context.Background()

	_, err := srv.HandleRuling(ctx, makeReq("ruling", map[string]any{"query": "ash blossom"}))
	require.NoError(t, err)

	result, err := srv.HandleStats(ctx, makeReq("stats", map[string]any{"top": 1}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.EqualValues(t, 2, out["total_entries"])
	top, ok := out["top_usage"].([]any)
	require.True(t, ok)
	require.Len(t, top, 1)
	assert.Equal(t, "ash blossom", top[0].(map[string]any)["key"])
}

func TestNilDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := NewServer(nil, nil, 0, logger)
	require.NotNil(t, srv.MCPServer())
	ctx := context.Background()

	for name, call := range map[string]func(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error){
		"ruling":         srv.HandleRuling,
		"get_ruling":     srv.HandleGetRuling,
		"search_rulings": srv.HandleSearch,
		"propose_ruling": srv.HandlePropose,
		"stats":          srv.HandleStats,
	} {
		result, err := call(ctx, makeReq(name, map[string]any{"query": "x", "key": "x", "content": "y"}))
		require.NoError(t, err, name)
		assert.True(t, result.IsError, name)
	}
}
