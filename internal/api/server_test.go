package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/rulings"
	"github.com/ajitpratap0/rulings/internal/store"
)

// newTestServer creates a test HTTP server over a MemoryStore seeded with two rulings.
func newTestServer(t *testing.T, authToken string) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemoryStore()
	svc := rulings.NewService(st, logger, rulings.Config{})
	queue := moderation.NewQueue(st, logger)

	for _, e := range []models.Entry{
		{Key: "damage step", Title: "Damage Step", Content: "restricted window", Tags: []string{"battle"}},
		{Key: "ash blossom", Title: "Ash Blossom", Content: "negates searches", Tags: []string{"hand trap"}},
	} {
		_, err := st.Upsert(context.Background(), e)
		require.NoError(t, err)
	}

	srv := NewServer(svc, queue, logger, authToken)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func doRequest(t *testing.T, method, url string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(context.Background(), method, url, body)
	} else {
		req, err = http.NewRequestWithContext(context.Background(), method, url, http.NoBody)
	}
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func rulingURL(base, key string) string {
	return base + "/v1/rulings/" + url.PathEscape(key)
}

func TestAPI_Healthz(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]string
	decodeBody(t, resp, &result)
	assert.Equal(t, "ok", result["status"])
}

func TestAPI_AuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, "wrong")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats", nil, "secret")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Lookup(t *testing.T) {
	ts, st := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/lookup", jsonBody(t, map[string]string{"query": "Ash Blossom"}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res rulings.Result
	decodeBody(t, resp, &res)
	require.NotNil(t, res.Best)
	assert.Equal(t, "ash blossom", res.Best.Entry.Key)
	assert.Equal(t, "exact_key", res.Best.Tier)

	n, err := st.Usage(context.Background(), "ash blossom")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAPI_LookupMiss(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/lookup", jsonBody(t, map[string]string{"query": "ash blosom"}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res rulings.Result
	decodeBody(t, resp, &res)
	assert.Nil(t, res.Best)
	assert.Equal(t, rulings.NotFoundHint, res.Hint)
	assert.Equal(t, []string{"ash blossom"}, res.Suggestions)
}

func TestAPI_LookupValidation(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/lookup", jsonBody(t, map[string]string{"query": "  "}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/lookup", bytes.NewBufferString("{"), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Suggest(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/suggest", jsonBody(t, map[string]string{"query": "damage stp"}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res suggestResponse
	decodeBody(t, resp, &res)
	require.NotEmpty(t, res.Suggestions)
	assert.Equal(t, "damage step", res.Suggestions[0].Key)
}

func TestAPI_RulingsCRUD(t *testing.T) {
	ts, _ := newTestServer(t, "")

	// Add
	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/rulings", jsonBody(t, map[string]any{
		"key":     "Miss Timing",
		"content": "when... you can",
		"tags":    "timing, chain",
	}), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added models.Entry
	decodeBody(t, resp, &added)
	assert.Equal(t, "miss timing", added.Key)
	assert.Equal(t, []string{"timing", "chain"}, added.Tags)

	// Duplicate add
	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/rulings", jsonBody(t, map[string]any{
		"key": "miss timing", "content": "x",
	}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Invalid add
	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/rulings", jsonBody(t, map[string]any{"key": "no content"}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Get
	resp = doRequest(t, http.MethodGet, rulingURL(ts.URL, "miss timing"), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Entry
	decodeBody(t, resp, &got)
	assert.Equal(t, "when... you can", got.Content)

	// Patch title only
	resp = doRequest(t, http.MethodPatch, rulingURL(ts.URL, "miss timing"), jsonBody(t, map[string]any{
		"title": "Missing the timing",
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edited models.Entry
	decodeBody(t, resp, &edited)
	assert.Equal(t, "Missing the timing", edited.Title)
	assert.Equal(t, got.Content, edited.Content)
	assert.Equal(t, got.Tags, edited.Tags)

	// Empty patch
	resp = doRequest(t, http.MethodPatch, rulingURL(ts.URL, "miss timing"), jsonBody(t, map[string]any{}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Put replaces
	resp = doRequest(t, http.MethodPut, rulingURL(ts.URL, "miss timing"), jsonBody(t, map[string]any{
		"content": "replaced",
	}), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var put putResponse
	decodeBody(t, resp, &put)
	assert.Equal(t, "updated", put.Result)
	assert.Equal(t, "replaced", put.Ruling.Content)
	assert.Empty(t, put.Ruling.Tags)

	// Put creates
	resp = doRequest(t, http.MethodPut, rulingURL(ts.URL, "chain link"), jsonBody(t, map[string]any{
		"content": "a link in a chain",
	}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Delete
	resp = doRequest(t, http.MethodDelete, rulingURL(ts.URL, "miss timing"), nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, rulingURL(ts.URL, "miss timing"), nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, rulingURL(ts.URL, "miss timing"), nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ListRulingsFiltered(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/rulings", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all listResponse
	decodeBody(t, resp, &all)
	assert.Equal(t, 2, all.Count)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/rulings?tag=hand", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var filtered listResponse
	decodeBody(t, resp, &filtered)
	require.Equal(t, 1, filtered.Count)
	assert.Equal(t, "ash blossom", filtered.Rulings[0].Key)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/rulings?tag=nothing", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var none listResponse
	decodeBody(t, resp, &none)
	assert.NotNil(t, none.Rulings)
	assert.Zero(t, none.Count)
}

func TestAPI_ModerationFlow(t *testing.T) {
	ts, st := newTestServer(t, "")
	ctx := context.Background()

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/suggestions", jsonBody(t, map[string]any{
		"key":                 "Chain Link",
		"content":             "a link in a chain",
		"author_id":           "7",
		"author_display_name": "Joey",
	}), "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sg models.Suggestion
	decodeBody(t, resp, &sg)
	assert.Equal(t, "chain link", sg.Entry.Key)
	assert.Equal(t, "Joey", sg.AuthorDisplayName)
	assert.Equal(t, models.StatusPending, sg.Status)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/suggestions", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending suggestionsResponse
	decodeBody(t, resp, &pending)
	require.Len(t, pending.Suggestions, 1)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/suggestions/"+sg.ID+"/approve", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved map[string]string
	decodeBody(t, resp, &approved)
	assert.Equal(t, "inserted", approved["result"])

	e, err := st.Get(ctx, "chain link")
	require.NoError(t, err)
	assert.Equal(t, "a link in a chain", e.Content)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/suggestions/"+sg.ID+"/reject", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/suggestions?status=approved", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done suggestionsResponse
	decodeBody(t, resp, &done)
	require.Len(t, done.Suggestions, 1)
	assert.Equal(t, sg.ID, done.Suggestions[0].ID)

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/suggestions?status=bogus", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/suggestions/nope/approve", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ProposeInvalid(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/suggestions", jsonBody(t, map[string]any{
		"key": "   ", "content": "x",
	}), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Stats(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/lookup", jsonBody(t, map[string]string{"query": "damage"}), "")
	resp.Body.Close()

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/stats?top=1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats models.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 2, stats.TotalEntries)
	require.Len(t, stats.TopUsage, 1)
	assert.Equal(t, "damage step", stats.TopUsage[0].Key)
}

func TestAPI_DebugVars(t *testing.T) {
	ts, _ := newTestServer(t, "")

	resp := doRequest(t, http.MethodGet, ts.URL+"/debug/vars", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
