package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/moderation"
	"github.com/ajitpratap0/rulings/internal/normalizer"
	"github.com/ajitpratap0/rulings/internal/rulings"
	"github.com/ajitpratap0/rulings/internal/store"
	"github.com/ajitpratap0/rulings/internal/suggest"
)

// maxBody caps request bodies.
const maxBody = 1 << 20 // 1 MB

// Server is an HTTP API server that exposes lookup, admin and moderation operations.
type Server struct {
	svc       *rulings.Service
	queue     *moderation.Queue
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(svc *rulings.Service, queue *moderation.Queue, logger *slog.Logger, authToken string) *Server {
	return &Server{
		svc:       svc,
		queue:     queue,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/lookup", s.auth(s.handleLookup))
	mux.HandleFunc("POST /v1/suggest", s.auth(s.handleSuggest))

	mux.HandleFunc("GET /v1/rulings", s.auth(s.handleListRulings))
	mux.HandleFunc("POST /v1/rulings", s.auth(s.handleAddRuling))
	mux.HandleFunc("GET /v1/rulings/{key}", s.auth(s.handleGetRuling))
	mux.HandleFunc("PUT /v1/rulings/{key}", s.auth(s.handlePutRuling))
	mux.HandleFunc("PATCH /v1/rulings/{key}", s.auth(s.handleEditRuling))
	mux.HandleFunc("DELETE /v1/rulings/{key}", s.auth(s.handleDeleteRuling))

	mux.HandleFunc("GET /v1/suggestions", s.auth(s.handleListSuggestions))
	mux.HandleFunc("POST /v1/suggestions", s.auth(s.handlePropose))
	mux.HandleFunc("GET /v1/suggestions/{id}", s.auth(s.handleGetSuggestion))
	mux.HandleFunc("POST /v1/suggestions/{id}/approve", s.auth(s.handleApprove))
	mux.HandleFunc("POST /v1/suggestions/{id}/reject", s.auth(s.handleReject))

	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))
	mux.Handle("GET /debug/vars", s.auth(expvar.Handler().ServeHTTP))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Store().Count(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryRequest is the body accepted by POST /v1/lookup and POST /v1/suggest.
type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return "", false
	}
	if normalizer.Key(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return "", false
	}
	return req.Query, true
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Lookup(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err, "failed to look up ruling")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// suggestResponse is returned by POST /v1/suggest.
type suggestResponse struct {
	Suggestions []suggest.Candidate `json:"suggestions"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	cands, err := s.svc.Suggest(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err, "failed to compute suggestions")
		return
	}
	s.writeJSON(w, http.StatusOK, suggestResponse{Suggestions: cands})
}

// listResponse is returned by GET /v1/rulings.
type listResponse struct {
	Rulings []models.Entry `json:"rulings"`
	Count   int            `json:"count"`
}

func (s *Server) handleListRulings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := &store.Filters{
		Key:       q.Get("key"),
		Title:     q.Get("title"),
		Tag:       q.Get("tag"),
		Archetype: q.Get("archetype"),
		Format:    q.Get("format"),
	}
	entries, err := s.svc.Filter(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, err, "failed to list rulings")
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Rulings: entries, Count: len(entries)})
}

func (s *Server) handleGetRuling(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get ruling")
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleAddRuling(w http.ResponseWriter, r *http.Request) {
	var raw models.RawEntry
	if !s.decode(w, r, &raw) {
		return
	}
	e, err := s.svc.Add(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, err, "failed to add ruling")
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

// putResponse is returned by PUT /v1/rulings/{key}.
type putResponse struct {
	Ruling *models.Entry `json:"ruling"`
	Result string        `json:"result"`
}

func (s *Server) handlePutRuling(w http.ResponseWriter, r *http.Request) {
	var raw models.RawEntry
	if !s.decode(w, r, &raw) {
		return
	}
	raw.Key = r.PathValue("key")
	e, res, err := s.svc.Put(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, err, "failed to store ruling")
		return
	}
	status := http.StatusOK
	if res == store.Inserted {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, putResponse{Ruling: e, Result: res.String()})
}

func (s *Server) handleEditRuling(w http.ResponseWriter, r *http.Request) {
	var patch models.EntryPatch
	if !s.decode(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		s.writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	e, err := s.svc.Edit(r.Context(), r.PathValue("key"), patch)
	if err != nil {
		s.writeServiceError(w, err, "failed to edit ruling")
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteRuling(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("key")); err != nil {
		s.writeServiceError(w, err, "failed to delete ruling")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// proposeRequest is the body accepted by POST /v1/suggestions.
type proposeRequest struct {
	models.RawEntry
	models.Author
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !s.decode(w, r, &req) {
		return
	}
	sg, err := s.queue.Submit(r.Context(), req.RawEntry, req.Author)
	if err != nil {
		s.writeServiceError(w, err, "failed to submit suggestion")
		return
	}
	s.writeJSON(w, http.StatusCreated, sg)
}

// suggestionsResponse is returned by GET /v1/suggestions.
type suggestionsResponse struct {
	Suggestions []models.Suggestion `json:"suggestions"`
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.StatusPending
	switch raw := q.Get("status"); raw {
	case "":
	case "all":
		status = ""
	default:
		status = models.SuggestionStatus(raw)
		if !status.IsValid() {
			s.writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var filter *models.SuggestionStatus
	if status != "" {
		filter = &status
	}
	list, err := s.queue.List(r.Context(), filter, limit)
	if err != nil {
		s.writeServiceError(w, err, "failed to list suggestions")
		return
	}
	if list == nil {
		list = []models.Suggestion{}
	}
	s.writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: list})
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := s.queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to get suggestion")
		return
	}
	s.writeJSON(w, http.StatusOK, sg)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	res, err := s.queue.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "failed to approve suggestion")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusApproved), "result": res.String()})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Reject(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "failed to reject suggestion")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRejected)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	top := 10
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid top")
			return
		}
		top = n
	}
	stats, err := s.svc.Stats(r.Context(), top)
	if err != nil {
		s.writeServiceError(w, err, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// decode reads a size-limited JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps domain errors to status codes. Anything unrecognized
// is logged and reported as a 500 with msg.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, normalizer.ErrInvalidEntry):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, rulings.ErrDuplicateKey):
		s.writeError(w, http.StatusConflict, "ruling already exists")
	case errors.Is(err, store.ErrNotPending):
		s.writeError(w, http.StatusConflict, "suggestion is not pending")
	default:
		s.logger.Error(msg, "error", err)
		s.writeError(w, http.StatusInternalServerError, msg)
	}
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
