// Package query is the minimal backend service the gateway forwards to.
// It trusts the identity headers the gateway injects, serves query results
// out of the per-session cache, and publishes a processed event for the
// relay to pick up. The processing itself is a stub; the interesting parts
// are the cache contract and the publish path.
package query

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adaptai/edge/internal/publish"
	"github.com/adaptai/edge/internal/session"
	"github.com/adaptai/edge/internal/shared/httpx"
)

type Handler struct {
	log       *slog.Logger
	store     session.Store
	publisher *publish.Publisher
	cacheTTL  time.Duration
	lastID    atomic.Int64
}

func NewHandler(log *slog.Logger, store session.Store, publisher *publish.Publisher, cacheTTL time.Duration) *Handler {
	return &Handler{
		log:       log,
		store:     store,
		publisher: publisher,
		cacheTTL:  cacheTTL,
	}
}

type submitRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	ID     int             `json:"id"`
	Query  string          `json:"query"`
	Result json.RawMessage `json:"result"`
}

// identity pulls the gateway-injected headers. Requests without them did
// not come through the gateway and are rejected.
func identity(r *http.Request) (userID, sessionID string, ok bool) {
	userID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	sessionID = strings.TrimSpace(r.Header.Get("X-Session-Id"))
	return userID, sessionID, userID != "" && sessionID != ""
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := identity(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "identity_missing", "missing identity headers")
		return
	}

	cached, hit, err := h.store.GetCache(r.Context(), userID, sessionID)
	if err != nil {
		h.log.Error("cache_read_failed", slog.String("err", err.Error()))
	}
	if hit {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write([]byte(cached))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"queries": []any{}})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := identity(r)
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "identity_missing", "missing identity headers")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "query is required")
		return
	}

	result, _ := json.Marshal(map[string]any{"status": "accepted", "query": req.Query})
	resp := queryResponse{
		ID:     int(h.lastID.Add(1)),
		Query:  req.Query,
		Result: result,
	}

	body, _ := json.Marshal(resp)
	if err := h.store.PutCache(r.Context(), userID, sessionID, json.RawMessage(body), h.cacheTTL); err != nil {
		h.log.Error("cache_write_failed", slog.String("err", err.Error()))
	}

	// Fire the event toward the relay; a full queue is reported, not
	// fatal to the request.
	if err := h.publisher.Publish(map[string]string{
		"id":      strconv.Itoa(resp.ID),
		"user_id": userID,
		"query":   req.Query,
		"result":  string(result),
	}); err != nil {
		h.log.Error("event_publish_failed", slog.String("err", err.Error()))
	}

	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// NewRouter wires the query service's routes behind the shared middleware.
func NewRouter(log *slog.Logger, h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /queries/", h.List)
	mux.HandleFunc("POST /queries/", h.Submit)

	var handler http.Handler = mux
	handler = httpx.RequestID(handler)
	handler = httpx.AccessLog(log)(handler)

	return handler
}
