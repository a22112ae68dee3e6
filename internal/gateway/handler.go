// Package gateway is the single authenticated entry point: it verifies a
// bearer token, proves the session is still live, and forwards the request
// with enriched identity headers to exactly one backend service.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adaptai/edge/internal/credentials"
	"github.com/adaptai/edge/internal/shared/httpx"
	"github.com/adaptai/edge/internal/token"
)

const (
	headerUserID    = "X-User-Id"
	headerSessionID = "X-Session-Id"
)

type Handler struct {
	log     *slog.Logger
	tokens  *token.Service
	creds   credentials.Verifier
	routes  map[string]string
	limiter *RateLimiter
	client  *http.Client
}

type Options struct {
	// Routes maps a service name to its base URL. The table is copied at
	// construction and never mutated afterwards.
	Routes         map[string]string
	RateLimit      int
	RateWindow     time.Duration
	ForwardTimeout time.Duration
}

func NewHandler(log *slog.Logger, tokens *token.Service, creds credentials.Verifier, opts Options) *Handler {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.ForwardTimeout <= 0 {
		opts.ForwardTimeout = 10 * time.Second
	}

	routes := make(map[string]string, len(opts.Routes))
	for name, base := range opts.Routes {
		routes[name] = strings.TrimRight(base, "/")
	}

	return &Handler{
		log:     log,
		tokens:  tokens,
		creds:   creds,
		routes:  routes,
		limiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
		client: &http.Client{
			Timeout: opts.ForwardTimeout,
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}

	if err := h.creds.VerifyPassword(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("credential_check_failed", slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	issued, err := h.tokens.Issue(r.Context(), req.Username)
	if err != nil {
		h.log.Error("token_issue_failed", slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: issued.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(issued.ExpiresIn.Seconds()),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.tokens.Revoke(r.Context(), id.UserID, id.SessionID); err != nil {
		h.log.Error("revoke_failed", slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "API Gateway is running"})
}

// authenticate extracts and verifies the bearer token, writing the 401
// itself on failure. This is the only place that inspects the credential.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (token.Identity, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(value) == "" {
		httpx.WriteError(w, r, http.StatusUnauthorized, "token_invalid", "missing or malformed bearer token")
		return token.Identity{}, false
	}

	id, err := h.tokens.Verify(r.Context(), strings.TrimSpace(value))
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		httpx.WriteError(w, r, http.StatusUnauthorized, "token_expired", "token expired")
		return token.Identity{}, false
	case errors.Is(err, token.ErrSessionNotFound):
		httpx.WriteError(w, r, http.StatusUnauthorized, "session_not_found", "session no longer exists")
		return token.Identity{}, false
	case err != nil:
		httpx.WriteError(w, r, http.StatusUnauthorized, "token_invalid", "invalid token")
		return token.Identity{}, false
	}
	return id, true
}

// Forward is the session-validated reverse-proxy path. Per request:
// rate limit, authenticate, route, forward, relay the response.
func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	// Budget check comes first so overload sheds before any
	// verification work is spent.
	if !h.limiter.Allow(clientAddr(r.RemoteAddr)) {
		httpx.WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}

	id, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	service := leadingSegment(r.URL.Path)
	base, ok := h.routes[service]
	if !ok {
		h.log.Error("service_not_found", slog.String("service", service))
		httpx.WriteError(w, r, http.StatusNotFound, "service_not_found", "service not found")
		return
	}

	target := base + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "invalid request")
		return
	}

	copyHeaders(out.Header, r.Header)
	out.ContentLength = r.ContentLength
	// Verified identity always wins over caller-supplied values.
	out.Header.Set(headerUserID, id.UserID)
	out.Header.Set(headerSessionID, id.SessionID)

	h.log.Info("forward",
		slog.String("service", service),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("user_id", id.UserID),
	)

	resp, err := h.client.Do(out)
	if err != nil {
		h.log.Error("backend_unreachable", slog.String("service", service), slog.String("err", err.Error()))
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "service_unavailable", "failed to reach service")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vals := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func leadingSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	seg, _, _ := strings.Cut(path, "/")
	return seg
}

func copyHeaders(dst, src http.Header) {
	for k, vals := range src {
		if isHopByHop(k) || k == "Host" {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade":
		return true
	}
	return false
}
