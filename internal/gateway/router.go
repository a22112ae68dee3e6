package gateway

import (
	"log/slog"
	"net/http"

	"github.com/adaptai/edge/internal/shared/httpx"
)

// NewRouter wires the gateway's routes and shared middleware. Everything
// that is not a named route falls through to the forwarding path.
func NewRouter(log *slog.Logger, h *Handler, allowedOrigins []string, metrics *httpx.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /{$}", h.Root)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("GET /", httpx.WithRoute("/{service}", http.HandlerFunc(h.Forward)))
	mux.Handle("POST /", httpx.WithRoute("/{service}", http.HandlerFunc(h.Forward)))
	mux.Handle("PUT /", httpx.WithRoute("/{service}", http.HandlerFunc(h.Forward)))
	mux.Handle("DELETE /", httpx.WithRoute("/{service}", http.HandlerFunc(h.Forward)))

	var handler http.Handler = mux
	if metrics != nil {
		handler = metrics.Middleware(handler)
	}
	handler = httpx.CORS(allowedOrigins)(handler)
	handler = httpx.RequestID(handler)
	handler = httpx.AccessLog(log)(handler)

	return handler
}
