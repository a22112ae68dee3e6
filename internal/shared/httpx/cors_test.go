package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adaptai/edge/internal/shared/httpx"
)

func corsHandler(origins []string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httpx.CORS(origins)(next)
}

func TestCORSReflectsConfiguredOrigin(t *testing.T) {
	h := corsHandler([]string{"https://app.example.com", "https://admin.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected configured origin reflected, got %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to reach the handler, got %d", rec.Code)
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := corsHandler([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow header for an unlisted origin, got %q", got)
	}
	// The request itself still runs; the browser enforces the denial.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to reach the handler, got %d", rec.Code)
	}
}

func TestCORSWildcardAllowsAnyOrigin(t *testing.T) {
	h := corsHandler([]string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.com" {
		t.Fatalf("expected wildcard config to reflect the caller origin, got %q", got)
	}
}

func TestCORSAnswersPreflightDirectly(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	h := httpx.CORS([]string{"https://app.example.com"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/queries/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight answer, got %d", rec.Code)
	}
	if called {
		t.Fatalf("preflight must not reach the wrapped handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("expected allowed methods on the preflight answer")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected configured origin on the preflight answer, got %q", got)
	}
}
