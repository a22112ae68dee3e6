package httpx

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/adaptai/edge/internal/shared/requestid"
)

const requestIDHeader = "X-Request-Id"

// RequestID propagates an inbound X-Request-Id or generates one, echoing it
// on the response and storing it on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" {
			rid = newRequestID()
		}

		w.Header().Set(requestIDHeader, rid)

		next.ServeHTTP(w, r.WithContext(requestid.With(r.Context(), rid)))
	})
}

func newRequestID() string {
	var b [16]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b[:])
}
