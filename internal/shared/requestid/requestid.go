// Package requestid carries the per-request id through a context so log
// lines and error envelopes can reference the same request.
package requestid

import "context"

type ctxKey struct{}

func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Get returns the request id, or "" for a context without one.
func Get(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKey{}).(string); ok {
		return s
	}
	return ""
}
