// Package session holds the server-side liveness records that pair with
// issued tokens, plus the per-session query cache. Both live in Redis with
// expiring keys; deleting the session record revokes the token before its
// embedded expiry.
package session

import (
	"context"
	"time"
)

// Store is the session-record and cache contract the gateway depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, userID, sessionID, value string, ttl time.Duration) error
	Exists(ctx context.Context, userID, sessionID string) (bool, error)
	Delete(ctx context.Context, userID, sessionID string) error

	PutCache(ctx context.Context, userID, sessionID string, data any, ttl time.Duration) error
	GetCache(ctx context.Context, userID, sessionID string) (string, bool, error)
}
