package gateway

import (
	"net"
	"sync"
	"time"
)

// RateLimiter enforces a fixed-window request budget per client address.
// It is the only cross-request shared mutable state in the gateway.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*clientWindow
}

type clientWindow struct {
	start time.Time
	count int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*clientWindow),
	}
}

// Allow reports whether the client identified by addr has budget left in
// the current window and consumes one unit if so.
func (l *RateLimiter) Allow(addr string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[addr]
	if !ok || now.Sub(w.start) >= l.window {
		if len(l.windows) > 4096 {
			l.sweep(now)
		}
		l.windows[addr] = &clientWindow{start: now, count: 1}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// sweep drops expired windows; called under the lock when the map grows.
func (l *RateLimiter) sweep(now time.Time) {
	for addr, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, addr)
		}
	}
}

// clientAddr extracts the client host from a RemoteAddr "host:port" pair.
func clientAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
