package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/params"
)

// Limiter counts requests in fixed windows keyed by (action, identifier).
// A window is anchored at the first request and expires via the store's TTL,
// so stale windows are garbage-collected by the store rather than by a
// background task.
//
// When the backing store is unreachable the limiter fails open: availability
// of login and code-request paths is deliberately prioritized over strict
// limiting. This is the only place in the core where an I/O failure is
// swallowed; it is logged every time.
type Limiter struct {
	storage store.Storage
}

func New(storage store.Storage) *Limiter {
	return &Limiter{
		storage: store.StorageWithPrefix(storage, params.RateLimitKeyPrefix),
	}
}

// Allow reports whether one more request by identifier is within the limit
// of max requests per window. An empty identifier is always denied: pooling
// unidentifiable clients into one shared bucket would let them undercount
// each other.
func (l *Limiter) Allow(ctx context.Context, identifier string, action string, max int, window time.Duration) bool {
	if identifier == "" {
		return false
	}
	key := action + ":" + identifier
	count, err := l.storage.IncrAttr(ctx, key, "count", 1)
	if err != nil {
		slog.Warn("Rate limiter store unreachable, failing open", "action", action, "error", err)
		return true
	}
	if count == 1 {
		// first request anchors the window; a counter without an expiry
		// would deny this bucket forever, so treat a failed anchor like
		// any other store error
		if err := l.storage.Expire(ctx, key, time.Now().Add(window)); err != nil {
			slog.Warn("Failed to set rate limit window expiry, failing open", "action", action, "error", err)
			l.storage.Delete(ctx, key)
			return true
		}
	}
	return count <= int64(max)
}
