package unread

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruangobrol/backend/internal/cache"
	"github.com/ruangobrol/backend/internal/store"
)

// Counter is the fast path for per (user, conversation) unread counts.
// The cache only ever holds values recomputed from the store; it is
// advisory and allowed to be stale within its TTL. Cache failures
// degrade to store reads and are never surfaced.
type Counter struct {
	store  *store.Store
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCounter(st *store.Store, c *cache.Cache) *Counter {
	return &Counter{
		store:  st,
		cache:  c,
		ttl:    cache.UnreadTTL,
		logger: slog.With("component", "unread"),
	}
}

// Get returns the cached count, recomputing from the store and
// rewriting the cache on a miss.
func (c *Counter) Get(ctx context.Context, userID, convID int64) (int, error) {
	key := cache.UnreadKey(userID, convID)
	n, ok, err := c.cache.GetInt(ctx, key)
	if err != nil {
		c.logger.Error("cache read, falling back to store", "key", key, "err", err)
	} else if ok {
		return n, nil
	}

	n, err = c.store.CountUnread(ctx, convID, userID)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetInt(ctx, key, n, c.ttl); err != nil {
		c.logger.Error("cache write", "key", key, "err", err)
	}
	return n, nil
}

// Reset marks every outstanding visible message read and zeroes both the
// durable counter and the cache entry.
func (c *Counter) Reset(ctx context.Context, userID, convID int64, at time.Time) error {
	if _, err := c.store.MarkAllRead(ctx, convID, userID, at); err != nil {
		return err
	}
	if err := c.cache.SetInt(ctx, cache.UnreadKey(userID, convID), 0, c.ttl); err != nil {
		c.logger.Error("cache write after reset", "user_id", userID, "conversation_id", convID, "err", err)
	}
	return nil
}

// Increment bumps the durable counter and overwrites the cache with a
// value recounted from the store. Never a blind cache increment:
// concurrent sends each recount, so the last write is always a value
// the store agreed with at some point at or after this send.
func (c *Counter) Increment(ctx context.Context, userID, convID int64) (int, error) {
	if err := c.store.IncrementUnread(ctx, convID, userID); err != nil {
		return 0, err
	}
	n, err := c.store.CountUnread(ctx, convID, userID)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetInt(ctx, cache.UnreadKey(userID, convID), n, c.ttl); err != nil {
		c.logger.Error("cache write after increment", "user_id", userID, "conversation_id", convID, "err", err)
	}
	return n, nil
}

// Refresh overwrites the cache entry with a fresh recount. Used after
// history clears and by the reconciliation job.
func (c *Counter) Refresh(ctx context.Context, userID, convID int64) (int, error) {
	n, err := c.store.CountUnread(ctx, convID, userID)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetInt(ctx, cache.UnreadKey(userID, convID), n, c.ttl); err != nil {
		c.logger.Error("cache refresh", "user_id", userID, "conversation_id", convID, "err", err)
	}
	return n, nil
}
