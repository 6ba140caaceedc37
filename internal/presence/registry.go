package presence

import (
	"context"
	"log/slog"

	"github.com/ruangobrol/backend/internal/cache"
)

// Registry tracks which users are online. The flag lives in redis with a
// short TTL so a lost disconnect can only leave a user "online" for a
// bounded time. The connection handle itself is owned by the hub; a new
// connection simply overwrites the old binding there (last-writer-wins),
// and the flag here follows connect/disconnect events.
type Registry struct {
	cache  *cache.Cache
	logger *slog.Logger
}

func NewRegistry(c *cache.Cache) *Registry {
	return &Registry{
		cache:  c,
		logger: slog.With("component", "presence"),
	}
}

func (r *Registry) MarkOnline(ctx context.Context, userID int64) {
	if err := r.cache.Set(ctx, cache.OnlineKey(userID), "1", cache.OnlineTTL); err != nil {
		r.logger.Error("mark online", "user_id", userID, "err", err)
	}
}

// Touch refreshes the online TTL. Called from the connection read pump
// on every inbound frame and pong.
func (r *Registry) Touch(ctx context.Context, userID int64) {
	r.MarkOnline(ctx, userID)
}

func (r *Registry) MarkOffline(ctx context.Context, userID int64) {
	if err := r.cache.Del(ctx, cache.OnlineKey(userID)); err != nil {
		r.logger.Error("mark offline", "user_id", userID, "err", err)
	}
}

// IsOnline reports the online flag. A cache failure reads as offline:
// the only consequence is a skipped realtime emit, and the push path
// still covers the recipient.
func (r *Registry) IsOnline(ctx context.Context, userID int64) bool {
	ok, err := r.cache.Exists(ctx, cache.OnlineKey(userID))
	if err != nil {
		r.logger.Error("online lookup", "user_id", userID, "err", err)
		return false
	}
	return ok
}
