package unread

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler periodically recomputes unread counts from the store for
// every non-archived member of recently active conversations and
// rewrites the cache. It corrects entries lost to TTL expiry, eviction
// or crashed writers. Overwrite-only, so it is idempotent and safe to
// run concurrently with live traffic.
type Reconciler struct {
	counter *Counter
	window  time.Duration
	logger  *slog.Logger
}

func NewReconciler(counter *Counter, window time.Duration) *Reconciler {
	return &Reconciler{
		counter: counter,
		window:  window,
		logger:  slog.With("component", "unread-sync"),
	}
}

// Run performs one reconciliation pass over conversations whose
// updated_at falls inside the trailing window.
func (r *Reconciler) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-r.window)
	ids, err := r.counter.store.RecentConversationIDs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("recent conversations: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	synced := 0
	for _, convID := range ids {
		members, err := r.counter.store.ActiveMembers(ctx, convID)
		if err != nil {
			r.logger.Error("list members", "conversation_id", convID, "err", err)
			continue
		}
		for _, m := range members {
			if _, err := r.counter.Refresh(ctx, m.UserID, convID); err != nil {
				r.logger.Error("refresh counter", "conversation_id", convID, "user_id", m.UserID, "err", err)
				continue
			}
			synced++
		}
	}
	r.logger.Info("unread sync pass done", "conversations", len(ids), "pairs", synced)
	return nil
}
