package cache

import (
	"fmt"
	"time"
)

const (
	// UnreadTTL bounds staleness of counter entries; the reconciliation
	// job rewrites entries for recently active conversations well within
	// this window.
	UnreadTTL = time.Hour

	// OnlineTTL bounds presence staleness if a disconnect is ever lost.
	// Refreshed from the connection's read pump while the socket lives.
	OnlineTTL = 2 * time.Minute
)

// UnreadKey is the per (user, conversation) counter entry.
func UnreadKey(userID, convID int64) string {
	return fmt.Sprintf("unread:%d:%d", userID, convID)
}

// OnlineKey is the per-user online flag.
func OnlineKey(userID int64) string {
	return fmt.Sprintf("presence:online:%d", userID)
}
