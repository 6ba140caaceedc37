package store

import (
	"database/sql"
	"errors"
	"time"
)

// Sentinel errors surfaced to callers. Everything else is a wrapped
// driver error.
var (
	ErrNotFound         = errors.New("not found")
	ErrNotAMember       = errors.New("not a member of this conversation")
	ErrSelfConversation = errors.New("conversation requires two distinct users")
)

// Store is the durable source of truth for conversations, memberships,
// messages and read receipts. The cache layer is always derived from it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// msec converts a time to the unix-millisecond representation used in
// every timestamp column.
func msec(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMsec(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMsec(v.Int64)
	return &t
}
