package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) Membership(ctx context.Context, convID, userID int64) (*Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user_id, role, is_archived, archived_at, deleted_at,
		       last_read_at, unread_count, created_at
		FROM memberships WHERE conversation_id=? AND user_id=?`, convID, userID)

	var m Membership
	var archivedAt, deletedAt, lastReadAt sql.NullInt64
	var created int64
	err := row.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.IsArchived,
		&archivedAt, &deletedAt, &lastReadAt, &m.UnreadCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ArchivedAt = nullTime(archivedAt)
	m.DeletedAt = nullTime(deletedAt)
	m.LastReadAt = nullTime(lastReadAt)
	m.CreatedAt = fromMsec(created)
	return &m, nil
}

// ActiveMembers lists the non-archived memberships of a conversation.
// Each carries its own deleted_at cursor for visibility scoping.
func (s *Store) ActiveMembers(ctx context.Context, convID int64) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, is_archived, archived_at, deleted_at,
		       last_read_at, unread_count, created_at
		FROM memberships WHERE conversation_id=? AND is_archived=0`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Membership
	for rows.Next() {
		var m Membership
		var archivedAt, deletedAt, lastReadAt sql.NullInt64
		var created int64
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.IsArchived,
			&archivedAt, &deletedAt, &lastReadAt, &m.UnreadCount, &created); err != nil {
			return nil, err
		}
		m.ArchivedAt = nullTime(archivedAt)
		m.DeletedAt = nullTime(deletedAt)
		m.LastReadAt = nullTime(lastReadAt)
		m.CreatedAt = fromMsec(created)
		list = append(list, m)
	}
	return list, rows.Err()
}

// IsActiveMember reports whether the user holds a non-archived membership.
func (s *Store) IsActiveMember(ctx context.Context, convID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memberships WHERE conversation_id=? AND user_id=? AND is_archived=0`,
		convID, userID).Scan(&n)
	return n > 0, err
}

// ToggleArchive flips the member's archived flag. The flag and its
// timestamp are updated in one statement so concurrent toggles stay
// last-write-wins without ever splitting the pair.
func (s *Store) ToggleArchive(ctx context.Context, convID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships
		SET is_archived = 1 - is_archived,
		    archived_at = CASE WHEN is_archived = 0 THEN ? ELSE NULL END
		WHERE conversation_id=? AND user_id=?`,
		msec(time.Now()), convID, userID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotAMember
	}

	var archived bool
	err = s.db.QueryRowContext(ctx,
		`SELECT is_archived FROM memberships WHERE conversation_id=? AND user_id=?`,
		convID, userID).Scan(&archived)
	return archived, err
}

// ClearHistory sets the member's deleted_at cursor to now. Older messages
// stay in the store for other members but drop out of this member's
// history and unread counting.
func (s *Store) ClearHistory(ctx context.Context, convID, userID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET deleted_at=?, unread_count=0
		WHERE conversation_id=? AND user_id=?`,
		msec(at), convID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotAMember
	}
	return nil
}
