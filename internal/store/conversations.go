package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, COALESCE(name, ''), COALESCE(icon, ''), COALESCE(description, ''),
		       expires_at, created_at, updated_at
		FROM conversations WHERE id=?`, id)

	var c Conversation
	var expires sql.NullInt64
	var created, updated int64
	err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.Icon, &c.Description, &expires, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ExpiresAt = nullTime(expires)
	c.CreatedAt = fromMsec(created)
	c.UpdatedAt = fromMsec(updated)
	return &c, nil
}

// CreateDirect returns the existing private conversation between the two
// users, or creates one. The second return reports whether it was created.
// The users must be distinct: with userID == otherID the lookup joins
// below would match any private conversation the caller is in.
func (s *Store) CreateDirect(ctx context.Context, userID, otherID int64) (int64, bool, error) {
	if userID == otherID {
		return 0, false, ErrSelfConversation
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN memberships m1 ON m1.conversation_id=c.id AND m1.user_id=?
		JOIN memberships m2 ON m2.conversation_id=c.id AND m2.user_id=?
		WHERE c.kind='private' LIMIT 1`, userID, otherID)

	var id int64
	if err := row.Scan(&id); err == nil {
		return id, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}

	id, err := s.createWithMembers(ctx, KindPrivate, "", "", nil, userID, []int64{userID, otherID}, RoleMember)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// CreateGroup creates a group conversation with the creator as admin.
func (s *Store) CreateGroup(ctx context.Context, creatorID int64, name, description string, memberIDs []int64) (int64, error) {
	all := []int64{creatorID}
	seen := map[int64]bool{creatorID: true}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			all = append(all, id)
		}
	}
	return s.createWithMembers(ctx, KindGroup, name, description, nil, creatorID, all, RoleMember)
}

// CreateNearby creates an ephemeral conversation between two users that the
// sweep job hard-deletes once expiresAt has passed.
func (s *Store) CreateNearby(ctx context.Context, userID, otherID int64, expiresAt time.Time) (int64, error) {
	if userID == otherID {
		return 0, ErrSelfConversation
	}
	return s.createWithMembers(ctx, KindNearby, "", "", &expiresAt, userID, []int64{userID, otherID}, RoleMember)
}

func (s *Store) createWithMembers(ctx context.Context, kind, name, description string, expiresAt *time.Time, creatorID int64, memberIDs []int64, defaultRole string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := msec(time.Now())
	var expires any
	if expiresAt != nil {
		expires = msec(*expiresAt)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (kind, name, description, expires_at, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`,
		kind, name, description, expires, now, now)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, uid := range memberIDs {
		role := defaultRole
		if kind == KindGroup && uid == creatorID {
			role = RoleAdmin
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memberships (conversation_id, user_id, role, created_at)
			VALUES (?, ?, ?, ?)`, id, uid, role, now); err != nil {
			return 0, fmt.Errorf("add member %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// AddMembers adds users to a group conversation. Only an admin member may
// do this.
func (s *Store) AddMembers(ctx context.Context, convID, adminID int64, memberIDs []int64) error {
	var n int
	_ = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM memberships WHERE conversation_id=? AND user_id=? AND role='admin'`,
		convID, adminID).Scan(&n)
	if n == 0 {
		return ErrNotAMember
	}

	now := msec(time.Now())
	for _, uid := range memberIDs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO memberships (conversation_id, user_id, role, created_at)
			VALUES (?, ?, 'member', ?)`, convID, uid, now); err != nil {
			return fmt.Errorf("add member %d: %w", uid, err)
		}
	}
	return nil
}

// Inbox lists a member's conversations of the given kind (empty = any),
// filtered by the archived flag and ordered by updated_at descending. The
// last-message preview respects the member's deleted_at cursor.
func (s *Store) Inbox(ctx context.Context, userID int64, kind string, archived bool) ([]InboxRow, error) {
	query := `
		SELECT c.id, c.kind, COALESCE(c.name, ''), COALESCE(c.icon, ''), COALESCE(c.description, ''),
		       c.expires_at, c.created_at, c.updated_at,
		       m.role, m.is_archived, m.archived_at, m.deleted_at, m.last_read_at, m.unread_count
		FROM conversations c
		JOIN memberships m ON m.conversation_id=c.id AND m.user_id=?
		WHERE m.is_archived=?`
	args := []any{userID, archived}
	if kind != "" {
		query += ` AND c.kind=?`
		args = append(args, kind)
	}
	query += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []InboxRow
	for rows.Next() {
		var r InboxRow
		var expires, archivedAt, deletedAt, lastReadAt sql.NullInt64
		var created, updated int64
		if err := rows.Scan(
			&r.Conversation.ID, &r.Conversation.Kind, &r.Conversation.Name,
			&r.Conversation.Icon, &r.Conversation.Description,
			&expires, &created, &updated,
			&r.Membership.Role, &r.Membership.IsArchived,
			&archivedAt, &deletedAt, &lastReadAt, &r.Membership.UnreadCount,
		); err != nil {
			return nil, err
		}
		r.Conversation.ExpiresAt = nullTime(expires)
		r.Conversation.CreatedAt = fromMsec(created)
		r.Conversation.UpdatedAt = fromMsec(updated)
		r.Membership.ConversationID = r.Conversation.ID
		r.Membership.UserID = userID
		r.Membership.ArchivedAt = nullTime(archivedAt)
		r.Membership.DeletedAt = nullTime(deletedAt)
		r.Membership.LastReadAt = nullTime(lastReadAt)
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		if err := s.fillInboxRow(ctx, userID, &list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *Store) fillInboxRow(ctx context.Context, userID int64, r *InboxRow) error {
	since := int64(0)
	if r.Membership.DeletedAt != nil {
		since = msec(*r.Membership.DeletedAt)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.sender_id, u.username, m.content, m.message_type, m.created_at
		FROM messages m JOIN users u ON u.id=m.sender_id
		WHERE m.conversation_id=? AND m.created_at >= ?
		ORDER BY m.created_at DESC LIMIT 1`, r.Conversation.ID, since)

	var msg Message
	var created int64
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.Type, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// conversation with no visible messages yet
	case err != nil:
		return err
	default:
		msg.ConversationID = r.Conversation.ID
		msg.CreatedAt = fromMsec(created)
		r.LastMessage = &msg
	}

	if r.Conversation.Kind == KindGroup {
		return nil
	}
	row = s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.image
		FROM memberships m JOIN users u ON u.id=m.user_id
		WHERE m.conversation_id=? AND m.user_id != ? LIMIT 1`, r.Conversation.ID, userID)
	err = row.Scan(&r.OtherUserID, &r.OtherName, &r.OtherImage)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return nil
}

// CoMemberIDs returns the distinct users sharing at least one conversation
// with the given user. Used for presence fan-out.
func (s *Store) CoMemberIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT m2.user_id
		FROM memberships m1
		JOIN memberships m2 ON m1.conversation_id = m2.conversation_id
		WHERE m1.user_id = ? AND m2.user_id != ?`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentConversationIDs returns conversations whose updated_at is at or
// after the cutoff. The reconciliation job scans these.
func (s *Store) RecentConversationIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE updated_at >= ?`, msec(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
