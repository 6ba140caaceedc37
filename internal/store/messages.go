package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateMessage persists a message together with the sender's own read
// receipt and the conversation's updated_at bump, in one transaction. A
// message is never observable without its self-receipt.
//
// The timestamp is assigned here, monotonically per conversation: the
// store, not the caller, is the ordering authority.
func (s *Store) CreateMessage(ctx context.Context, convID, senderID int64, content, msgType string) (*Message, error) {
	mem, err := s.Membership(ctx, convID, senderID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	if mem.IsArchived {
		return nil, ErrNotAMember
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id=?`, convID).Scan(&last); err != nil {
		return nil, err
	}
	at := msec(time.Now())
	if last.Valid && at <= last.Int64 {
		at = last.Int64 + 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, message_type, created_at)
		VALUES (?, ?, ?, ?, ?)`, convID, senderID, content, msgType, at)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		id, senderID, at); err != nil {
		return nil, fmt.Errorf("insert self receipt: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at=? WHERE id=?`, at, convID); err != nil {
		return nil, fmt.Errorf("bump conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var senderName string
	_ = s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE id=?`, senderID).Scan(&senderName)

	created := fromMsec(at)
	return &Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        content,
		Type:           msgType,
		CreatedAt:      created,
		Reads:          []ReadReceipt{{MessageID: id, UserID: senderID, ReadAt: created}},
	}, nil
}

// MarkRead records a read receipt for one message. Idempotent: at most
// one receipt per (message, user).
func (s *Store) MarkRead(ctx context.Context, messageID, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		messageID, userID, msec(at))
	return err
}

// MarkAllRead creates receipts for every message still unread in the
// member's visible window, zeroes the durable counter and bumps
// last_read_at. Returns the number of receipts created.
func (s *Store) MarkAllRead(ctx context.Context, convID, userID int64, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id=?
		  AND m.created_at >= COALESCE((SELECT deleted_at FROM memberships
		                                WHERE conversation_id=? AND user_id=?), 0)`,
		userID, msec(at), convID, convID, userID)
	if err != nil {
		return 0, fmt.Errorf("insert receipts: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `
		UPDATE memberships SET unread_count=0, last_read_at=?
		WHERE conversation_id=? AND user_id=?`,
		msec(at), convID, userID); err != nil {
		return 0, fmt.Errorf("reset counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountUnread recomputes the authoritative unread count: messages in the
// conversation at or after the member's deleted_at cursor with no receipt
// for this member.
func (s *Store) CountUnread(ctx context.Context, convID, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM messages m
		WHERE m.conversation_id=?
		  AND m.created_at >= COALESCE((SELECT deleted_at FROM memberships
		                                WHERE conversation_id=? AND user_id=?), 0)
		  AND NOT EXISTS (SELECT 1 FROM message_reads r
		                  WHERE r.message_id=m.id AND r.user_id=?)`,
		convID, convID, userID, userID).Scan(&n)
	return n, err
}

// IncrementUnread bumps the durable membership counter by one. The cache
// value is never derived from this increment; callers recount via
// CountUnread and overwrite.
func (s *Store) IncrementUnread(ctx context.Context, convID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET unread_count = unread_count + 1
		WHERE conversation_id=? AND user_id=?`, convID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages returns a page of the member's visible history, newest first,
// with read receipts attached. ErrNotAMember if the user has no
// membership in the conversation.
func (s *Store) Messages(ctx context.Context, convID, userID int64, limit, offset int) ([]Message, error) {
	mem, err := s.Membership(ctx, convID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	since := int64(0)
	if mem.DeletedAt != nil {
		since = msec(*mem.DeletedAt)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.sender_id, u.username, m.content, m.message_type, m.created_at
		FROM messages m JOIN users u ON u.id=m.sender_id
		WHERE m.conversation_id=? AND m.created_at >= ?
		ORDER BY m.created_at DESC LIMIT ? OFFSET ?`,
		convID, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.Type, &created); err != nil {
			return nil, err
		}
		m.ConversationID = convID
		m.CreatedAt = fromMsec(created)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachReads(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) attachReads(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(msgs)), ",")
	args := make([]any, len(msgs))
	byID := make(map[int64]*Message, len(msgs))
	for i := range msgs {
		args[i] = msgs[i].ID
		byID[msgs[i].ID] = &msgs[i]
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT message_id, user_id, read_at FROM message_reads WHERE message_id IN (%s)`, placeholders),
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r ReadReceipt
		var at int64
		if err := rows.Scan(&r.MessageID, &r.UserID, &at); err != nil {
			return err
		}
		r.ReadAt = fromMsec(at)
		if m, ok := byID[r.MessageID]; ok {
			m.Reads = append(m.Reads, r)
		}
	}
	return rows.Err()
}
