package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, msec(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, image, push_token, created_at FROM users WHERE id=?`, id)
	return scanUser(row)
}

// UserByUsername also returns the password hash for login verification.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, image, push_token, created_at, password_hash FROM users WHERE username=?`, username)

	var u User
	var hash string
	var created int64
	err := row.Scan(&u.ID, &u.Username, &u.Image, &u.PushToken, &created, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	u.CreatedAt = fromMsec(created)
	return &u, hash, nil
}

func (s *Store) SetPushToken(ctx context.Context, userID int64, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET push_token=? WHERE id=?`, token, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PushTokens returns the registered, non-empty push tokens for the given
// users, at most one per user.
func (s *Store) PushTokens(ctx context.Context, userIDs []int64) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT push_token FROM users WHERE id IN (%s) AND push_token != ''`, placeholders),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created int64
	err := row.Scan(&u.ID, &u.Username, &u.Image, &u.PushToken, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMsec(created)
	return &u, nil
}
