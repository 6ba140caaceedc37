package store

import (
	"context"
	"fmt"
	"time"
)

// SweepExpiredNearby hard-deletes every nearby conversation whose
// expires_at has passed. Messages, memberships and receipts go with it
// via ON DELETE CASCADE. This is the only automatic conversation
// deletion path. Returns the number of conversations removed.
func (s *Store) SweepExpiredNearby(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE kind='nearby' AND expires_at IS NOT NULL AND expires_at <= ?`,
		msec(now))
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=?`, id); err != nil {
			return deleted, fmt.Errorf("delete conversation %d: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}
