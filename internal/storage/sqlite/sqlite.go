package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

type Sqlite struct {
	Db *sql.DB
}

func New(dsn string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, err
	}

	// All writes serialize through one connection; per-conversation
	// message timestamp assignment relies on this.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL so history reads don't block sends; wait up to 5s on a lock.
	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return &Sqlite{Db: db}, nil
}

func (s *Sqlite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}
