package sqlite

import (
	"os"
	"strings"
)

// Migrate applies the schema file at path (defaults to sql/schema.sql).
func (s *Sqlite) Migrate(path string) error {
	if path == "" {
		path = "sql/schema.sql"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stmts := strings.Split(string(b), ";\n")

	for _, stmt := range stmts {
		st := strings.TrimSpace(stmt)
		if st == "" {
			continue
		}
		if _, err = s.Db.Exec(st); err != nil {
			return err
		}
	}
	return nil
}
