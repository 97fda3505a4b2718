package store

import (
	"github.com/jmoiron/sqlx"

	"github.com/agentfleet/agentfleetd/internal/ids"
)

// SQLiteRepository is the sqlite-backed Repository implementation. It is the
// only writer of the database file: the embedded store is configured for a
// single open connection, so every method here can assume it isn't racing
// another process for the file.
type SQLiteRepository struct {
	db  *DB
	ids *ids.Generator
}

// NewSQLiteRepository builds a Repository over an already-opened, migrated DB.
func NewSQLiteRepository(db *DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, ids: ids.New()}
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) conn() *sqlx.DB { return r.db.sqlx }
