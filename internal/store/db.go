package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
)

// DB wraps the single-writer embedded sqlite database.
type DB struct {
	sqlx *sqlx.DB
	log  *logger.Logger
}

// Config configures the embedded store's single database file.
type Config struct {
	Path     string
	MaxConns int
}

// Open opens (creating if necessary) the embedded database file, applies
// pending migrations, and returns a ready DB.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	path, err := normalizePath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("normalize database path: %w", err)
	}
	if err := ensureParentDir(path); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_mode=rwc&_journal_mode=WAL", path)
	conn, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	// sqlite is single-writer; a pool of more than one connection just
	// serializes anyway and risks SQLITE_BUSY under our own feet.
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{sqlx: conn, log: log}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.sqlx.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.sqlx.PingContext(ctx)
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty database path")
	}
	if path == ":memory:" {
		return path, nil
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func ensureParentDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
