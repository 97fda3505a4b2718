package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migration is one forward-only, numbered schema step. Applied migrations
// are recorded in schema_migrations and never re-run.
type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		up: `
CREATE TABLE workspaces (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	path           TEXT NOT NULL UNIQUE,
	worktree_count INTEGER NOT NULL DEFAULT 0,
	agent_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE worktrees (
	id            TEXT PRIMARY KEY,
	workspace_id  TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	branch        TEXT NOT NULL DEFAULT '',
	path          TEXT NOT NULL,
	sort_mode     TEXT NOT NULL DEFAULT 'free',
	display_order INTEGER NOT NULL DEFAULT 0,
	is_main       INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	UNIQUE(workspace_id, path)
);
CREATE INDEX idx_worktrees_workspace ON worktrees(workspace_id);

CREATE TABLE agents (
	id              TEXT PRIMARY KEY,
	worktree_id     TEXT NOT NULL REFERENCES worktrees(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'waiting',
	context_level   INTEGER NOT NULL DEFAULT 0,
	mode            TEXT NOT NULL DEFAULT 'regular',
	permissions     TEXT NOT NULL DEFAULT '["read"]',
	display_order   INTEGER NOT NULL DEFAULT 0,
	pid             INTEGER,
	session_id      TEXT,
	parent_agent_id TEXT REFERENCES agents(id) ON DELETE SET NULL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	started_at      TIMESTAMP,
	stopped_at      TIMESTAMP,
	deleted_at      TIMESTAMP
);
CREATE INDEX idx_agents_worktree ON agents(worktree_id);
CREATE INDEX idx_agents_status ON agents(status);

CREATE TABLE messages (
	id          TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	token_count INTEGER,
	tool_name   TEXT,
	tool_input  TEXT,
	tool_output TEXT,
	is_complete INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX idx_messages_agent_created ON messages(agent_id, created_at);

CREATE TABLE usage_stats (
	date             TEXT NOT NULL,
	period           TEXT NOT NULL,
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	request_count    INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	model_breakdown  TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (date, period)
);
`,
	},
	{
		version: 2,
		name:    "repository_scripts",
		up: `
CREATE TABLE repository_scripts (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	kind         TEXT NOT NULL,
	command      TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX idx_repository_scripts_workspace ON repository_scripts(workspace_id);
`,
	},
}

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.sqlx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.sqlx.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := d.sqlx.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, timeNow().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		if d.log != nil {
			d.log.Info("applied migration", zap.Int("version", m.version), zap.String("name", m.name))
		}
	}

	return nil
}
