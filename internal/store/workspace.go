package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/ids"
)

func (r *SQLiteRepository) CreateWorkspace(ctx context.Context, name, path string) (*Workspace, error) {
	now := r.ids.Now()
	ws := &Workspace{
		ID:        r.ids.New(ids.Workspace),
		Name:      name,
		Path:      path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.conn().ExecContext(ctx, `
		INSERT INTO workspaces (id, name, path, worktree_count, agent_count, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)`,
		ws.ID, ws.Name, ws.Path, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return nil, wrapErr(err, "create workspace %s", path)
	}
	return ws, nil
}

func (r *SQLiteRepository) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var ws Workspace
	err := r.conn().GetContext(ctx, &ws, `SELECT * FROM workspaces WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("workspace %s not found", id)
	}
	if err != nil {
		return nil, wrapErr(err, "get workspace %s", id)
	}
	return &ws, nil
}

func (r *SQLiteRepository) GetWorkspaceByPath(ctx context.Context, path string) (*Workspace, error) {
	var ws Workspace
	err := r.conn().GetContext(ctx, &ws, `SELECT * FROM workspaces WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("workspace at path %s not found", path)
	}
	if err != nil {
		return nil, wrapErr(err, "get workspace by path %s", path)
	}
	return &ws, nil
}

func (r *SQLiteRepository) ListWorkspaces(ctx context.Context) ([]*Workspace, error) {
	var out []*Workspace
	if err := r.conn().SelectContext(ctx, &out, `SELECT * FROM workspaces ORDER BY name ASC`); err != nil {
		return nil, wrapErr(err, "list workspaces")
	}
	return out, nil
}

// DeleteWorkspace removes a workspace and, via ON DELETE CASCADE, every
// worktree, agent and message nested under it.
func (r *SQLiteRepository) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := r.conn().ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return wrapErr(err, "delete workspace %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFoundf("workspace %s not found", id)
	}
	return nil
}

// RecalculateCounts recomputes worktree_count and agent_count from the
// actual child rows, used as a repair path after bulk operations or after
// startup recovery.
func (r *SQLiteRepository) RecalculateCounts(ctx context.Context, workspaceID string) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "recalculate counts for workspace %s", workspaceID)
	}
	defer tx.Rollback()

	var worktreeCount int
	if err := tx.GetContext(ctx, &worktreeCount,
		`SELECT COUNT(*) FROM worktrees WHERE workspace_id = ?`, workspaceID); err != nil {
		return wrapErr(err, "count worktrees for workspace %s", workspaceID)
	}

	var agentCount int
	if err := tx.GetContext(ctx, &agentCount, `
		SELECT COUNT(*) FROM agents a
		JOIN worktrees w ON a.worktree_id = w.id
		WHERE w.workspace_id = ? AND a.deleted_at IS NULL`, workspaceID); err != nil {
		return wrapErr(err, "count agents for workspace %s", workspaceID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET worktree_count = ?, agent_count = ?, updated_at = ? WHERE id = ?`,
		worktreeCount, agentCount, r.ids.Now(), workspaceID); err != nil {
		return wrapErr(err, "update counts for workspace %s", workspaceID)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit count recalculation for workspace %s", workspaceID)
	}
	return nil
}

func (r *SQLiteRepository) adjustWorktreeCount(ctx context.Context, workspaceID string, delta int) error {
	_, err := r.conn().ExecContext(ctx, `
		UPDATE workspaces
		SET worktree_count = MAX(0, worktree_count + ?), updated_at = ?
		WHERE id = ?`, delta, r.ids.Now(), workspaceID)
	if err != nil {
		return wrapErr(err, "adjust worktree count for workspace %s", workspaceID)
	}
	return nil
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx, so adjustAgentCount can
// run standalone or as part of a caller's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) adjustAgentCount(ctx context.Context, exec execer, workspaceID string, delta int) error {
	_, err := exec.ExecContext(ctx, `
		UPDATE workspaces
		SET agent_count = MAX(0, agent_count + ?), updated_at = ?
		WHERE id = ?`, delta, r.ids.Now(), workspaceID)
	if err != nil {
		return wrapErr(err, "adjust agent count for workspace %s", workspaceID)
	}
	return nil
}
