package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/ids"
)

func (r *SQLiteRepository) CreateWorktree(ctx context.Context, wt *Worktree) (*Worktree, error) {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err, "create worktree")
	}
	defer tx.Rollback()

	now := r.ids.Now()
	wt.ID = r.ids.New(ids.Worktree)
	if wt.SortMode == "" {
		wt.SortMode = SortFree
	}
	wt.CreatedAt = now
	wt.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO worktrees (id, workspace_id, name, branch, path, sort_mode, display_order, is_main, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wt.ID, wt.WorkspaceID, wt.Name, wt.Branch, wt.Path, wt.SortMode, wt.DisplayOrder, wt.IsMain, wt.CreatedAt, wt.UpdatedAt,
	); err != nil {
		return nil, wrapErr(err, "insert worktree %s", wt.Path)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE workspaces SET worktree_count = worktree_count + 1, updated_at = ? WHERE id = ?`,
		now, wt.WorkspaceID); err != nil {
		return nil, wrapErr(err, "bump worktree count for workspace %s", wt.WorkspaceID)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err, "commit worktree creation %s", wt.Path)
	}
	return wt, nil
}

func (r *SQLiteRepository) GetWorktree(ctx context.Context, id string) (*Worktree, error) {
	var wt Worktree
	err := r.conn().GetContext(ctx, &wt, `SELECT * FROM worktrees WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("worktree %s not found", id)
	}
	if err != nil {
		return nil, wrapErr(err, "get worktree %s", id)
	}
	return &wt, nil
}

func (r *SQLiteRepository) ListWorktreesByWorkspace(ctx context.Context, workspaceID string) ([]*Worktree, error) {
	var out []*Worktree
	err := r.conn().SelectContext(ctx, &out,
		`SELECT * FROM worktrees WHERE workspace_id = ? ORDER BY display_order ASC, created_at ASC`, workspaceID)
	if err != nil {
		return nil, wrapErr(err, "list worktrees for workspace %s", workspaceID)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateWorktree(ctx context.Context, id string, update WorktreeUpdate) (*Worktree, error) {
	wt, err := r.GetWorktree(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		wt.Name = *update.Name
	}
	if update.Branch != nil {
		wt.Branch = *update.Branch
	}
	if update.SortMode != nil {
		wt.SortMode = *update.SortMode
	}
	if update.IsMain != nil {
		wt.IsMain = *update.IsMain
	}
	wt.UpdatedAt = r.ids.Now()

	_, err = r.conn().ExecContext(ctx, `
		UPDATE worktrees SET name = ?, branch = ?, sort_mode = ?, is_main = ?, updated_at = ?
		WHERE id = ?`, wt.Name, wt.Branch, wt.SortMode, wt.IsMain, wt.UpdatedAt, id)
	if err != nil {
		return nil, wrapErr(err, "update worktree %s", id)
	}
	return wt, nil
}

// DeleteWorktree removes a worktree and, via ON DELETE CASCADE, every agent
// and message nested under it, then repairs both workspace counters.
func (r *SQLiteRepository) DeleteWorktree(ctx context.Context, id string) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "delete worktree %s", id)
	}
	defer tx.Rollback()

	var workspaceID string
	if err := tx.GetContext(ctx, &workspaceID, `SELECT workspace_id FROM worktrees WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFoundf("worktree %s not found", id)
		}
		return wrapErr(err, "look up worktree %s", id)
	}

	var activeAgentCount int
	if err := tx.GetContext(ctx, &activeAgentCount,
		`SELECT COUNT(*) FROM agents WHERE worktree_id = ? AND deleted_at IS NULL`, id); err != nil {
		return wrapErr(err, "count agents for worktree %s", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM worktrees WHERE id = ?`, id); err != nil {
		return wrapErr(err, "delete worktree %s", id)
	}

	now := r.ids.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE workspaces
		SET worktree_count = MAX(0, worktree_count - 1),
		    agent_count = MAX(0, agent_count - ?),
		    updated_at = ?
		WHERE id = ?`, activeAgentCount, now, workspaceID); err != nil {
		return wrapErr(err, "repair counts for workspace %s", workspaceID)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit worktree deletion %s", id)
	}
	return nil
}

// ReorderWorktrees assigns contiguous display_order values 0..N-1 following
// orderedIDs. It fails if any id doesn't belong to workspaceID.
func (r *SQLiteRepository) ReorderWorktrees(ctx context.Context, workspaceID string, orderedIDs []string) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "reorder worktrees for workspace %s", workspaceID)
	}
	defer tx.Rollback()

	if err := verifyMembership(ctx, tx, "worktrees", "workspace_id", workspaceID, orderedIDs); err != nil {
		return err
	}

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE worktrees SET display_order = ?, updated_at = ? WHERE id = ?`, i, r.ids.Now(), id); err != nil {
			return wrapErr(err, "reorder worktree %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit worktree reorder for workspace %s", workspaceID)
	}
	return nil
}

// verifyMembership checks that every id in ids belongs to parent, failing
// with a Validation error (a caller request-shape problem, not a storage
// fault) if any does not.
func verifyMembership(ctx context.Context, tx *sqlx.Tx, table, parentColumn, parentID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"SELECT id FROM "+table+" WHERE "+parentColumn+" = ? AND id IN (?)", parentID, ids)
	if err != nil {
		return wrapErr(err, "build membership query for %s", table)
	}
	query = tx.Rebind(query)

	var found []string
	if err := tx.SelectContext(ctx, &found, query, args...); err != nil {
		return wrapErr(err, "verify membership for %s", table)
	}
	if len(found) != len(ids) {
		return errs.Validationf("reorder contains an id not belonging to %s", parentID)
	}
	return nil
}
