package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/ids"
)

func (r *SQLiteRepository) CreateAgent(ctx context.Context, create AgentCreate) (*Agent, error) {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err, "create agent")
	}
	defer tx.Rollback()

	var workspaceID string
	if err := tx.GetContext(ctx, &workspaceID,
		`SELECT workspace_id FROM worktrees WHERE id = ?`, create.WorktreeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("worktree %s not found", create.WorktreeID)
		}
		return nil, wrapErr(err, "look up worktree %s", create.WorktreeID)
	}

	var maxOrder sql.NullInt64
	if err := tx.GetContext(ctx, &maxOrder,
		`SELECT MAX(display_order) FROM agents WHERE worktree_id = ? AND deleted_at IS NULL`, create.WorktreeID); err != nil {
		return nil, wrapErr(err, "compute display order for worktree %s", create.WorktreeID)
	}
	nextOrder := 0
	if maxOrder.Valid {
		nextOrder = int(maxOrder.Int64) + 1
	}

	mode := create.Mode
	if mode == "" {
		mode = ModeRegular
	}
	perms := create.Permissions
	if perms == nil {
		perms = DefaultPermissions()
	}

	now := r.ids.Now()
	a := &Agent{
		ID:            r.ids.New(ids.Agent),
		WorktreeID:    create.WorktreeID,
		Name:          create.Name,
		Status:        StatusWaiting,
		Mode:          mode,
		DisplayOrder:  nextOrder,
		SessionID:     create.SessionID,
		ParentAgentID: create.ParentAgentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.SetPermissions(perms)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agents (
			id, worktree_id, name, status, context_level, mode, permissions, display_order,
			pid, session_id, parent_agent_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, ?, ?, ?, NULL, ?, ?, ?, ?)`,
		a.ID, a.WorktreeID, a.Name, a.Status, a.Mode, a.PermissionsRaw, a.DisplayOrder,
		a.SessionID, a.ParentAgentID, a.CreatedAt, a.UpdatedAt,
	); err != nil {
		return nil, wrapErr(err, "insert agent %s", a.Name)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET agent_count = agent_count + 1, updated_at = ? WHERE id = ?`, now, workspaceID,
	); err != nil {
		return nil, wrapErr(err, "bump agent count for workspace %s", workspaceID)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err, "commit agent creation %s", a.Name)
	}
	return a, nil
}

func (r *SQLiteRepository) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := r.conn().GetContext(ctx, &a, `SELECT * FROM agents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("agent %s not found", id)
	}
	if err != nil {
		return nil, wrapErr(err, "get agent %s", id)
	}
	return &a, nil
}

func (r *SQLiteRepository) ListAgentsByWorktree(ctx context.Context, worktreeID string, includeDeleted bool) ([]*Agent, error) {
	var out []*Agent
	query := `SELECT * FROM agents WHERE worktree_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY display_order ASC, created_at ASC`
	if err := r.conn().SelectContext(ctx, &out, query, worktreeID); err != nil {
		return nil, wrapErr(err, "list agents for worktree %s", worktreeID)
	}
	return out, nil
}

func (r *SQLiteRepository) ListActiveAgents(ctx context.Context) ([]*Agent, error) {
	var out []*Agent
	err := r.conn().SelectContext(ctx, &out,
		`SELECT * FROM agents WHERE deleted_at IS NULL AND status IN (?, ?) ORDER BY created_at ASC`,
		StatusRunning, StatusWaiting)
	if err != nil {
		return nil, wrapErr(err, "list active agents")
	}
	return out, nil
}

func (r *SQLiteRepository) ListDeletedAgentsByWorktree(ctx context.Context, worktreeID string) ([]*Agent, error) {
	var out []*Agent
	err := r.conn().SelectContext(ctx, &out,
		`SELECT * FROM agents WHERE worktree_id = ? AND deleted_at IS NOT NULL ORDER BY deleted_at DESC`, worktreeID)
	if err != nil {
		return nil, wrapErr(err, "list deleted agents for worktree %s", worktreeID)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateAgent(ctx context.Context, id string, update AgentUpdate) (*Agent, error) {
	a, err := r.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		a.Name = *update.Name
	}
	if update.Mode != nil {
		a.Mode = *update.Mode
	}
	if update.Permissions != nil {
		a.SetPermissions(*update.Permissions)
	}
	if update.Status != nil {
		a.Status = *update.Status
	}
	if update.ContextLevel != nil {
		a.ContextLevel = *update.ContextLevel
	}
	if update.DisplayOrder != nil {
		a.DisplayOrder = *update.DisplayOrder
	}
	if update.SessionID != nil {
		a.SessionID = update.SessionID
	}
	if update.ClearPID {
		a.PID = nil
	} else if update.PID != nil {
		a.PID = update.PID
	}
	if update.StartedAt != nil {
		a.StartedAt = update.StartedAt
	}
	if update.StoppedAt != nil {
		a.StoppedAt = update.StoppedAt
	}
	a.UpdatedAt = r.ids.Now()

	_, err = r.conn().ExecContext(ctx, `
		UPDATE agents SET
			name = ?, status = ?, context_level = ?, mode = ?, permissions = ?, display_order = ?,
			pid = ?, session_id = ?, started_at = ?, stopped_at = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Status, a.ContextLevel, a.Mode, a.PermissionsRaw, a.DisplayOrder,
		a.PID, a.SessionID, a.StartedAt, a.StoppedAt, a.UpdatedAt, id)
	if err != nil {
		return nil, wrapErr(err, "update agent %s", id)
	}
	return a, nil
}

// SoftDeleteAgent marks an agent deleted without removing its row or its
// messages, sets its status to finished and clears any recorded pid since a
// deleted agent is never resumed by pid. The workspace's agent_count is
// decremented to match.
func (r *SQLiteRepository) SoftDeleteAgent(ctx context.Context, id string) (*Agent, error) {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err, "soft delete agent %s", id)
	}
	defer tx.Rollback()

	var a Agent
	if err := tx.GetContext(ctx, &a, `SELECT * FROM agents WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("agent %s not found", id)
		}
		return nil, wrapErr(err, "look up agent %s", id)
	}
	if a.DeletedAt != nil {
		tx.Rollback()
		return &a, nil
	}

	now := r.ids.Now()
	a.DeletedAt = &now
	a.PID = nil
	a.Status = StatusFinished
	a.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET deleted_at = ?, pid = NULL, status = ?, updated_at = ? WHERE id = ?`, now, StatusFinished, now, id,
	); err != nil {
		return nil, wrapErr(err, "soft delete agent %s", id)
	}

	var workspaceID string
	if err := tx.GetContext(ctx, &workspaceID,
		`SELECT workspace_id FROM worktrees WHERE id = ?`, a.WorktreeID); err != nil {
		return nil, wrapErr(err, "look up workspace for worktree %s", a.WorktreeID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET agent_count = MAX(0, agent_count - 1), updated_at = ? WHERE id = ?`, now, workspaceID,
	); err != nil {
		return nil, wrapErr(err, "decrement agent count for workspace %s", workspaceID)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err, "commit soft delete for agent %s", id)
	}
	return &a, nil
}

// HardDeleteAgent permanently removes an agent row. If the agent was still
// live (not already soft-deleted), its workspace's agent_count is decremented
// in the same transaction; an already soft-deleted agent was decremented once
// already at soft-delete time, so hard-deleting it must not touch the count
// again.
func (r *SQLiteRepository) HardDeleteAgent(ctx context.Context, id string) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "hard delete agent %s", id)
	}
	defer tx.Rollback()

	var a Agent
	if err := tx.GetContext(ctx, &a, `SELECT * FROM agents WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFoundf("agent %s not found", id)
		}
		return wrapErr(err, "look up agent %s", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return wrapErr(err, "hard delete agent %s", id)
	}

	if a.DeletedAt == nil {
		var workspaceID string
		if err := tx.GetContext(ctx, &workspaceID,
			`SELECT workspace_id FROM worktrees WHERE id = ?`, a.WorktreeID); err != nil {
			return wrapErr(err, "look up workspace for worktree %s", a.WorktreeID)
		}
		if err := r.adjustAgentCount(ctx, tx, workspaceID, -1); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit hard delete for agent %s", id)
	}
	return nil
}

// RestoreAgent clears deleted_at, sets status to waiting and re-admits the
// agent into its workspace's agent_count. The pid stays cleared as it was at
// delete time; the caller is responsible for re-launching it.
func (r *SQLiteRepository) RestoreAgent(ctx context.Context, id string) (*Agent, error) {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err, "restore agent %s", id)
	}
	defer tx.Rollback()

	var a Agent
	if err := tx.GetContext(ctx, &a, `SELECT * FROM agents WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFoundf("agent %s not found", id)
		}
		return nil, wrapErr(err, "look up agent %s", id)
	}
	if a.DeletedAt == nil {
		tx.Rollback()
		return &a, nil
	}

	now := r.ids.Now()
	a.DeletedAt = nil
	a.Status = StatusWaiting
	a.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET deleted_at = NULL, status = ?, updated_at = ? WHERE id = ?`, StatusWaiting, now, id,
	); err != nil {
		return nil, wrapErr(err, "restore agent %s", id)
	}

	var workspaceID string
	if err := tx.GetContext(ctx, &workspaceID,
		`SELECT workspace_id FROM worktrees WHERE id = ?`, a.WorktreeID); err != nil {
		return nil, wrapErr(err, "look up workspace for worktree %s", a.WorktreeID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET agent_count = agent_count + 1, updated_at = ? WHERE id = ?`, now, workspaceID,
	); err != nil {
		return nil, wrapErr(err, "increment agent count for workspace %s", workspaceID)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err, "commit restore for agent %s", id)
	}
	return &a, nil
}

// ReorderAgents assigns contiguous display_order values 0..N-1 following
// orderedIDs. It fails if any id doesn't belong to worktreeID.
func (r *SQLiteRepository) ReorderAgents(ctx context.Context, worktreeID string, orderedIDs []string) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "reorder agents for worktree %s", worktreeID)
	}
	defer tx.Rollback()

	if err := verifyMembership(ctx, tx, "agents", "worktree_id", worktreeID, orderedIDs); err != nil {
		return err
	}

	now := r.ids.Now()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET display_order = ?, updated_at = ? WHERE id = ?`, i, now, id); err != nil {
			return wrapErr(err, "reorder agent %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit agent reorder for worktree %s", worktreeID)
	}
	return nil
}

// ClearPIDForRunningAgents nulls the pid column and sets status to error for
// every agent that still records a pid, used once at process startup: a pid
// recorded before a restart refers to a process this instance no longer
// supervises.
func (r *SQLiteRepository) ClearPIDForRunningAgents(ctx context.Context) (int, error) {
	res, err := r.conn().ExecContext(ctx,
		`UPDATE agents SET pid = NULL, status = ?, updated_at = ? WHERE pid IS NOT NULL`,
		StatusError, r.ids.Now())
	if err != nil {
		return 0, wrapErr(err, "clear pid for running agents")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
