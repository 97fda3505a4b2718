package store

import (
	"context"

	"github.com/agentfleet/agentfleetd/internal/ids"
)

func (r *SQLiteRepository) CreateRepositoryScript(ctx context.Context, rs *RepositoryScript) (*RepositoryScript, error) {
	rs.ID = r.ids.New(ids.Script)
	rs.CreatedAt = r.ids.Now()

	_, err := r.conn().ExecContext(ctx, `
		INSERT INTO repository_scripts (id, workspace_id, kind, command, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rs.ID, rs.WorkspaceID, rs.Kind, rs.Command, rs.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "create repository script for workspace %s", rs.WorkspaceID)
	}
	return rs, nil
}

func (r *SQLiteRepository) ListRepositoryScripts(ctx context.Context, workspaceID string) ([]*RepositoryScript, error) {
	var out []*RepositoryScript
	err := r.conn().SelectContext(ctx, &out,
		`SELECT * FROM repository_scripts WHERE workspace_id = ? ORDER BY created_at ASC`, workspaceID)
	if err != nil {
		return nil, wrapErr(err, "list repository scripts for workspace %s", workspaceID)
	}
	return out, nil
}
