package store

import (
	"context"
	"time"

	"github.com/agentfleet/agentfleetd/internal/ids"
)

func (r *SQLiteRepository) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	m.ID = r.ids.New(ids.Message)
	m.CreatedAt = r.ids.Now()

	_, err := r.conn().ExecContext(ctx, `
		INSERT INTO messages (id, agent_id, role, content, token_count, tool_name, tool_input, tool_output, is_complete, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.Role, m.Content, m.TokenCount, m.ToolName, m.ToolInput, m.ToolOutput, m.IsComplete, m.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "create message for agent %s", m.AgentID)
	}
	return m, nil
}

// ListMessages returns up to limit messages older than before (or the most
// recent limit if before is nil), newest first, plus whether more exist
// beyond the page.
func (r *SQLiteRepository) ListMessages(ctx context.Context, agentID string, limit int, before *time.Time) ([]*Message, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []*Message
	var err error
	if before != nil {
		err = r.conn().SelectContext(ctx, &rows, `
			SELECT * FROM messages WHERE agent_id = ? AND created_at < ?
			ORDER BY created_at DESC LIMIT ?`, agentID, *before, limit+1)
	} else {
		err = r.conn().SelectContext(ctx, &rows, `
			SELECT * FROM messages WHERE agent_id = ?
			ORDER BY created_at DESC LIMIT ?`, agentID, limit+1)
	}
	if err != nil {
		return nil, false, wrapErr(err, "list messages for agent %s", agentID)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	return rows, hasMore, nil
}
