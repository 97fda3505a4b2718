package store

import (
	"context"
	"time"
)

// Repository is the transactional persistence API over the five core
// entities. Every method is synchronous with respect to its caller;
// atomicity inside a single call is transactional. Constraint violations
// surface as *errs.Error with Kind=Conflict; anything else unexpected
// surfaces as Kind=StorageError.
type Repository interface {
	CreateWorkspace(ctx context.Context, name, path string) (*Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	GetWorkspaceByPath(ctx context.Context, path string) (*Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error
	RecalculateCounts(ctx context.Context, workspaceID string) error

	CreateWorktree(ctx context.Context, wt *Worktree) (*Worktree, error)
	GetWorktree(ctx context.Context, id string) (*Worktree, error)
	ListWorktreesByWorkspace(ctx context.Context, workspaceID string) ([]*Worktree, error)
	UpdateWorktree(ctx context.Context, id string, update WorktreeUpdate) (*Worktree, error)
	DeleteWorktree(ctx context.Context, id string) error
	ReorderWorktrees(ctx context.Context, workspaceID string, orderedIDs []string) error

	CreateAgent(ctx context.Context, create AgentCreate) (*Agent, error)
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgentsByWorktree(ctx context.Context, worktreeID string, includeDeleted bool) ([]*Agent, error)
	ListActiveAgents(ctx context.Context) ([]*Agent, error)
	ListDeletedAgentsByWorktree(ctx context.Context, worktreeID string) ([]*Agent, error)
	UpdateAgent(ctx context.Context, id string, update AgentUpdate) (*Agent, error)
	SoftDeleteAgent(ctx context.Context, id string) (*Agent, error)
	HardDeleteAgent(ctx context.Context, id string) error
	RestoreAgent(ctx context.Context, id string) (*Agent, error)
	ReorderAgents(ctx context.Context, worktreeID string, orderedIDs []string) error
	ClearPIDForRunningAgents(ctx context.Context) (int, error)

	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	ListMessages(ctx context.Context, agentID string, limit int, before *time.Time) ([]*Message, bool, error)

	RecordUsage(ctx context.Context, delta UsageDelta) error
	ListUsageStats(ctx context.Context, period UsagePeriod, limit int) ([]*UsageStat, error)

	CreateRepositoryScript(ctx context.Context, rs *RepositoryScript) (*RepositoryScript, error)
	ListRepositoryScripts(ctx context.Context, workspaceID string) ([]*RepositoryScript, error)

	Close() error
}

// WorktreeUpdate carries the only-provided-fields semantics of §4.1's update.
type WorktreeUpdate struct {
	Name     *string
	Branch   *string
	SortMode *SortMode
	IsMain   *bool
}

// AgentCreate is the input to CreateAgent; DisplayOrder is always computed
// server-side as max(existing non-deleted in worktree)+1.
type AgentCreate struct {
	WorktreeID    string
	Name          string
	Mode          AgentMode
	Permissions   []Permission
	SessionID     *string
	ParentAgentID *string
}

// AgentUpdate carries only-provided-fields update semantics. ClearPID lets a
// caller explicitly null the pid column, since a nil pointer means "leave
// unchanged"; no other nullable column can be cleared through it.
type AgentUpdate struct {
	Name         *string
	Mode         *AgentMode
	Permissions  *[]Permission
	Status       *AgentStatus
	ContextLevel *int
	DisplayOrder *int
	SessionID    *string

	PID      *int
	ClearPID bool

	StartedAt *time.Time
	StoppedAt *time.Time
}

// UsageDelta accumulates into the per-(date,period) UsageStat row.
type UsageDelta struct {
	Date         string
	Period       UsagePeriod
	InputTokens  int64
	OutputTokens int64
	RequestCount int64
	ErrorCount   int64
	Model        string
}
