package store

import "time"

// SortMode controls how a Worktree's agents are presented.
type SortMode string

const (
	SortFree   SortMode = "free"
	SortStatus SortMode = "status"
	SortName   SortMode = "name"
)

// AgentStatus mirrors the Agent Runtime's supervisor-visible state machine.
type AgentStatus string

const (
	StatusRunning  AgentStatus = "running"
	StatusWaiting  AgentStatus = "waiting"
	StatusError    AgentStatus = "error"
	StatusFinished AgentStatus = "finished"
)

// AgentMode selects the permission posture the child process is launched with.
type AgentMode string

const (
	ModeAuto    AgentMode = "auto"
	ModePlan    AgentMode = "plan"
	ModeRegular AgentMode = "regular"
)

// Permission is one bit of an Agent's allow-list.
type Permission string

const (
	PermRead    Permission = "read"
	PermWrite   Permission = "write"
	PermExecute Permission = "execute"
)

// MessageRole identifies the speaker of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// UsagePeriod buckets a UsageStat row.
type UsagePeriod string

const (
	PeriodDaily   UsagePeriod = "daily"
	PeriodWeekly  UsagePeriod = "weekly"
	PeriodMonthly UsagePeriod = "monthly"
)

// Workspace is a git repository root under which worktrees are registered.
type Workspace struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Path           string    `db:"path" json:"path"`
	WorktreeCount  int       `db:"worktree_count" json:"worktreeCount"`
	AgentCount     int       `db:"agent_count" json:"agentCount"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Worktree is a git-worktree-backed directory where agents run.
type Worktree struct {
	ID           string    `db:"id" json:"id"`
	WorkspaceID  string    `db:"workspace_id" json:"workspaceId"`
	Name         string    `db:"name" json:"name"`
	Branch       string    `db:"branch" json:"branch"`
	Path         string    `db:"path" json:"path"`
	SortMode     SortMode  `db:"sort_mode" json:"sortMode"`
	DisplayOrder int       `db:"display_order" json:"displayOrder"`
	IsMain       bool      `db:"is_main" json:"isMain"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Agent is a tracked configuration + lifecycle state for an interactive CLI
// child process under a specific worktree.
type Agent struct {
	ID             string      `db:"id" json:"id"`
	WorktreeID     string      `db:"worktree_id" json:"worktreeId"`
	Name           string      `db:"name" json:"name"`
	Status         AgentStatus `db:"status" json:"status"`
	ContextLevel   int         `db:"context_level" json:"contextLevel"`
	Mode           AgentMode   `db:"mode" json:"mode"`
	PermissionsRaw string      `db:"permissions" json:"-"`
	DisplayOrder   int         `db:"display_order" json:"displayOrder"`
	PID            *int        `db:"pid" json:"pid,omitempty"`
	SessionID      *string     `db:"session_id" json:"sessionId,omitempty"`
	ParentAgentID  *string     `db:"parent_agent_id" json:"parentAgentId,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
	StartedAt      *time.Time  `db:"started_at" json:"startedAt,omitempty"`
	StoppedAt      *time.Time  `db:"stopped_at" json:"stoppedAt,omitempty"`
	DeletedAt      *time.Time  `db:"deleted_at" json:"deletedAt,omitempty"`
}

// Permissions decodes the JSON-array permissions column.
func (a *Agent) Permissions() []Permission {
	return decodePermissions(a.PermissionsRaw)
}

// SetPermissions encodes perms into the JSON-array permissions column.
func (a *Agent) SetPermissions(perms []Permission) {
	a.PermissionsRaw = encodePermissions(perms)
}

// IsDeleted reports whether the agent has been soft-deleted.
func (a *Agent) IsDeleted() bool { return a.DeletedAt != nil }

// Message is an immutable turn in an Agent's conversation.
type Message struct {
	ID         string      `db:"id" json:"id"`
	AgentID    string      `db:"agent_id" json:"agentId"`
	Role       MessageRole `db:"role" json:"role"`
	Content    string      `db:"content" json:"content"`
	TokenCount *int        `db:"token_count" json:"tokenCount,omitempty"`
	ToolName   *string     `db:"tool_name" json:"toolName,omitempty"`
	ToolInput  *string     `db:"tool_input" json:"toolInput,omitempty"`
	ToolOutput *string     `db:"tool_output" json:"toolOutput,omitempty"`
	IsComplete bool        `db:"is_complete" json:"isComplete"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
}

// UsageStat is an append-only observed side output of the Agent Runtime.
type UsageStat struct {
	Date             string      `db:"date" json:"date"`
	Period           UsagePeriod `db:"period" json:"period"`
	InputTokens      int64       `db:"input_tokens" json:"inputTokens"`
	OutputTokens     int64       `db:"output_tokens" json:"outputTokens"`
	TotalTokens      int64       `db:"total_tokens" json:"totalTokens"`
	RequestCount     int64       `db:"request_count" json:"requestCount"`
	ErrorCount       int64       `db:"error_count" json:"errorCount"`
	ModelBreakdownRaw string     `db:"model_breakdown" json:"-"`
}

// RepositoryScript is a setup/cleanup shell command run when a worktree is
// materialized or torn down. It is a passive record: the core never reads
// it back, the Worktree Service writes it for operator visibility.
type RepositoryScript struct {
	ID          string    `db:"id" json:"id"`
	WorkspaceID string    `db:"workspace_id" json:"workspaceId"`
	Kind        string    `db:"kind" json:"kind"` // "setup" | "cleanup"
	Command     string    `db:"command" json:"command"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
