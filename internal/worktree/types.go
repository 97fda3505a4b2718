// Package worktree is a thin git shell-out adapter: it discovers, creates
// and removes git worktrees and reports branch/status facts. It never
// touches the Agent Runtime's durable state directly; the Control Surface
// writes whatever it reports through the normal repository operations.
package worktree

import "time"

// DiscoveredWorktree is one git-worktree-add entry found under a repository.
type DiscoveredWorktree struct {
	Path   string
	Branch string
	IsMain bool
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	RepositoryPath string
	Name           string
	BaseBranch     string
	CreateBranch   bool
}

// Created is the outcome of a successful Create.
type Created struct {
	ID     string
	Path   string
	Branch string
}

// Status is a point-in-time git status summary for one worktree.
type Status struct {
	Branch        string
	Clean         bool
	AheadCount    int
	BehindCount   int
	CheckedAt     time.Time
	UntrackedPath []string
}
