package worktree

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agentfleet/agentfleetd/internal/errs"
)

// Adapter is the small git shell-out surface the Control Surface uses to
// discover, create and remove worktrees, and to report branch/status facts.
// It holds no durable state of its own.
type Adapter interface {
	Discover(ctx context.Context, repositoryPath string) ([]DiscoveredWorktree, error)
	Create(ctx context.Context, req CreateRequest) (*Created, error)
	Remove(ctx context.Context, repositoryPath, worktreePath string) error
	ListBranches(ctx context.Context, repositoryPath string) ([]string, error)
	Checkout(ctx context.Context, worktreePath, branch string) error
	Status(ctx context.Context, worktreePath, baseBranch string) (*Status, error)
}

// GitAdapter is the concrete Adapter backed by shelling out to the git
// binary, the same shape the Control Surface's predecessor used directly.
// It mints its own uuid surrogate keys rather than reaching into the
// Agent Runtime's prefixed-id family, since it sits outside the core.
type GitAdapter struct {
	now func() time.Time
}

// NewGitAdapter returns an Adapter that invokes the system git binary.
func NewGitAdapter() *GitAdapter {
	return &GitAdapter{now: time.Now}
}

// Discover lists every worktree git already knows about for repositoryPath,
// the main checkout first.
func (a *GitAdapter) Discover(ctx context.Context, repositoryPath string) ([]DiscoveredWorktree, error) {
	if !isGitRepo(repositoryPath) {
		return nil, errs.Validationf("%s is not a git repository", repositoryPath)
	}
	out, err := runGit(ctx, repositoryPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, errs.ProcessErrorf("git worktree list: %v", err)
	}
	return parsePorcelainWorktreeList(out), nil
}

// Create adds a new worktree under req.RepositoryPath, optionally creating
// req.Name as a new branch off req.BaseBranch.
func (a *GitAdapter) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if !isGitRepo(req.RepositoryPath) {
		return nil, errs.Validationf("%s is not a git repository", req.RepositoryPath)
	}

	path := filepath.Join(filepath.Dir(req.RepositoryPath), filepath.Base(req.RepositoryPath)+"-"+req.Name)

	args := []string{"worktree", "add"}
	if req.CreateBranch {
		args = append(args, "-b", req.Name, path)
		if req.BaseBranch != "" {
			args = append(args, req.BaseBranch)
		}
	} else {
		args = append(args, path, req.Name)
	}

	if _, err := runGit(ctx, req.RepositoryPath, args...); err != nil {
		return nil, errs.ProcessErrorf("git worktree add: %v", err)
	}

	branch := req.Name
	if !req.CreateBranch {
		branch = currentBranchOf(path)
	}

	return &Created{ID: uuid.New().String(), Path: path, Branch: branch}, nil
}

// Remove deletes a worktree with `git worktree remove --force`, falling back
// to removing the directory and running `git worktree prune` if git itself
// refuses.
func (a *GitAdapter) Remove(ctx context.Context, repositoryPath, worktreePath string) error {
	if _, err := runGit(ctx, repositoryPath, "worktree", "remove", "--force", worktreePath); err != nil {
		if rmErr := os.RemoveAll(worktreePath); rmErr != nil {
			return errs.ProcessErrorf("remove worktree dir %s: %v (git error: %v)", worktreePath, rmErr, err)
		}
		if _, pruneErr := runGit(ctx, repositoryPath, "worktree", "prune"); pruneErr != nil {
			return errs.ProcessErrorf("git worktree prune after manual removal: %v", pruneErr)
		}
	}
	return nil
}

// ListBranches lists local branch names known to repositoryPath.
func (a *GitAdapter) ListBranches(ctx context.Context, repositoryPath string) ([]string, error) {
	out, err := runGit(ctx, repositoryPath, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, errs.ProcessErrorf("git for-each-ref: %v", err)
	}
	var branches []string
	for _, line := range splitNonEmptyLines(out) {
		branches = append(branches, line)
	}
	return branches, nil
}

// Checkout switches worktreePath's working tree to branch.
func (a *GitAdapter) Checkout(ctx context.Context, worktreePath, branch string) error {
	if _, err := runGit(ctx, worktreePath, "checkout", branch); err != nil {
		return errs.ProcessErrorf("git checkout %s: %v", branch, err)
	}
	return nil
}

// Status reports worktreePath's current branch, dirty state and ahead/behind
// counts relative to baseBranch.
func (a *GitAdapter) Status(ctx context.Context, worktreePath, baseBranch string) (*Status, error) {
	branch := currentBranchOf(worktreePath)

	statusOut, err := runGit(ctx, worktreePath, "status", "--porcelain")
	if err != nil {
		return nil, errs.ProcessErrorf("git status: %v", err)
	}
	clean, untracked := parseStatusPorcelain(statusOut)

	var ahead, behind int
	if baseBranch != "" && baseBranch != branch {
		rangeOut, err := runGit(ctx, worktreePath, "rev-list", "--left-right", "--count", baseBranch+"..."+branch)
		if err == nil {
			ahead, behind = parseAheadBehind(rangeOut)
		}
	}

	return &Status{
		Branch:        branch,
		Clean:         clean,
		AheadCount:    ahead,
		BehindCount:   behind,
		CheckedAt:     a.now().UTC(),
		UntrackedPath: untracked,
	}, nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
