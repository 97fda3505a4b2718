package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// newNonInteractiveGitCmd builds a git invocation that can never block on a
// credential prompt: CI and headless hosts have no terminal to answer one.
func newNonInteractiveGitCmd(ctx context.Context, repoPath string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_ASKPASS=echo",
		"SSH_ASKPASS=/bin/false",
		"GIT_SSH_COMMAND=ssh -oBatchMode=yes",
	)
	cmd.WaitDelay = 500 * time.Millisecond
	return cmd
}

func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := newNonInteractiveGitCmd(ctx, repoPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func isGitRepo(path string) bool {
	gitDir := path + "/.git"
	info, err := os.Stat(gitDir)
	if err != nil {
		return false
	}
	return info.IsDir() || info.Mode().IsRegular()
}

func currentBranchOf(path string) string {
	out, err := runGit(context.Background(), path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// parsePorcelainWorktreeList parses `git worktree list --porcelain` output
// into one entry per worktree block.
func parsePorcelainWorktreeList(out string) []DiscoveredWorktree {
	var entries []DiscoveredWorktree
	var current DiscoveredWorktree
	flush := func() {
		if current.Path != "" {
			entries = append(entries, current)
		}
		current = DiscoveredWorktree{}
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			ref := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(ref, "refs/heads/")
		case line == "":
			// block separator, handled by the next "worktree " line
		}
	}
	flush()

	if len(entries) > 0 {
		entries[0].IsMain = true
	}
	return entries
}

// parseStatusPorcelain reports whether `git status --porcelain` produced any
// lines (dirty) and lists untracked paths ("??" entries).
func parseStatusPorcelain(out string) (clean bool, untracked []string) {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return true, nil
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "?? ") {
			untracked = append(untracked, strings.TrimPrefix(line, "?? "))
		}
	}
	return false, untracked
}

// parseAheadBehind parses `git rev-list --left-right --count base...head`
// output of the form "<behind>\t<ahead>".
func parseAheadBehind(out string) (ahead, behind int) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0
	}
	behind, _ = strconv.Atoi(fields[0])
	ahead, _ = strconv.Atoi(fields[1])
	return ahead, behind
}
