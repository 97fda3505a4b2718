// Package constants provides application-wide constants and timeouts.
package constants

import "time"

const (
	// ShutdownTimeout is the maximum time main() waits for the HTTP server
	// and dependent services to drain on SIGINT/SIGTERM.
	ShutdownTimeout = 30 * time.Second

	// WorktreeSetupScriptTimeout bounds a worktree's setup script.
	WorktreeSetupScriptTimeout = 5 * time.Minute

	// WorktreeCleanupScriptTimeout bounds a worktree's cleanup script.
	WorktreeCleanupScriptTimeout = 5 * time.Minute

	// GitSyncTimeout bounds a best-effort fetch/pull before worktree creation.
	GitSyncTimeout = 8 * time.Second

	// OutputBufferLines is the ring-buffer capacity, in chunks, for an
	// agent's accumulated stdout and stderr. The buffer is cleared when the
	// agent exits; no subscriber path reads it back.
	OutputBufferLines = 2000
)
