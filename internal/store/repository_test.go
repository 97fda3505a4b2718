package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/internal/errs"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db)
}

func TestCreateWorkspaceAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	require.NotEmpty(t, ws.ID)
	require.Equal(t, 0, ws.WorktreeCount)

	byID, err := repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, ws.Path, byID.Path)

	byPath, err := repo.GetWorkspaceByPath(ctx, "/repos/demo")
	require.NoError(t, err)
	require.Equal(t, ws.ID, byPath.ID)

	_, err = repo.GetWorkspace(ctx, "ws_missing")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestCreateWorkspaceDuplicatePathConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)

	_, err = repo.CreateWorkspace(ctx, "demo-2", "/repos/demo")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Conflict))
}

func TestWorktreeLifecycleUpdatesWorkspaceCounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)

	wt, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "feature", Path: "/repos/demo/.worktrees/feature"})
	require.NoError(t, err)
	require.Equal(t, SortFree, wt.SortMode)

	ws, err = repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, 1, ws.WorktreeCount)

	newBranch := "feature/x"
	updated, err := repo.UpdateWorktree(ctx, wt.ID, WorktreeUpdate{Branch: &newBranch})
	require.NoError(t, err)
	require.Equal(t, newBranch, updated.Branch)

	_, err = repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteWorktree(ctx, wt.ID))

	ws, err = repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, 0, ws.WorktreeCount)
	require.Equal(t, 0, ws.AgentCount)
}

func TestAgentCreateDefaultsAndDisplayOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	wt, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "main", Path: "/repos/demo"})
	require.NoError(t, err)

	a1, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "first"})
	require.NoError(t, err)
	require.Equal(t, ModeRegular, a1.Mode)
	require.Equal(t, DefaultPermissions(), a1.Permissions())
	require.Equal(t, 0, a1.DisplayOrder)
	require.Equal(t, StatusWaiting, a1.Status)

	a2, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "second"})
	require.NoError(t, err)
	require.Equal(t, 1, a2.DisplayOrder)

	ws, err = repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, 2, ws.AgentCount)
}

func TestAgentSoftDeleteExcludesFromActiveAndRestores(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	wt, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "main", Path: "/repos/demo"})
	require.NoError(t, err)
	a, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "agent"})
	require.NoError(t, err)

	running := StatusRunning
	pid := 4242
	_, err = repo.UpdateAgent(ctx, a.ID, AgentUpdate{Status: &running, PID: &pid})
	require.NoError(t, err)

	deleted, err := repo.SoftDeleteAgent(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	require.Nil(t, deleted.PID)

	active, err := repo.ListActiveAgents(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	deletedList, err := repo.ListDeletedAgentsByWorktree(ctx, wt.ID)
	require.NoError(t, err)
	require.Len(t, deletedList, 1)

	ws, err = repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, 0, ws.AgentCount)

	restored, err := repo.RestoreAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, restored.DeletedAt)

	ws, err = repo.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, 1, ws.AgentCount)
}

func TestReorderAgentsRejectsForeignID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	wtA, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "a", Path: "/repos/demo/a"})
	require.NoError(t, err)
	wtB, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "b", Path: "/repos/demo/b"})
	require.NoError(t, err)

	a1, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wtA.ID, Name: "a1"})
	require.NoError(t, err)
	a2, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wtA.ID, Name: "a2"})
	require.NoError(t, err)
	foreign, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wtB.ID, Name: "b1"})
	require.NoError(t, err)

	err = repo.ReorderAgents(ctx, wtA.ID, []string{foreign.ID, a1.ID})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Validation))

	require.NoError(t, repo.ReorderAgents(ctx, wtA.ID, []string{a2.ID, a1.ID}))
	reordered, err := repo.ListAgentsByWorktree(ctx, wtA.ID, false)
	require.NoError(t, err)
	require.Equal(t, a2.ID, reordered[0].ID)
	require.Equal(t, a1.ID, reordered[1].ID)
}

func TestClearPIDForRunningAgentsOnStartup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	wt, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "main", Path: "/repos/demo"})
	require.NoError(t, err)
	a, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "agent"})
	require.NoError(t, err)

	running := StatusRunning
	pid := 99
	_, err = repo.UpdateAgent(ctx, a.ID, AgentUpdate{Status: &running, PID: &pid})
	require.NoError(t, err)

	n, err := repo.ClearPIDForRunningAgents(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	reloaded, err := repo.GetAgent(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.PID)
	require.Equal(t, StatusError, reloaded.Status)
}

func TestMessagesPaginateNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ws, err := repo.CreateWorkspace(ctx, "demo", "/repos/demo")
	require.NoError(t, err)
	wt, err := repo.CreateWorktree(ctx, &Worktree{WorkspaceID: ws.ID, Name: "main", Path: "/repos/demo"})
	require.NoError(t, err)
	a, err := repo.CreateAgent(ctx, AgentCreate{WorktreeID: wt.ID, Name: "agent"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := repo.CreateMessage(ctx, &Message{AgentID: a.ID, Role: RoleUser, Content: "hi", IsComplete: true})
		require.NoError(t, err)
	}

	page, hasMore, err := repo.ListMessages(ctx, a.ID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, hasMore)
}

func TestRecordUsageAccumulates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.RecordUsage(ctx, UsageDelta{Date: "2026-07-31", Period: PeriodDaily, InputTokens: 10, OutputTokens: 5, RequestCount: 1, Model: "claude"})
	require.NoError(t, err)
	err = repo.RecordUsage(ctx, UsageDelta{Date: "2026-07-31", Period: PeriodDaily, InputTokens: 3, OutputTokens: 1, RequestCount: 1, Model: "claude"})
	require.NoError(t, err)

	stats, err := repo.ListUsageStats(ctx, PeriodDaily, 10)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, int64(13), stats[0].InputTokens)
	require.Equal(t, int64(19), stats[0].TotalTokens)
	require.Equal(t, int64(2), stats[0].RequestCount)
}
