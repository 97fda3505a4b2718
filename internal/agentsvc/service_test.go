package agentsvc

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/internal/broadcaster"
	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/process"
	"github.com/agentfleet/agentfleetd/internal/store"
)

// fakePublisher records every broadcast the Event Broadcaster forwards to
// subscribers, standing in for the Subscription Manager.
type fakePublisher struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	scope   string // "agent" | "workspace" | "usage"
	id      string
	msgType string
	payload any
}

func (f *fakePublisher) BroadcastToAgentSubscribers(agentID string, messageType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{scope: "agent", id: agentID, msgType: messageType, payload: payload})
}

func (f *fakePublisher) BroadcastToWorkspaceSubscribers(workspaceID string, change string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{scope: "workspace", id: workspaceID, msgType: change, payload: data})
}

func (f *fakePublisher) BroadcastUsage(payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{scope: "usage", payload: payload})
}

func (f *fakePublisher) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeAgentScript writes a tiny shell script that ignores argv and execs
// cat, mirroring stdin to stdout so a spawned "agent" is a real child
// process without depending on any actual CLI agent binary.
func fakeAgentScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	return path
}

type testHarness struct {
	svc  *Service
	repo store.Repository
	proc *process.Manager
	pub  *fakePublisher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	db, err := store.Open(context.Background(), store.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := store.NewSQLiteRepository(db)
	procs := process.NewManager(fakeAgentScript(t), nil, nil)
	pub := &fakePublisher{}
	bcast := broadcaster.New(repo, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bcast.Run(ctx, procs.Events())

	return &testHarness{svc: New(repo, procs, bcast, nil), repo: repo, proc: procs, pub: pub}
}

func mustWorkspaceAndWorktree(t *testing.T, repo store.Repository) *store.Worktree {
	t.Helper()
	ctx := context.Background()
	ws, err := repo.CreateWorkspace(ctx, "demo", t.TempDir())
	require.NoError(t, err)

	wt, err := repo.CreateWorktree(ctx, &store.Worktree{
		WorkspaceID: ws.ID, Name: "main", Branch: "main", Path: t.TempDir(), IsMain: true,
	})
	require.NoError(t, err)
	return wt
}

func TestCreateAgentBroadcastsWorkspaceUpdate(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)

	agent, err := h.svc.CreateAgent(context.Background(), CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)
	assert.NotEmpty(t, agent.ID)

	calls := h.pub.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "workspace", calls[0].scope)
	assert.Equal(t, string(broadcaster.ChangeAgentAdded), calls[0].msgType)
}

func TestCreateAgentUnknownWorktreeNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateAgent(context.Background(), CreateAgentRequest{WorktreeID: "wt_missing", Name: "a1"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestStartAgentThenDuplicateStartConflicts(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	started, err := h.svc.StartAgent(ctx, agent.ID, "")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, started.Status)
	require.NotNil(t, started.PID)

	_, err = h.svc.StartAgent(ctx, agent.ID, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))

	_, err = h.svc.StopAgent(ctx, agent.ID, true)
	require.NoError(t, err)
}

func TestSendMessageToAgentQueuedWhenNotRunning(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	res, err := h.svc.SendMessageToAgent(ctx, agent.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "queued", res.Status)
	assert.False(t, res.Running)

	msgs, _, err := h.svc.ListMessages(ctx, agent.ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestSendMessageToAgentSentWhenRunning(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	_, err = h.svc.StartAgent(ctx, agent.ID, "")
	require.NoError(t, err)

	res, err := h.svc.SendMessageToAgent(ctx, agent.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "sent", res.Status)
	assert.True(t, res.Running)

	_, err = h.svc.StopAgent(ctx, agent.ID, true)
	require.NoError(t, err)
}

func TestRestoreAgentConflictsWhenNotDeleted(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	_, err = h.svc.RestoreAgent(ctx, agent.ID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))
}

func TestDeleteThenRestoreAgentRoundTrips(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteAgent(ctx, agent.ID, true))

	restored, err := h.svc.RestoreAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, restored.ID)
	assert.Nil(t, restored.DeletedAt)
}

func TestReorderAgentsRejectsMismatchedSet(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	a, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a"})
	require.NoError(t, err)
	b, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "b"})
	require.NoError(t, err)

	err = h.svc.ReorderAgents(ctx, wt.ID, []string{a.ID})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))

	err = h.svc.ReorderAgents(ctx, wt.ID, []string{b.ID, a.ID})
	require.NoError(t, err)

	list, err := h.repo.ListAgentsByWorktree(ctx, wt.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestForkAgentCopiesModeAndPermissions(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	source, err := h.svc.CreateAgent(ctx, CreateAgentRequest{
		WorktreeID: wt.ID, Name: "src", Mode: store.ModePlan, Permissions: []store.Permission{store.PermRead, store.PermWrite},
	})
	require.NoError(t, err)

	forked, err := h.svc.ForkAgent(ctx, source.ID, "src-fork")
	require.NoError(t, err)
	assert.Equal(t, store.ModePlan, forked.Mode)
	assert.ElementsMatch(t, []store.Permission{store.PermRead, store.PermWrite}, forked.Permissions())
	require.NotNil(t, forked.ParentAgentID)
	assert.Equal(t, source.ID, *forked.ParentAgentID)
}

func TestRecoverClearsStalePIDs(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	pid := 99999
	running := store.StatusRunning
	_, err = h.repo.UpdateAgent(ctx, agent.ID, store.AgentUpdate{Status: &running, PID: &pid})
	require.NoError(t, err)

	require.NoError(t, h.svc.Recover(ctx))

	reloaded, err := h.repo.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.PID)
	assert.Equal(t, store.StatusError, reloaded.Status)
}

func TestListMessagesDefaultsLimit(t *testing.T) {
	h := newHarness(t)
	wt := mustWorkspaceAndWorktree(t, h.repo)
	ctx := context.Background()
	agent, err := h.svc.CreateAgent(ctx, CreateAgentRequest{WorktreeID: wt.ID, Name: "a1"})
	require.NoError(t, err)

	_, err = h.svc.SendMessageToAgent(ctx, agent.ID, "hi")
	require.NoError(t, err)

	msgs, hasMore, err := h.svc.ListMessages(ctx, agent.ID, 0, nil)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, msgs, 1)
}
