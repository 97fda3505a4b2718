package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAgentScript writes a tiny shell script that ignores argv (buildArgs
// always appends flags a real child wouldn't see from a bare `cat`) and
// execs `cat`, so stdin is mirrored verbatim to stdout and the process exits
// cleanly on EOF. This stands in for a real CLI agent binary in tests.
func fakeAgentScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec cat\n"), 0o755))
	return path
}

func newTestManager(t *testing.T) *Manager {
	return NewManager(fakeAgentScript(t), nil, nil)
}

func drainUntil(t *testing.T, m *Manager, want EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-m.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestSpawnRunsChildAndEmitsOutput(t *testing.T) {
	m := newTestManager(t)
	rec, err := m.Spawn(context.Background(), SpawnRequest{AgentID: "ag_1", WorkingDir: "."})
	require.NoError(t, err)
	assert.NotZero(t, rec.PID)
	assert.True(t, m.IsRunning("ag_1"))

	require.NoError(t, m.SendMessage("ag_1", "hello-from-child"))

	ev := drainUntil(t, m, EventOutput, 2*time.Second)
	require.Equal(t, "ag_1", ev.AgentID)
	assert.Contains(t, ev.Text, "hello-from-child")

	require.NoError(t, m.Stop("ag_1", false))

	exitEv := drainUntil(t, m, EventExit, 2*time.Second)
	require.Equal(t, "ag_1", exitEv.AgentID)
	assert.Equal(t, "terminated", exitEv.Signal)
	assert.False(t, m.IsRunning("ag_1"))
}

func TestSpawnDuplicateAgentIDConflicts(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Spawn(context.Background(), SpawnRequest{AgentID: "ag_dup", WorkingDir: "."})
	require.NoError(t, err)
	defer m.Stop("ag_dup", true)

	_, err = m.Spawn(context.Background(), SpawnRequest{AgentID: "ag_dup", WorkingDir: "."})
	require.Error(t, err)
}

func TestSendMessageToUnknownAgentNotFound(t *testing.T) {
	m := newTestManager(t)
	err := m.SendMessage("ag_missing", "hi")
	require.Error(t, err)
}

func TestStopForceKillsImmediately(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Spawn(context.Background(), SpawnRequest{AgentID: "ag_force", WorkingDir: "."})
	require.NoError(t, err)

	require.NoError(t, m.Stop("ag_force", true))
	exitEv := drainUntil(t, m, EventExit, 2*time.Second)
	assert.Equal(t, "ag_force", exitEv.AgentID)
}

func TestGetRunningCountTracksActiveAgents(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, 0, m.GetRunningCount())

	_, err := m.Spawn(context.Background(), SpawnRequest{AgentID: "ag_count", WorkingDir: "."})
	require.NoError(t, err)
	assert.Equal(t, 1, m.GetRunningCount())

	require.NoError(t, m.Stop("ag_count", true))
	drainUntil(t, m, EventExit, 2*time.Second)
	assert.Equal(t, 0, m.GetRunningCount())
}
