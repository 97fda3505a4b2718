package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewHasPrefix(t *testing.T) {
	g := New()
	id := g.New(Agent)
	assert.True(t, HasPrefix(id, Agent))
	assert.False(t, HasPrefix(id, Workspace))
}

func TestGeneratorNewIsUnique(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := g.New(Message)
		require.False(t, seen[id], "duplicate id minted: %s", id)
		seen[id] = true
	}
}

func TestHasPrefixRejectsMalformed(t *testing.T) {
	assert.True(t, HasPrefix("ag_abc123", Agent))
	assert.False(t, HasPrefix("ag_", Agent))
	assert.False(t, HasPrefix("ws_ABC123", Workspace))
	assert.False(t, HasPrefix("wt-abc123", Worktree))
	assert.True(t, HasPrefix("msg_abc123", Message))
}

func TestNowISO8601Format(t *testing.T) {
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 123000000, time.UTC)
	g := NewWithClock(func() time.Time { return fixed })
	assert.Equal(t, "2026-07-31T12:00:00.123Z", g.NowISO8601())
}
