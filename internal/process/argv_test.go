package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgsModeFlags(t *testing.T) {
	assert.Equal(t, []string{"claude", "--dangerously-skip-permissions", "--verbose"},
		buildArgs("claude", SpawnRequest{Mode: ModeAuto}))
	assert.Equal(t, []string{"claude", "--plan", "--verbose"},
		buildArgs("claude", SpawnRequest{Mode: ModePlan}))
	assert.Equal(t, []string{"claude", "--verbose"},
		buildArgs("claude", SpawnRequest{Mode: ModeRegular}))
}

func TestBuildArgsSessionResume(t *testing.T) {
	got := buildArgs("claude", SpawnRequest{Mode: ModeRegular, SessionID: "sess-1"})
	assert.Equal(t, []string{"claude", "--resume", "sess-1", "--verbose"}, got)
}

func TestBuildArgsPermissionsSkippedInAutoMode(t *testing.T) {
	got := buildArgs("claude", SpawnRequest{Mode: ModeAuto, Permissions: []Permission{PermWrite, PermExecute}})
	assert.Equal(t, []string{"claude", "--dangerously-skip-permissions", "--verbose"}, got)
}

func TestBuildArgsPermissionsAppendedInNonAutoMode(t *testing.T) {
	got := buildArgs("claude", SpawnRequest{Mode: ModeRegular, Permissions: []Permission{PermRead, PermWrite, PermExecute}})
	assert.Equal(t, []string{
		"claude",
		"--allowedTools", "Write,Edit",
		"--allowedTools", "Bash",
		"--verbose",
	}, got)
}

func TestBuildArgsInitialPromptOnlyWithoutSession(t *testing.T) {
	withPrompt := buildArgs("claude", SpawnRequest{Mode: ModeRegular, InitialPrompt: "hello"})
	assert.Equal(t, []string{"claude", "--print", "hello", "--verbose"}, withPrompt)

	withSessionAndPrompt := buildArgs("claude", SpawnRequest{Mode: ModeRegular, InitialPrompt: "hello", SessionID: "sess-1"})
	assert.Equal(t, []string{"claude", "--resume", "sess-1", "--verbose"}, withSessionAndPrompt)
}

func TestBuildArgsFullOrdering(t *testing.T) {
	got := buildArgs("claude", SpawnRequest{
		Mode:        ModePlan,
		SessionID:   "sess-9",
		Permissions: []Permission{PermExecute},
		InitialPrompt: "ignored because session set",
	})
	assert.Equal(t, []string{
		"claude", "--plan", "--resume", "sess-9", "--allowedTools", "Bash", "--verbose",
	}, got)
}

func TestColourlessEnvAppendsWithoutMutatingBase(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	got := colourlessEnv(base)
	assert.Equal(t, []string{"PATH=/usr/bin", "FORCE_COLOR=0", "NO_COLOR=1"}, got)
	assert.Len(t, base, 1)
}
