package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/internal/process"
)

func TestParseContextLevelOnStderr(t *testing.T) {
	recs := Parse(Stderr, "context used: 42%\n")
	require.Len(t, recs, 1)
	assert.Equal(t, KindContext, recs[0].Kind)
	assert.Equal(t, 42, recs[0].Context)
}

func TestParseContextLevelClampedAbove100(t *testing.T) {
	recs := Parse(Stderr, "Context: 150%\n")
	require.Len(t, recs, 1)
	assert.Equal(t, 100, recs[0].Context)
}

func TestParseContextLevelEmitsOneRecognitionPerMatch(t *testing.T) {
	recs := Parse(Stderr, "context: 10% ... context: 55% ... context: 90%\n")
	require.Len(t, recs, 3)
	assert.Equal(t, 10, recs[0].Context)
	assert.Equal(t, 55, recs[1].Context)
	assert.Equal(t, 90, recs[2].Context)
}

func TestParseContextLevelIgnoredOnStdout(t *testing.T) {
	recs := Parse(Stdout, "context: 42%\n")
	assert.Empty(t, recs)
}

func TestParseWaitingCuesOnStderr(t *testing.T) {
	cases := []string{
		"waiting for input\n",
		">\n",
		"Should I continue?\n",
		"please provide a file path\n",
		"please confirm\n",
		"it is now the human turn\n",
	}
	for _, chunk := range cases {
		recs := Parse(Stderr, chunk)
		status, ok := LastStatus(recs)
		require.True(t, ok, "chunk %q", chunk)
		assert.Equal(t, process.StatusWaiting, status)

		var sawWaiting bool
		for _, r := range recs {
			if r.Kind == KindWaiting {
				sawWaiting = true
			}
		}
		assert.True(t, sawWaiting, "chunk %q", chunk)
	}
}

func TestParseErrorCuesOnStderr(t *testing.T) {
	cases := []string{
		"Error: something broke\n",
		"failed: could not write\n",
		"Exception: nil pointer\n",
		"fatal: disk full\n",
		"Permission denied\n",
		"rate limit exceeded\n",
	}
	for _, chunk := range cases {
		recs := Parse(Stderr, chunk)
		status, ok := LastStatus(recs)
		require.True(t, ok, "chunk %q", chunk)
		assert.Equal(t, process.StatusError, status)
	}
}

func TestParseThinkingCuesOnStdout(t *testing.T) {
	cases := []string{"❯ doing a thing", "Thinking about the plan", "Reading file.go", "EXECUTING step 3"}
	for _, chunk := range cases {
		recs := Parse(Stdout, chunk)
		status, ok := LastStatus(recs)
		require.True(t, ok, "chunk %q", chunk)
		assert.Equal(t, process.StatusRunning, status)
	}
}

func TestParseThinkingIgnoredOnStderr(t *testing.T) {
	recs := Parse(Stderr, "thinking about it")
	_, ok := LastStatus(recs)
	assert.False(t, ok)
}

func TestParseLastStatusWinsAcrossMultipleLines(t *testing.T) {
	chunk := "waiting for input\nerror: actually it broke\n"
	recs := Parse(Stderr, chunk)
	status, ok := LastStatus(recs)
	require.True(t, ok)
	assert.Equal(t, process.StatusError, status)
}

func TestParseNoRecognitionOnPlainText(t *testing.T) {
	recs := Parse(Stdout, "just some ordinary log output\n")
	assert.Empty(t, recs)
}

func TestParseQuestionMarkMidLineIsNotWaiting(t *testing.T) {
	recs := Parse(Stderr, "is this a question? no further text on this line matters\n")
	// endsInQuestionPattern anchors to end-of-line, so trailing text after
	// the '?' must not trigger a waiting cue.
	status, ok := LastStatus(recs)
	if ok {
		assert.NotEqual(t, process.StatusWaiting, status)
	}
}
