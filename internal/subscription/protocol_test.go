package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/pkg/wsproto"
)

func TestParseClientFrameSubscribeWorkspace(t *testing.T) {
	env, err := wsproto.Decode([]byte(`{"id":"r1","type":"subscribe:workspace","payload":{"workspaceId":"ws_xyz789"}}`))
	require.NoError(t, err)

	p, err := parseClientFrame(env)
	require.NoError(t, err)
	assert.Equal(t, "ws_xyz789", p.workspaceID)
	assert.Equal(t, "r1", p.id)
}

func TestParseClientFrameMalformedWorkspaceID(t *testing.T) {
	env, err := wsproto.Decode([]byte(`{"type":"subscribe:workspace","payload":{"workspaceId":"ag_oops"}}`))
	require.NoError(t, err)

	_, err = parseClientFrame(env)
	require.Error(t, err)
}

func TestParseClientFramePingHasNoRequiredPayload(t *testing.T) {
	env, err := wsproto.Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)

	p, err := parseClientFrame(env)
	require.NoError(t, err)
	assert.Equal(t, wsproto.ClientPing, p.msgType)
}

func TestParseClientFrameUnknownType(t *testing.T) {
	env, err := wsproto.Decode([]byte(`{"type":"bogus"}`))
	require.NoError(t, err)

	_, err = parseClientFrame(env)
	require.Error(t, err)
	_, ok := err.(errUnknownType)
	assert.True(t, ok)
}
