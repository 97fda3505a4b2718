package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/pkg/wsproto"
)

// fakeTransport records sent envelopes instead of writing to a real socket.
type fakeTransport struct {
	sent      []wsproto.Envelope
	closed    bool
	closeWhy  string
	rejectAll bool
}

func (f *fakeTransport) Send(env wsproto.Envelope) bool {
	if f.closed || f.rejectAll {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeTransport) Close(reason string) {
	f.closed = true
	f.closeWhy = reason
}

func newTestManagerForSub() *Manager {
	m := New(nil)
	return m
}

func TestAddClientSubscribeAndBroadcastToAgentSubscribers(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)
	require.NotEmpty(t, c.ID)

	m.SubscribeToAgent(c, "ag_abc123")
	m.BroadcastToAgentSubscribers("ag_abc123", "agent:output", map[string]string{"content": "hi"})

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "agent:output", tr.sent[0].Type)
}

func TestBroadcastToAgentSubscribersSkipsNonSubscribers(t *testing.T) {
	m := newTestManagerForSub()
	subscribed := &fakeTransport{}
	other := &fakeTransport{}
	c1 := m.AddClient(subscribed)
	m.AddClient(other)

	m.SubscribeToAgent(c1, "ag_1")
	m.BroadcastToAgentSubscribers("ag_1", "agent:output", nil)

	assert.Len(t, subscribed.sent, 1)
	assert.Empty(t, other.sent)
}

func TestUnsubscribeFromAgentStopsDelivery(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)

	m.SubscribeToAgent(c, "ag_1")
	m.UnsubscribeFromAgent(c, "ag_1")
	m.BroadcastToAgentSubscribers("ag_1", "agent:output", nil)

	assert.Empty(t, tr.sent)
}

func TestRemoveClientClearsAllSubscriptions(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)
	m.SubscribeToAgent(c, "ag_1")
	m.SubscribeToWorkspace(c, "ws_1")

	m.RemoveClient(c)

	assert.Empty(t, m.agentSubs["ag_1"])
	assert.Empty(t, m.workspaceSubs["ws_1"])
	assert.Equal(t, 0, m.ClientCount())
}

func TestGetStaleClientsReturnsOnlyClientsPastMaxAge(t *testing.T) {
	m := newTestManagerForSub()
	now := time.Now().UTC()
	m.now = func() time.Time { return now }

	fresh := m.AddClient(&fakeTransport{})
	stale := m.AddClient(&fakeTransport{})
	stale.lastPing = now.Add(-2 * time.Minute)

	got := m.GetStaleClients(time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
	assert.NotEqual(t, fresh.ID, got[0].ID)
}

func TestBroadcastCountsOnlySuccessfulSends(t *testing.T) {
	m := newTestManagerForSub()
	ok := &fakeTransport{}
	full := &fakeTransport{rejectAll: true}
	m.AddClient(ok)
	m.AddClient(full)

	sent := m.Broadcast(wsproto.New("noop", nil))
	assert.Equal(t, 1, sent)
}

func TestCleanupClosesAllTransportsAndEmptiesRegistry(t *testing.T) {
	m := newTestManagerForSub()
	tr1 := &fakeTransport{}
	tr2 := &fakeTransport{}
	m.AddClient(tr1)
	m.AddClient(tr2)

	m.Cleanup()

	assert.True(t, tr1.closed)
	assert.True(t, tr2.closed)
	assert.Equal(t, "server shutting down", tr1.closeWhy)
	assert.Equal(t, 0, m.ClientCount())
}

func TestHandleFrameSubscribeAgentRepliesSubscribed(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)

	raw := []byte(`{"id":"req1","type":"subscribe:agent","payload":{"agentId":"ag_abc123"}}`)
	m.HandleFrame(c, raw)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, wsproto.ServerSubscribed, tr.sent[0].Type)
	assert.Equal(t, "req1", tr.sent[0].ID)
	assert.True(t, c.agents["ag_abc123"])
}

func TestHandleFrameInvalidAgentIDRejectedAsInvalidMessage(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)

	raw := []byte(`{"type":"subscribe:agent","payload":{"agentId":"not-an-id"}}`)
	m.HandleFrame(c, raw)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, wsproto.ServerError, tr.sent[0].Type)
	var payload wsproto.ErrorPayload
	require.NoError(t, tr.sent[0].ParsePayload(&payload))
	assert.Equal(t, wsproto.ErrInvalidMessage, payload.Code)
}

func TestHandleFrameMalformedJSONRejected(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)

	m.HandleFrame(c, []byte(`not json`))

	require.Len(t, tr.sent, 1)
	var payload wsproto.ErrorPayload
	require.NoError(t, tr.sent[0].ParsePayload(&payload))
	assert.Equal(t, wsproto.ErrInvalidJSON, payload.Code)
}

func TestHandleFrameUnknownTypeRejected(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)

	m.HandleFrame(c, []byte(`{"type":"do_a_barrel_roll"}`))

	require.Len(t, tr.sent, 1)
	var payload wsproto.ErrorPayload
	require.NoError(t, tr.sent[0].ParsePayload(&payload))
	assert.Equal(t, wsproto.ErrUnknownMessageType, payload.Code)
}

func TestHandleFramePingUpdatesLastPingAndRepliesPong(t *testing.T) {
	m := newTestManagerForSub()
	tr := &fakeTransport{}
	c := m.AddClient(tr)
	past := time.Now().UTC().Add(-time.Hour)
	c.lastPing = past

	m.HandleFrame(c, []byte(`{"type":"ping"}`))

	require.Len(t, tr.sent, 1)
	assert.Equal(t, wsproto.ServerPong, tr.sent[0].Type)
	assert.True(t, c.lastPingAt().After(past))
}
