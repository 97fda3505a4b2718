// Package subscription is the Subscription Manager: an in-process registry
// of connected WebSocket clients and the agent/workspace topics each one has
// subscribed to, plus the WebSocket transport that feeds it.
package subscription

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/pkg/wsproto"
)

// Transport is the minimal send surface a connected client needs. Client
// satisfies this; tests can supply a fake without a real socket.
type Transport interface {
	Send(env wsproto.Envelope) bool
	Close(reason string)
}

// ConnectedClient is one registered transport and its subscriptions.
type ConnectedClient struct {
	ID          string
	transport   Transport
	connectedAt time.Time

	mu         sync.RWMutex
	agents     map[string]bool
	workspaces map[string]bool
	lastPing   time.Time
}

func newConnectedClient(id string, t Transport, now time.Time) *ConnectedClient {
	return &ConnectedClient{
		ID:          id,
		transport:   t,
		connectedAt: now,
		agents:      make(map[string]bool),
		workspaces:  make(map[string]bool),
		lastPing:    now,
	}
}

func (c *ConnectedClient) touchPing(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = now
}

func (c *ConnectedClient) lastPingAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *ConnectedClient) subscribeAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[agentID] = true
}

func (c *ConnectedClient) unsubscribeAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.agents, agentID)
}

func (c *ConnectedClient) subscribeWorkspace(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workspaces[workspaceID] = true
}

func (c *ConnectedClient) unsubscribeWorkspace(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.workspaces, workspaceID)
}

// Manager is the registry of connected clients and their subscriptions. It
// implements broadcaster.Publisher so the Event Broadcaster can reach
// subscribed clients without importing this package.
type Manager struct {
	log *logger.Logger
	now func() time.Time

	mu            sync.RWMutex
	clients       map[string]*ConnectedClient
	agentSubs     map[string]map[string]*ConnectedClient // agentID -> clientID -> client
	workspaceSubs map[string]map[string]*ConnectedClient // workspaceID -> clientID -> client
	nextID        int
}

// New builds an empty Manager.
func New(log *logger.Logger) *Manager {
	return &Manager{
		log:           log,
		now:           time.Now,
		clients:       make(map[string]*ConnectedClient),
		agentSubs:     make(map[string]map[string]*ConnectedClient),
		workspaceSubs: make(map[string]map[string]*ConnectedClient),
	}
}

// AddClient registers a fresh client over transport and returns its handle.
func (m *Manager) AddClient(transport Transport) *ConnectedClient {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := clientIDFor(m.nextID, m.now())
	c := newConnectedClient(id, transport, m.now())
	m.clients[id] = c
	return c
}

func clientIDFor(seq int, now time.Time) string {
	return "cl_" + now.UTC().Format("20060102T150405.000") + "_" + itoa(seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// RemoveClient drops a client's record and every subscription it held.
// Subsequent sends through the dropped transport are no-ops.
func (m *Manager) RemoveClient(c *ConnectedClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeClientLocked(c)
}

func (m *Manager) removeClientLocked(c *ConnectedClient) {
	if _, ok := m.clients[c.ID]; !ok {
		return
	}
	delete(m.clients, c.ID)

	c.mu.RLock()
	agentIDs := make([]string, 0, len(c.agents))
	for id := range c.agents {
		agentIDs = append(agentIDs, id)
	}
	workspaceIDs := make([]string, 0, len(c.workspaces))
	for id := range c.workspaces {
		workspaceIDs = append(workspaceIDs, id)
	}
	c.mu.RUnlock()

	for _, agentID := range agentIDs {
		if subs, ok := m.agentSubs[agentID]; ok {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(m.agentSubs, agentID)
			}
		}
	}
	for _, workspaceID := range workspaceIDs {
		if subs, ok := m.workspaceSubs[workspaceID]; ok {
			delete(subs, c.ID)
			if len(subs) == 0 {
				delete(m.workspaceSubs, workspaceID)
			}
		}
	}
}

// SubscribeToAgent adds c to the given agent's subscriber set.
func (m *Manager) SubscribeToAgent(c *ConnectedClient, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agentSubs[agentID]; !ok {
		m.agentSubs[agentID] = make(map[string]*ConnectedClient)
	}
	m.agentSubs[agentID][c.ID] = c
	c.subscribeAgent(agentID)
}

// UnsubscribeFromAgent removes c from the given agent's subscriber set.
func (m *Manager) UnsubscribeFromAgent(c *ConnectedClient, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.agentSubs[agentID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.agentSubs, agentID)
		}
	}
	c.unsubscribeAgent(agentID)
}

// SubscribeToWorkspace adds c to the given workspace's subscriber set.
func (m *Manager) SubscribeToWorkspace(c *ConnectedClient, workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaceSubs[workspaceID]; !ok {
		m.workspaceSubs[workspaceID] = make(map[string]*ConnectedClient)
	}
	m.workspaceSubs[workspaceID][c.ID] = c
	c.subscribeWorkspace(workspaceID)
}

// UnsubscribeFromWorkspace removes c from the given workspace's subscriber set.
func (m *Manager) UnsubscribeFromWorkspace(c *ConnectedClient, workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.workspaceSubs[workspaceID]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.workspaceSubs, workspaceID)
		}
	}
	c.unsubscribeWorkspace(workspaceID)
}

// UpdatePing records that c is still alive.
func (m *Manager) UpdatePing(c *ConnectedClient) {
	c.touchPing(m.now())
}

// GetStaleClients returns every client whose last ping predates now-maxAge.
func (m *Manager) GetStaleClients(maxAge time.Duration) []*ConnectedClient {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-maxAge)
	var stale []*ConnectedClient
	for _, c := range m.clients {
		if c.lastPingAt().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	return stale
}

// SendToClient sends env to a single client, returning whether it was sent.
func (m *Manager) SendToClient(c *ConnectedClient, env wsproto.Envelope) bool {
	return c.transport.Send(env)
}

// Broadcast sends env to every connected client, returning the number of
// successful sends.
func (m *Manager) Broadcast(env wsproto.Envelope) int {
	m.mu.RLock()
	clients := make([]*ConnectedClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.transport.Send(env) {
			sent++
		}
	}
	return sent
}

// broadcastToAgent sends env to every subscriber of agentID.
func (m *Manager) broadcastToAgent(agentID string, env wsproto.Envelope) int {
	m.mu.RLock()
	subs := m.agentSubs[agentID]
	clients := make([]*ConnectedClient, 0, len(subs))
	for _, c := range subs {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.transport.Send(env) {
			sent++
		}
	}
	return sent
}

// broadcastToWorkspace sends env to every subscriber of workspaceID.
func (m *Manager) broadcastToWorkspace(workspaceID string, env wsproto.Envelope) int {
	m.mu.RLock()
	subs := m.workspaceSubs[workspaceID]
	clients := make([]*ConnectedClient, 0, len(subs))
	for _, c := range subs {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.transport.Send(env) {
			sent++
		}
	}
	return sent
}

// BroadcastToAgentSubscribers implements broadcaster.Publisher.
func (m *Manager) BroadcastToAgentSubscribers(agentID string, messageType string, payload any) {
	env := wsproto.New(messageType, payload)
	m.broadcastToAgent(agentID, env)
}

// BroadcastToWorkspaceSubscribers implements broadcaster.Publisher.
func (m *Manager) BroadcastToWorkspaceSubscribers(workspaceID string, change string, data any) {
	env := wsproto.New(change, data)
	m.broadcastToWorkspace(workspaceID, env)
}

// BroadcastUsage implements broadcaster.Publisher, fanning a usage-stat
// payload out to every connected client.
func (m *Manager) BroadcastUsage(payload any) {
	env := wsproto.New("usage:update", payload)
	m.Broadcast(env)
}

// Cleanup closes every transport with a shutdown reason and empties the
// registry. Meant to run once, at server shutdown.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	clients := make([]*ConnectedClient, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*ConnectedClient)
	m.agentSubs = make(map[string]map[string]*ConnectedClient)
	m.workspaceSubs = make(map[string]map[string]*ConnectedClient)
	m.mu.Unlock()

	for _, c := range clients {
		c.transport.Close("server shutting down")
	}
}

// ClientCount returns the number of currently registered clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// HandleFrame validates and dispatches one client-to-server frame, replying
// on the client's own transport. It is the single entry point a Client's
// read pump calls for every inbound message.
func (m *Manager) HandleFrame(c *ConnectedClient, raw []byte) {
	env, err := wsproto.Decode(raw)
	if err != nil {
		m.sendError(c, "", wsproto.ErrInvalidJSON, "invalid JSON: "+err.Error())
		return
	}

	p, err := parseClientFrame(env)
	if err != nil {
		if _, ok := err.(errUnknownType); ok {
			m.sendError(c, env.ID, wsproto.ErrUnknownMessageType, err.Error())
			return
		}
		m.sendError(c, env.ID, wsproto.ErrInvalidMessage, err.Error())
		return
	}

	switch p.msgType {
	case wsproto.ClientSubscribeAgent:
		m.SubscribeToAgent(c, p.agentID)
		m.reply(c, p.id, wsproto.ServerSubscribed)
	case wsproto.ClientUnsubscribeAgent:
		m.UnsubscribeFromAgent(c, p.agentID)
		m.reply(c, p.id, wsproto.ServerUnsubscribed)
	case wsproto.ClientSubscribeWorkspace:
		m.SubscribeToWorkspace(c, p.workspaceID)
		m.reply(c, p.id, wsproto.ServerSubscribed)
	case wsproto.ClientUnsubscribeWorkspace:
		m.UnsubscribeFromWorkspace(c, p.workspaceID)
		m.reply(c, p.id, wsproto.ServerUnsubscribed)
	case wsproto.ClientPing:
		m.UpdatePing(c)
		pong := wsproto.New(wsproto.ServerPong, wsproto.PongPayload{Timestamp: m.now().UTC()}).WithID(p.id)
		c.transport.Send(pong)
	}
}

func (m *Manager) reply(c *ConnectedClient, id, msgType string) {
	env := wsproto.New(msgType, nil).WithID(id)
	c.transport.Send(env)
}

func (m *Manager) sendError(c *ConnectedClient, id, code, message string) {
	env := wsproto.New(wsproto.ServerError, wsproto.ErrorPayload{Code: code, Message: message}).WithID(id)
	if !c.transport.Send(env) && m.log != nil {
		m.log.Debug("dropped error reply to unwritable transport", zap.String("client_id", c.ID), zap.String("code", code))
	}
}
