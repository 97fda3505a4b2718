// Package broadcaster sits between the Process Supervisor and both the
// Durable Store and the Subscription Manager: it is the single reader of
// the supervisor's event stream and turns each event into a store update, a
// client-facing message, or both.
package broadcaster

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/process"
	"github.com/agentfleet/agentfleetd/internal/store"
)

// Publisher is the subset of the Subscription Manager the broadcaster needs.
// Declaring it here (rather than importing the subscription package)
// keeps the dependency direction one way: subscription may depend on
// broadcaster's message shapes without a cycle back.
type Publisher interface {
	BroadcastToAgentSubscribers(agentID string, messageType string, payload any)
	BroadcastToWorkspaceSubscribers(workspaceID string, change string, data any)
	BroadcastUsage(payload any)
}

// WorkspaceChange names a kind of workspace-scoped broadcast.
type WorkspaceChange string

const (
	ChangeWorktreeAdded   WorkspaceChange = "worktree_added"
	ChangeWorktreeRemoved WorkspaceChange = "worktree_removed"
	ChangeAgentAdded      WorkspaceChange = "agent_added"
	ChangeAgentRemoved    WorkspaceChange = "agent_removed"
	ChangeAgentUpdated    WorkspaceChange = "agent_updated"
)

// OutputMessage is the agent:output broadcast payload.
type OutputMessage struct {
	Content     string `json:"content"`
	Role        string `json:"role"`
	IsStreaming bool   `json:"isStreaming"`
}

// StatusMessage is the agent:status broadcast payload.
type StatusMessage struct {
	Previous store.AgentStatus `json:"previous"`
	New      store.AgentStatus `json:"new"`
	Reason   string            `json:"reason,omitempty"`
}

// ContextMessage is the agent:context broadcast payload.
type ContextMessage struct {
	ContextLevel int `json:"contextLevel"`
}

// ErrorMessage is the agent:error broadcast payload.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TerminatedMessage is the agent:terminated broadcast payload.
type TerminatedMessage struct {
	ExitCode *int   `json:"exitCode,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Reason   string `json:"reason"`
}

// Broadcaster drains a Manager's event stream, keeping a short-lived
// per-agent "previous status" map and a per-agent accumulating output
// buffer, both owned exclusively by the single goroutine running Run.
type Broadcaster struct {
	repo      store.Repository
	publisher Publisher
	log       *logger.Logger

	previousStatus map[string]store.AgentStatus
	accumulated    map[string]*strings.Builder
	sawError       map[string]bool
}

// New builds a Broadcaster over repo and publisher.
func New(repo store.Repository, publisher Publisher, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		repo:           repo,
		publisher:      publisher,
		log:            log,
		previousStatus: make(map[string]store.AgentStatus),
		accumulated:    make(map[string]*strings.Builder),
		sawError:       make(map[string]bool),
	}
}

// Run drains events until the channel closes or ctx is cancelled. It should
// be launched in its own goroutine; it is the only goroutine that reads
// events, so per-agent ordering in the source channel is preserved end to
// end.
func (b *Broadcaster) Run(ctx context.Context, events <-chan process.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, ev process.Event) {
	switch ev.Type {
	case process.EventOutput:
		b.handleOutput(ctx, ev)
	case process.EventStatus:
		b.handleStatus(ctx, ev)
	case process.EventContext:
		b.handleContext(ctx, ev)
	case process.EventWaiting:
		// purely informational; agent:status already carries the waiting
		// transition, so there's nothing further to persist or forward.
	case process.EventError:
		b.handleError(ctx, ev)
	case process.EventExit:
		b.handleExit(ctx, ev)
	}
}

func (b *Broadcaster) handleOutput(ctx context.Context, ev process.Event) {
	if ev.Streaming {
		buf, ok := b.accumulated[ev.AgentID]
		if !ok {
			buf = &strings.Builder{}
			b.accumulated[ev.AgentID] = buf
		}
		buf.WriteString(ev.Text)

		b.publisher.BroadcastToAgentSubscribers(ev.AgentID, "agent:output", OutputMessage{
			Content: ev.Text, Role: "assistant", IsStreaming: true,
		})
		return
	}

	buf, ok := b.accumulated[ev.AgentID]
	if ok && buf.Len() > 0 {
		content := buf.String()
		isComplete := true
		if _, err := b.repo.CreateMessage(ctx, &store.Message{
			AgentID: ev.AgentID, Role: store.RoleAssistant, Content: content, IsComplete: isComplete,
		}); err != nil && b.log != nil {
			b.log.Warn("persist accumulated message failed", zap.String("agentId", ev.AgentID), zap.Error(err))
		}
	}
	delete(b.accumulated, ev.AgentID)
}

func (b *Broadcaster) handleStatus(ctx context.Context, ev process.Event) {
	newStatus := toStoreStatus(ev.Status)
	prev, had := b.previousStatus[ev.AgentID]
	if had && prev == newStatus {
		return
	}
	b.previousStatus[ev.AgentID] = newStatus

	if _, err := b.repo.UpdateAgent(ctx, ev.AgentID, store.AgentUpdate{Status: &newStatus}); err != nil && b.log != nil {
		b.log.Warn("persist status update failed", zap.String("agentId", ev.AgentID), zap.Error(err))
	}

	reason := ""
	switch newStatus {
	case store.StatusWaiting:
		reason = "awaiting_input"
	case store.StatusError:
		reason = "process_error"
	case store.StatusFinished:
		reason = "completed"
	}

	b.publisher.BroadcastToAgentSubscribers(ev.AgentID, "agent:status", StatusMessage{
		Previous: prev, New: newStatus, Reason: reason,
	})
}

func (b *Broadcaster) handleContext(ctx context.Context, ev process.Event) {
	level := ev.Context
	if _, err := b.repo.UpdateAgent(ctx, ev.AgentID, store.AgentUpdate{ContextLevel: &level}); err != nil && b.log != nil {
		b.log.Warn("persist context update failed", zap.String("agentId", ev.AgentID), zap.Error(err))
	}
	b.publisher.BroadcastToAgentSubscribers(ev.AgentID, "agent:context", ContextMessage{ContextLevel: level})
}

func (b *Broadcaster) handleError(ctx context.Context, ev process.Event) {
	b.sawError[ev.AgentID] = true
	now := time.Now().UTC()
	errStatus := store.StatusError
	if _, err := b.repo.UpdateAgent(ctx, ev.AgentID, store.AgentUpdate{
		Status: &errStatus, ClearPID: true, StoppedAt: &now,
	}); err != nil && b.log != nil {
		b.log.Warn("persist error status failed", zap.String("agentId", ev.AgentID), zap.Error(err))
	}

	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	b.publisher.BroadcastToAgentSubscribers(ev.AgentID, "agent:error", ErrorMessage{Code: "PROCESS_ERROR", Message: msg})
}

func (b *Broadcaster) handleExit(ctx context.Context, ev process.Event) {
	now := time.Now().UTC()
	finalStatus := store.StatusFinished
	exitedClean := ev.ExitCode != nil && *ev.ExitCode == 0
	if !exitedClean {
		finalStatus = store.StatusError
	}

	if _, err := b.repo.UpdateAgent(ctx, ev.AgentID, store.AgentUpdate{
		Status: &finalStatus, ClearPID: true, StoppedAt: &now,
	}); err != nil && b.log != nil {
		b.log.Warn("persist exit status failed", zap.String("agentId", ev.AgentID), zap.Error(err))
	}

	reason := "completed"
	switch {
	case ev.Signal == "terminated" || ev.Signal == "interrupt":
		reason = "user_stopped"
	case !exitedClean || b.sawError[ev.AgentID]:
		reason = "error"
	}

	b.publisher.BroadcastToAgentSubscribers(ev.AgentID, "agent:terminated", TerminatedMessage{
		ExitCode: ev.ExitCode, Signal: ev.Signal, Reason: reason,
	})

	delete(b.previousStatus, ev.AgentID)
	delete(b.accumulated, ev.AgentID)
	delete(b.sawError, ev.AgentID)
}

// BroadcastWorkspaceUpdate is the Agent Service's imperative hook for
// workspace-scoped changes not driven by the supervisor's event stream.
func (b *Broadcaster) BroadcastWorkspaceUpdate(workspaceID string, change WorkspaceChange, data any) {
	b.publisher.BroadcastToWorkspaceSubscribers(workspaceID, string(change), data)
}

// BroadcastUsageUpdate forwards a usage-stat payload to subscribers.
func (b *Broadcaster) BroadcastUsageUpdate(payload any) {
	b.publisher.BroadcastUsage(payload)
}

func toStoreStatus(s process.Status) store.AgentStatus {
	switch s {
	case process.StatusRunning:
		return store.StatusRunning
	case process.StatusWaiting:
		return store.StatusWaiting
	case process.StatusError:
		return store.StatusError
	case process.StatusFinished:
		return store.StatusFinished
	default:
		return store.StatusWaiting
	}
}
