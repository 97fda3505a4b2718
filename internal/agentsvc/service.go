// Package agentsvc is the Agent Service: the orchestration layer that
// composes the Durable Store, the Process Supervisor and the Event
// Broadcaster behind one set of agent lifecycle operations. It is the only
// layer the Control Surface talks to for anything agent-shaped.
package agentsvc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/broadcaster"
	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/errs"
	"github.com/agentfleet/agentfleetd/internal/process"
	"github.com/agentfleet/agentfleetd/internal/store"
)

// Service composes the store, the process supervisor and the broadcaster
// into the operations in listed in the agent lifecycle surface.
type Service struct {
	repo   store.Repository
	procs  *process.Manager
	events *broadcaster.Broadcaster
	log    *logger.Logger
}

// New builds a Service over its three collaborators.
func New(repo store.Repository, procs *process.Manager, events *broadcaster.Broadcaster, log *logger.Logger) *Service {
	return &Service{repo: repo, procs: procs, events: events, log: log}
}

// Recover runs startup recovery: it clears the pid of every agent that still
// records one and marks it errored, since a prior unclean shutdown cannot
// leave a row claiming a live pid that no longer exists. It must run once, before
// the Control Surface accepts any request.
func (s *Service) Recover(ctx context.Context) error {
	n, err := s.repo.ClearPIDForRunningAgents(ctx)
	if err != nil {
		return err
	}
	if s.log != nil && n > 0 {
		s.log.Info("cleared stale pids on startup", zap.Int("count", n))
	}
	return nil
}

// CreateAgentRequest is the input to CreateAgent.
type CreateAgentRequest struct {
	WorktreeID  string
	Name        string
	Mode        store.AgentMode
	Permissions []store.Permission
}

// CreateAgent creates an agent under an existing worktree.
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (*store.Agent, error) {
	wt, err := s.repo.GetWorktree(ctx, req.WorktreeID)
	if err != nil {
		return nil, err
	}

	agent, err := s.repo.CreateAgent(ctx, store.AgentCreate{
		WorktreeID:  req.WorktreeID,
		Name:        req.Name,
		Mode:        req.Mode,
		Permissions: req.Permissions,
	})
	if err != nil {
		return nil, err
	}

	s.events.BroadcastWorkspaceUpdate(wt.WorkspaceID, broadcaster.ChangeAgentAdded, map[string]string{"agentId": agent.ID})
	return agent, nil
}

// UpdateAgentRequest carries only-provided-fields update semantics.
type UpdateAgentRequest struct {
	Name        *string
	Mode        *store.AgentMode
	Permissions *[]store.Permission
}

// UpdateAgent patches an existing agent's name/mode/permissions.
func (s *Service) UpdateAgent(ctx context.Context, id string, req UpdateAgentRequest) (*store.Agent, error) {
	agent, err := s.repo.UpdateAgent(ctx, id, store.AgentUpdate{
		Name:        req.Name,
		Mode:        req.Mode,
		Permissions: req.Permissions,
	})
	if err != nil {
		return nil, err
	}

	wt, err := s.repo.GetWorktree(ctx, agent.WorktreeID)
	if err == nil {
		s.events.BroadcastWorkspaceUpdate(wt.WorkspaceID, broadcaster.ChangeAgentUpdated, map[string]string{"agentId": agent.ID})
	}
	return agent, nil
}

// DeleteAgent removes an agent. If archive, it is soft-deleted (recoverable
// via RestoreAgent); otherwise it is hard-deleted. A running agent is
// stopped first, without escalation.
func (s *Service) DeleteAgent(ctx context.Context, id string, archive bool) error {
	agent, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return err
	}

	if s.procs.IsRunning(id) {
		if err := s.procs.Stop(id, false); err != nil {
			return err
		}
	}

	if archive {
		if _, err := s.repo.SoftDeleteAgent(ctx, id); err != nil {
			return err
		}
	} else {
		if err := s.repo.HardDeleteAgent(ctx, id); err != nil {
			return err
		}
	}

	if wt, err := s.repo.GetWorktree(ctx, agent.WorktreeID); err == nil {
		s.events.BroadcastWorkspaceUpdate(wt.WorkspaceID, broadcaster.ChangeAgentRemoved, map[string]string{"agentId": id})
	}
	return nil
}

// ForkAgent creates a new agent in the same worktree with the source
// agent's mode/permissions, recorded as its child.
func (s *Service) ForkAgent(ctx context.Context, id string, name string) (*store.Agent, error) {
	source, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	wt, err := s.repo.GetWorktree(ctx, source.WorktreeID)
	if err != nil {
		return nil, err
	}

	parentID := source.ID
	forked, err := s.repo.CreateAgent(ctx, store.AgentCreate{
		WorktreeID:    source.WorktreeID,
		Name:          name,
		Mode:          source.Mode,
		Permissions:   source.Permissions(),
		ParentAgentID: &parentID,
	})
	if err != nil {
		return nil, err
	}

	s.events.BroadcastWorkspaceUpdate(wt.WorkspaceID, broadcaster.ChangeAgentAdded, map[string]string{"agentId": forked.ID})
	return forked, nil
}

// RestoreAgent brings a soft-deleted agent back.
func (s *Service) RestoreAgent(ctx context.Context, id string) (*store.Agent, error) {
	current, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsDeleted() {
		return nil, errs.Conflictf("agent %s is not deleted", id)
	}

	agent, err := s.repo.RestoreAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if wt, err := s.repo.GetWorktree(ctx, agent.WorktreeID); err == nil {
		s.events.BroadcastWorkspaceUpdate(wt.WorkspaceID, broadcaster.ChangeAgentAdded, map[string]string{"agentId": agent.ID})
	}
	return agent, nil
}

// ReorderAgents reorders the non-deleted agents of a worktree. orderedIDs
// must name exactly the worktree's current non-deleted agents; any mismatch
// (missing, extra, or foreign id) is a conflict and the stored order is
// left untouched.
func (s *Service) ReorderAgents(ctx context.Context, worktreeID string, orderedIDs []string) error {
	current, err := s.repo.ListAgentsByWorktree(ctx, worktreeID, false)
	if err != nil {
		return err
	}
	if len(current) != len(orderedIDs) {
		return errs.Conflictf("reorder for worktree %s names %d agents, worktree has %d", worktreeID, len(orderedIDs), len(current))
	}
	want := make(map[string]bool, len(current))
	for _, a := range current {
		want[a.ID] = true
	}
	for _, id := range orderedIDs {
		if !want[id] {
			return errs.Conflictf("agent %s is not a current member of worktree %s", id, worktreeID)
		}
	}

	return s.repo.ReorderAgents(ctx, worktreeID, orderedIDs)
}

// StartAgent spawns a fresh child process for an agent not currently
// supervised, using initialPrompt if the agent has no session to resume.
func (s *Service) StartAgent(ctx context.Context, id string, initialPrompt string) (*store.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.procs.IsRunning(id) {
		return nil, errs.Conflictf("agent %s is already running", id)
	}

	wt, err := s.repo.GetWorktree(ctx, agent.WorktreeID)
	if err != nil {
		return nil, err
	}

	req := process.SpawnRequest{
		AgentID:       id,
		WorkingDir:    wt.Path,
		Mode:          toProcessMode(agent.Mode),
		Permissions:   toProcessPermissions(agent.Permissions()),
		InitialPrompt: initialPrompt,
	}
	if agent.SessionID != nil {
		req.SessionID = *agent.SessionID
	}

	rec, err := s.procs.Spawn(ctx, req)
	if err != nil {
		return nil, err
	}

	status := store.StatusRunning
	pid := rec.PID
	now := time.Now().UTC()
	return s.repo.UpdateAgent(ctx, id, store.AgentUpdate{Status: &status, PID: &pid, StartedAt: &now})
}

// StopAgent tears an agent's process down, idempotently.
func (s *Service) StopAgent(ctx context.Context, id string, force bool) (*store.Agent, error) {
	if _, err := s.repo.GetAgent(ctx, id); err != nil {
		return nil, err
	}

	if s.procs.IsRunning(id) {
		if err := s.procs.Stop(id, force); err != nil {
			return nil, err
		}
	}

	status := store.StatusFinished
	now := time.Now().UTC()
	return s.repo.UpdateAgent(ctx, id, store.AgentUpdate{Status: &status, ClearPID: true, StoppedAt: &now})
}

// ResumeAgent re-spawns an agent that has a prior session to continue.
func (s *Service) ResumeAgent(ctx context.Context, id string) (*store.Agent, error) {
	agent, err := s.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent.SessionID == nil {
		return nil, errs.Conflictf("agent %s has no session to resume", id)
	}
	if s.procs.IsRunning(id) {
		return nil, errs.Conflictf("agent %s is already running", id)
	}

	wt, err := s.repo.GetWorktree(ctx, agent.WorktreeID)
	if err != nil {
		return nil, err
	}

	rec, err := s.procs.Spawn(ctx, process.SpawnRequest{
		AgentID:     id,
		WorkingDir:  wt.Path,
		Mode:        toProcessMode(agent.Mode),
		Permissions: toProcessPermissions(agent.Permissions()),
		SessionID:   *agent.SessionID,
	})
	if err != nil {
		return nil, err
	}

	status := store.StatusRunning
	pid := rec.PID
	now := time.Now().UTC()
	return s.repo.UpdateAgent(ctx, id, store.AgentUpdate{Status: &status, PID: &pid, StartedAt: &now})
}

// SendMessageResult is the observable outcome of SendMessageToAgent.
type SendMessageResult struct {
	Status  string // "sent" | "queued"
	Running bool
}

// SendMessageToAgent persists the user's message and, if the agent is
// currently supervised, forwards it to the child's stdin; otherwise the
// message is merely queued in history for the next start/resume.
func (s *Service) SendMessageToAgent(ctx context.Context, id, content string) (SendMessageResult, error) {
	if _, err := s.repo.GetAgent(ctx, id); err != nil {
		return SendMessageResult{}, err
	}

	if _, err := s.repo.CreateMessage(ctx, &store.Message{
		AgentID: id, Role: store.RoleUser, Content: content, IsComplete: true,
	}); err != nil {
		return SendMessageResult{}, err
	}

	if !s.procs.IsRunning(id) {
		return SendMessageResult{Status: "queued", Running: false}, nil
	}

	if err := s.procs.SendMessage(id, content); err != nil {
		return SendMessageResult{}, err
	}
	return SendMessageResult{Status: "sent", Running: true}, nil
}

// ListMessages pages an agent's conversation history, newest first.
func (s *Service) ListMessages(ctx context.Context, id string, limit int, before *time.Time) ([]*store.Message, bool, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListMessages(ctx, id, limit, before)
}

func toProcessMode(m store.AgentMode) process.Mode {
	switch m {
	case store.ModeAuto:
		return process.ModeAuto
	case store.ModePlan:
		return process.ModePlan
	default:
		return process.ModeRegular
	}
}

func toProcessPermissions(perms []store.Permission) []process.Permission {
	out := make([]process.Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, process.Permission(p))
	}
	return out
}
