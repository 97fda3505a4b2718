package subscription

import (
	"fmt"

	"github.com/agentfleet/agentfleetd/internal/ids"
	"github.com/agentfleet/agentfleetd/pkg/wsproto"
)

// parsed is a validated, dispatch-ready client frame.
type parsed struct {
	id          string
	msgType     wsproto.ClientMessageType
	agentID     string
	workspaceID string
}

// parseClientFrame validates a decoded envelope's shape for its declared
// type, including id-prefix validation on any referenced entity id. A
// malformed frame never reaches a repository lookup.
func parseClientFrame(env wsproto.Envelope) (parsed, error) {
	p := parsed{id: env.ID, msgType: wsproto.ClientMessageType(env.Type)}

	switch p.msgType {
	case wsproto.ClientSubscribeAgent, wsproto.ClientUnsubscribeAgent:
		var payload wsproto.AgentSubscribePayload
		if err := env.ParsePayload(&payload); err != nil {
			return parsed{}, fmt.Errorf("invalid payload: %w", err)
		}
		if !ids.HasPrefix(payload.AgentID, ids.Agent) {
			return parsed{}, fmt.Errorf("agentId %q is not a valid agent id", payload.AgentID)
		}
		p.agentID = payload.AgentID

	case wsproto.ClientSubscribeWorkspace, wsproto.ClientUnsubscribeWorkspace:
		var payload wsproto.WorkspaceSubscribePayload
		if err := env.ParsePayload(&payload); err != nil {
			return parsed{}, fmt.Errorf("invalid payload: %w", err)
		}
		if !ids.HasPrefix(payload.WorkspaceID, ids.Workspace) {
			return parsed{}, fmt.Errorf("workspaceId %q is not a valid workspace id", payload.WorkspaceID)
		}
		p.workspaceID = payload.WorkspaceID

	case wsproto.ClientPing:
		// no payload

	default:
		return parsed{}, errUnknownType{p.msgType}
	}

	return p, nil
}

type errUnknownType struct {
	msgType wsproto.ClientMessageType
}

func (e errUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.msgType)
}
