// Package process owns the OS-level lifecycle of each Agent's child process
// and produces a typed event stream consumed by the broadcaster.
package process

import "time"

// Status is the supervisor-tracked lifecycle state of one child process.
type Status string

const (
	StatusRunning  Status = "running"
	StatusWaiting  Status = "waiting"
	StatusError    Status = "error"
	StatusFinished Status = "finished"
)

// Mode selects the permission posture the child is launched with.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModePlan    Mode = "plan"
	ModeRegular Mode = "regular"
)

// Permission is one bit of an agent's tool allow-list.
type Permission string

const (
	PermRead    Permission = "read"
	PermWrite   Permission = "write"
	PermExecute Permission = "execute"
)

// SpawnRequest is the input to Manager.Spawn.
type SpawnRequest struct {
	AgentID       string
	WorkingDir    string
	Mode          Mode
	Permissions   []Permission
	InitialPrompt string
	SessionID     string
}

// Record is the observable state of one tracked child process.
type Record struct {
	AgentID   string
	PID       int
	Status    Status
	StartedAt time.Time
}

// EventType names the kind of event carried by Event.
type EventType string

const (
	EventOutput  EventType = "agent:output"
	EventStatus  EventType = "agent:status"
	EventContext EventType = "agent:context"
	EventWaiting EventType = "agent:waiting"
	EventError   EventType = "agent:error"
	EventExit    EventType = "agent:exit"
)

// Event is one item of the supervisor's async event stream. Only the fields
// relevant to Type are populated.
type Event struct {
	Type      EventType
	AgentID   string
	Text      string // EventOutput
	Streaming bool   // EventOutput: true while more output is expected
	Status    Status // EventStatus
	Context   int    // EventContext: 0..100
	Err       error  // EventError
	ExitCode  *int   // EventExit
	Signal    string // EventExit
}
