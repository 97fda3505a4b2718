package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/constants"
	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/errs"
)

// gracePeriod is how long Stop waits after a terminate signal before
// escalating to a kill signal.
const gracePeriod = 5 * time.Second

// entry is the supervisor's per-agent tracked record.
type entry struct {
	agentID   string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	status    Status
	pid       int
	startedAt time.Time
	buffer    *OutputBuffer

	mu        sync.Mutex
	killTimer *time.Timer
	stopOnce  sync.Once
}

// Manager owns the OS-level lifecycle of every tracked agent process and
// publishes a single ordered event stream. A request context is never wired
// into the child's exec.Cmd: an HTTP request finishing must never reach out
// and kill a long-lived agent.
type Manager struct {
	executable string
	log        *logger.Logger
	sink       errs.Sink

	mu      sync.RWMutex
	entries map[string]*entry

	events chan Event
}

// NewManager builds a Manager that launches executable for every agent.
// sink may be nil, in which case captured errors are only logged.
func NewManager(executable string, log *logger.Logger, sink errs.Sink) *Manager {
	return &Manager{
		executable: executable,
		log:        log,
		sink:       sink,
		entries:    make(map[string]*entry),
		events:     make(chan Event, 256),
	}
}

// Events returns the manager's event stream. There is exactly one consumer
// in production (the broadcaster), so ordering here is ordering everywhere.
func (m *Manager) Events() <-chan Event { return m.events }

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		if m.log != nil {
			m.log.Warn("event channel full, dropping event", zap.String("type", string(e.Type)), zap.String("agentId", e.AgentID))
		}
	}
}

// Spawn launches the child process for req.AgentID and begins tracking it.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Record, error) {
	m.mu.Lock()
	if _, exists := m.entries[req.AgentID]; exists {
		m.mu.Unlock()
		return nil, errs.Conflictf("agent %s is already running", req.AgentID)
	}
	m.mu.Unlock()

	args := buildArgs(m.executable, req)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = req.WorkingDir
	cmd.Env = colourlessEnv(os.Environ())

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errs.ProcessErrorf("create stdin pipe for agent %s: %v", req.AgentID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.ProcessErrorf("create stdout pipe for agent %s: %v", req.AgentID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.ProcessErrorf("create stderr pipe for agent %s: %v", req.AgentID, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.ProcessErrorf("spawn agent %s: %v", req.AgentID, err)
	}

	now := time.Now().UTC()
	e := &entry{
		agentID:   req.AgentID,
		cmd:       cmd,
		stdin:     stdin,
		status:    StatusRunning,
		pid:       cmd.Process.Pid,
		startedAt: now,
		buffer:    NewOutputBuffer(constants.OutputBufferLines),
	}

	m.mu.Lock()
	m.entries[req.AgentID] = e
	m.mu.Unlock()

	go m.pump(e, "stdout", stdout)
	go m.pump(e, "stderr", stderr)
	go m.waitForExit(e)

	m.emit(Event{Type: EventStatus, AgentID: req.AgentID, Status: StatusRunning})

	return &Record{AgentID: req.AgentID, PID: e.pid, Status: StatusRunning, StartedAt: now}, nil
}

// pump copies raw, unframed reads from r into the entry's output buffer and,
// for stdout, onto the event stream as output events. It reads as it comes
// rather than line-scanning, so partial lines are forwarded without waiting
// for a newline. The Output Parser is not run over either stream here, so
// the supervisor emits no context, waiting or parser-derived status events.
func (m *Manager) pump(e *entry, stream string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			e.buffer.Add(Chunk{Stream: stream, Text: text})
			if stream == "stdout" {
				m.emit(Event{Type: EventOutput, AgentID: e.agentID, Text: text, Streaming: true})
			}
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) waitForExit(e *entry) {
	err := e.cmd.Wait()

	e.mu.Lock()
	if e.killTimer != nil {
		e.killTimer.Stop()
	}
	e.mu.Unlock()

	var exitCode *int
	var signal string
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			exitCode = &code
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				signal = ws.Signal().String()
			}
		} else {
			m.emit(Event{Type: EventError, AgentID: e.agentID, Err: err})
			if m.sink != nil {
				m.sink.Capture(context.Background(), err, map[string]string{"agentId": e.agentID})
			}
		}
	} else {
		code := 0
		exitCode = &code
	}

	m.mu.Lock()
	delete(m.entries, e.agentID)
	m.mu.Unlock()
	e.buffer.Clear()

	m.emit(Event{Type: EventOutput, AgentID: e.agentID, Text: "", Streaming: false})
	m.emit(Event{Type: EventExit, AgentID: e.agentID, ExitCode: exitCode, Signal: signal})
}

// SendMessage appends content+"\n" to the child's stdin and transitions the
// tracked status to running.
func (m *Manager) SendMessage(agentID, content string) error {
	m.mu.RLock()
	e, ok := m.entries[agentID]
	m.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("agent %s is not running", agentID)
	}

	if _, err := io.WriteString(e.stdin, content+"\n"); err != nil {
		return errs.ProcessErrorf("write to agent %s stdin: %v", agentID, err)
	}

	e.mu.Lock()
	e.status = StatusRunning
	e.mu.Unlock()
	m.emit(Event{Type: EventStatus, AgentID: agentID, Status: StatusRunning})
	return nil
}

// Stop tears an agent down. If force is set, a kill signal is sent
// immediately; otherwise stdin is closed, a terminate signal is sent, and a
// kill signal is scheduled after gracePeriod if the process still hasn't
// exited by then.
func (m *Manager) Stop(agentID string, force bool) error {
	m.mu.RLock()
	e, ok := m.entries[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	if force {
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		return nil
	}

	e.stopOnce.Do(func() {
		_ = e.stdin.Close()
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Signal(syscall.SIGTERM)
		}
		e.mu.Lock()
		e.killTimer = time.AfterFunc(gracePeriod, func() {
			m.mu.RLock()
			_, stillTracked := m.entries[agentID]
			m.mu.RUnlock()
			if stillTracked && e.cmd.Process != nil {
				_ = e.cmd.Process.Kill()
			}
		})
		e.mu.Unlock()
	})
	return nil
}

// StopAll applies Stop to every tracked agent concurrently.
func (m *Manager) StopAll(force bool) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			_ = m.Stop(agentID, force)
		}(id)
	}
	wg.Wait()
}

func (m *Manager) IsRunning(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[agentID]
	return ok
}

func (m *Manager) GetStatus(agentID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[agentID]
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

func (m *Manager) GetProcess(agentID string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[agentID]
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	status := e.status
	e.mu.Unlock()
	return &Record{AgentID: e.agentID, PID: e.pid, Status: status, StartedAt: e.startedAt}, true
}

func (m *Manager) GetRunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Cleanup force-stops every tracked agent, used on process shutdown. It does
// not drain or close the event channel.
func (m *Manager) Cleanup() {
	m.StopAll(true)
}
