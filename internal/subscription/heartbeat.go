package subscription

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/config"
)

// Heartbeat periodically sweeps a Manager for stale clients and closes
// their transports; each transport's own close event is what drives
// RemoveClient, not the sweep itself.
type Heartbeat struct {
	mgr    *Manager
	cfg    config.SubscriptionConfig
	ticker *time.Ticker

	mu      sync.Mutex
	stopped chan struct{}
}

// NewHeartbeat builds a Heartbeat over mgr using cfg's interval/threshold.
func NewHeartbeat(mgr *Manager, cfg config.SubscriptionConfig) *Heartbeat {
	return &Heartbeat{mgr: mgr, cfg: cfg}
}

// Start launches the sweep loop in its own goroutine. Calling Start while
// already running is a no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ticker != nil {
		return
	}
	h.ticker = time.NewTicker(h.cfg.HeartbeatInterval())
	h.stopped = make(chan struct{})

	ticker := h.ticker
	stopped := h.stopped
	go func() {
		for {
			select {
			case <-ticker.C:
				h.sweep()
			case <-stopped:
				return
			}
		}
	}()
}

// Stop halts the sweep loop. Calling Stop when not running is a no-op.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ticker == nil {
		return
	}
	h.ticker.Stop()
	close(h.stopped)
	h.ticker = nil
}

func (h *Heartbeat) sweep() {
	stale := h.mgr.GetStaleClients(h.cfg.StaleThreshold())
	for _, c := range stale {
		if h.mgr.log != nil {
			h.mgr.log.Debug("closing stale client", zap.String("client_id", c.ID))
		}
		c.transport.Close("heartbeat timeout")
	}
}
