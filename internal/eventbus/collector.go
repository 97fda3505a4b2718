package eventbus

import (
	"context"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/store"
)

// UsageBroadcaster is the subset of the Event Broadcaster the collector
// needs: forwarding an accumulated usage-stat payload to subscribers.
type UsageBroadcaster interface {
	BroadcastUsageUpdate(payload any)
}

// UsageCollector subscribes to SubjectUsageRecorded, accumulates every
// delta into the store and republishes the resulting totals on
// SubjectUsageUpdated so out-of-process consumers see the same facts the
// WebSocket clients get via UsageBroadcaster.
type UsageCollector struct {
	bus   Bus
	repo  store.Repository
	bcast UsageBroadcaster
	log   *logger.Logger
}

// NewUsageCollector wires a Bus to the repository and the broadcaster.
func NewUsageCollector(bus Bus, repo store.Repository, bcast UsageBroadcaster, log *logger.Logger) *UsageCollector {
	return &UsageCollector{bus: bus, repo: repo, bcast: bcast, log: log}
}

// Start subscribes the collector to the recorded-usage subject. It returns
// once the subscription is registered; delivery happens on the bus's own
// goroutines.
func (c *UsageCollector) Start() (Subscription, error) {
	return c.bus.Subscribe(SubjectUsageRecorded, c.handle)
}

func (c *UsageCollector) handle(ctx context.Context, event *Event) error {
	delta, err := deltaFromEvent(event)
	if err != nil {
		return err
	}
	if err := c.repo.RecordUsage(ctx, delta); err != nil {
		return err
	}

	stats, err := c.repo.ListUsageStats(ctx, delta.Period, 1)
	if err != nil {
		return err
	}
	if len(stats) > 0 {
		total := stats[0]
		c.bcast.BroadcastUsageUpdate(total)
		totals := map[string]any{
			"date":         total.Date,
			"period":       string(total.Period),
			"inputTokens":  total.InputTokens,
			"outputTokens": total.OutputTokens,
			"totalTokens":  total.TotalTokens,
			"requestCount": total.RequestCount,
			"errorCount":   total.ErrorCount,
		}
		if err := c.bus.Publish(ctx, SubjectUsageUpdated, NewEvent("usage.updated", "usage-collector", totals)); err != nil {
			c.log.Warn("republish usage.updated failed")
		}
	}
	return nil
}

func deltaFromEvent(event *Event) (store.UsageDelta, error) {
	get := func(key string) string {
		v, _ := event.Data[key].(string)
		return v
	}
	getInt := func(key string) int64 {
		switch v := event.Data[key].(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		default:
			return 0
		}
	}

	return store.UsageDelta{
		Date:         get("date"),
		Period:       store.UsagePeriod(get("period")),
		InputTokens:  getInt("inputTokens"),
		OutputTokens: getInt("outputTokens"),
		RequestCount: getInt("requestCount"),
		ErrorCount:   getInt("errorCount"),
		Model:        get("model"),
	}, nil
}
