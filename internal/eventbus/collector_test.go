package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/internal/store"
)

// stubRepository implements only the store.Repository methods the
// collector exercises; every other method panics if called.
type stubRepository struct {
	store.Repository
	mu      sync.Mutex
	deltas  []store.UsageDelta
	toList  []*store.UsageStat
}

func (s *stubRepository) RecordUsage(_ context.Context, delta store.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
	return nil
}

func (s *stubRepository) ListUsageStats(_ context.Context, _ store.UsagePeriod, _ int) ([]*store.UsageStat, error) {
	return s.toList, nil
}

type stubBroadcaster struct {
	mu       sync.Mutex
	payloads []any
}

func (b *stubBroadcaster) BroadcastUsageUpdate(payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
}

func TestUsageCollectorRecordsAndBroadcasts(t *testing.T) {
	bus := NewMemoryBus(testLogger(t))
	defer bus.Close()

	stat := &store.UsageStat{Date: "2026-07-31", Period: store.PeriodDaily, TotalTokens: 42}
	repo := &stubRepository{toList: []*store.UsageStat{stat}}
	bcast := &stubBroadcaster{}

	collector := NewUsageCollector(bus, repo, bcast, testLogger(t))
	_, err := collector.Start()
	require.NoError(t, err)

	event := NewEvent("usage.recorded", "test", map[string]any{
		"date": "2026-07-31", "period": "daily", "inputTokens": int64(10), "outputTokens": int64(5),
	})
	require.NoError(t, bus.Publish(context.Background(), SubjectUsageRecorded, event))

	require.Eventually(t, func() bool {
		bcast.mu.Lock()
		defer bcast.mu.Unlock()
		return len(bcast.payloads) == 1
	}, time.Second, 10*time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.deltas, 1)
	assert.Equal(t, int64(10), repo.deltas[0].InputTokens)
	assert.Equal(t, store.PeriodDaily, repo.deltas[0].Period)
}
