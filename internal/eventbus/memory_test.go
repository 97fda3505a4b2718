package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func TestMemoryBusExactSubjectDelivery(t *testing.T) {
	bus := NewMemoryBus(testLogger(t))
	defer bus.Close()

	received := make(chan *Event, 1)
	_, err := bus.Subscribe("usage.recorded", func(_ context.Context, e *Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "usage.recorded", NewEvent("usage.recorded", "test", nil)))

	select {
	case e := <-received:
		assert.Equal(t, "usage.recorded", e.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBusWildcardDelivery(t *testing.T) {
	bus := NewMemoryBus(testLogger(t))
	defer bus.Close()

	received := make(chan string, 2)
	_, err := bus.Subscribe("usage.*", func(_ context.Context, e *Event) error {
		received <- e.Type
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "usage.recorded", NewEvent("usage.recorded", "t", nil)))
	require.NoError(t, bus.Publish(context.Background(), "usage.updated", NewEvent("usage.updated", "t", nil)))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-received:
			seen[s] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	assert.True(t, seen["usage.recorded"])
	assert.True(t, seen["usage.updated"])
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(testLogger(t))
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	sub, err := bus.Subscribe("x", func(_ context.Context, _ *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, bus.Publish(context.Background(), "x", NewEvent("x", "t", nil)))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestMemoryBusPublishAfterCloseErrors(t *testing.T) {
	bus := NewMemoryBus(testLogger(t))
	bus.Close()
	assert.False(t, bus.IsConnected())

	err := bus.Publish(context.Background(), "x", NewEvent("x", "t", nil))
	assert.Error(t, err)
}
