package messaging

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/community-rankings/internal/domain/shared"
	"github.com/alem-hub/community-rankings/pkg/metrics"
)

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	var got []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventFollowCreated, func(e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventFollowCreated, func(shared.Event) error {
		return errors.New("second handler fails")
	}))
	assert.Error(t, bus.Subscribe(shared.EventFollowCreated, nil))

	require.NoError(t, bus.Publish(shared.NewFollowCreatedEvent("ann", "ben", "Ann")))
	require.NoError(t, bus.Publish(shared.NewFollowRemovedEvent("ann", "ben")), "no subscribers is fine")

	assert.Equal(t, []shared.EventType{shared.EventFollowCreated}, got)
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_AsyncRecoversPanics(t *testing.T) {
	m := metrics.NewManager()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Metrics: m})

	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventStandingObserved, func(shared.Event) error {
		delivered.Add(1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStandingObserved, func(shared.Event) error {
		panic("boom")
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewStandingObservedEvent("ann", "total_xp", "all_time", i+1)))
	}
	bus.Wait()
	assert.Equal(t, int32(5), delivered.Load())

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewFollowRemovedEvent("ann", "ben")), ErrEventBusClosed)
}
