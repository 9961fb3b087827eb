package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/consolidation/pkg/channels/gochannel"
	"github.com/dukex/consolidation/pkg/eventbus"
	"github.com/dukex/consolidation/pkg/events"
	"github.com/dukex/consolidation/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.RunCompleted, 1)

	require.NoError(t, bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	ref := models.ProcessRef{CompanyID: "acme", ProcessID: "p1"}

	// unhandled types are acknowledged and dropped
	require.NoError(t, bus.Publish(t.Context(), "p1", events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, ref),
		RunID:     "run-1",
	}))

	require.NoError(t, bus.Publish(t.Context(), "p1", events.RunCompleted{
		BaseEvent:     events.NewBaseEvent(events.RunCompletedEvent, ref),
		RunID:         "run-1",
		Mode:          models.RunModeSimulate,
		NodesExecuted: 3,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, "acme", event.CompanyID)
		assert.Equal(t, models.RunModeSimulate, event.Mode)
		assert.Equal(t, 3, event.NodesExecuted)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	for _, eventType := range []events.EventType{
		events.RunStartedEvent,
		events.NodeCompletedEvent,
		events.RunCompletedEvent,
		events.RunFailedEvent,
		events.RunCancelledEvent,
		events.ProcessFinalizedEvent,
	} {
		event, ok := events.New(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, eventType, event.(eventbus.Event).GetType())
	}

	_, ok := events.New("workflow.triggered")
	assert.False(t, ok)
}
