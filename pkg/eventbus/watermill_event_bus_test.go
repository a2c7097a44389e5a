package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/channels/gochannel"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoutesByType(t *testing.T) {
	bus := newBus(t)

	received := make(chan *events.AgentCompleted, 1)

	require.NoError(t, bus.Handle(events.AgentCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.AgentCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	err := bus.Publish(t.Context(), "run-1", events.AgentCompleted{
		BaseEvent: events.NewBaseEvent(events.AgentCompletedEvent, "run-1"),
		NodeID:    "build",
		Success:   true,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, "build", event.NodeID)
		assert.True(t, event.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not delivered")
	}
}

type unroutable struct{}

func (unroutable) GetType() events.EventType { return "nowhere" }

func TestWatermillEventBus_Unroutable(t *testing.T) {
	bus := newBus(t)

	err := bus.Publish(t.Context(), "k", unroutable{})
	require.ErrorIs(t, err, eventbus.ErrUnroutableEvent)

	err = bus.Handle("nowhere", func(context.Context, any) error { return nil })
	require.ErrorIs(t, err, eventbus.ErrUnroutableEvent)

	assert.NotEmpty(t, bus.GenerateID())
}
