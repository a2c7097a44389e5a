package broadcast_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/channels/gochannel"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_DeliversToProjectSubscribers(t *testing.T) {
	b := broadcast.New(slog.New(slog.DiscardHandler))

	sub := b.Join("proj-1")
	other := b.Join("proj-2")

	b.Publish(t.Context(), "proj-1", events.WorkflowNode{RunID: "run-1", NodeID: "build", Status: "running"})

	select {
	case msg := <-sub.Events():
		assert.Equal(t, events.WorkflowNodeName, msg.Name)
		assert.Equal(t, "proj-1", msg.ProjectID)
		assert.Equal(t, events.WorkflowNode{RunID: "run-1", NodeID: "build", Status: "running"}, msg.Payload)
	default:
		t.Fatal("subscriber did not receive the event")
	}

	select {
	case msg := <-other.Events():
		t.Fatalf("unexpected event for other project: %v", msg)
	default:
	}
}

func TestBroadcaster_DropsWhenBufferFull(t *testing.T) {
	b := broadcast.New(slog.New(slog.DiscardHandler), broadcast.WithBufferSize(1))

	sub := b.Join("proj-1")

	b.Publish(t.Context(), "proj-1", events.WorkflowRun{RunID: "run-1", Status: "running"})
	b.Publish(t.Context(), "proj-1", events.WorkflowRun{RunID: "run-1", Status: "completed"})

	msg := <-sub.Events()
	assert.Equal(t, events.WorkflowRun{RunID: "run-1", Status: "running"}, msg.Payload)

	select {
	case msg := <-sub.Events():
		t.Fatalf("expected dropped event, got %v", msg)
	default:
	}
}

func TestBroadcaster_Leave(t *testing.T) {
	b := broadcast.New(slog.New(slog.DiscardHandler))

	sub := b.Join("proj-1")
	assert.Equal(t, 1, b.Subscribers("proj-1"))

	b.Leave(sub)
	b.Leave(sub)
	assert.Equal(t, 0, b.Subscribers("proj-1"))

	_, open := <-sub.Events()
	assert.False(t, open)

	b.Publish(t.Context(), "proj-1", events.WorkflowRun{RunID: "run-1", Status: "running"})
}

func TestBroadcaster_ConcurrentJoinLeavePublish(t *testing.T) {
	b := broadcast.New(slog.New(slog.DiscardHandler), broadcast.WithBufferSize(4))

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				b.Leave(b.Join("proj-1"))
			}
		}()

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				b.Publish(context.Background(), "proj-1", events.AgentStatus{AgentInstanceID: "a", Status: "busy"})
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, b.Subscribers("proj-1"))
}

type failingRelay struct{ calls int }

func (r *failingRelay) Relay(context.Context, broadcast.Message) error {
	r.calls++

	return errors.New("relay down")
}

func TestBroadcaster_RelayFailureIsIgnored(t *testing.T) {
	relay := &failingRelay{}
	b := broadcast.New(slog.New(slog.DiscardHandler), broadcast.WithRelay(relay))

	sub := b.Join("proj-1")
	b.Publish(t.Context(), "proj-1", events.StoryStatus{StoryID: "s-1", Status: "done"})

	assert.Equal(t, 1, relay.calls)
	assert.Len(t, sub.Events(), 1)
}

type stalledRelay struct{ deadline chan bool }

func (r *stalledRelay) Relay(ctx context.Context, _ broadcast.Message) error {
	_, ok := ctx.Deadline()
	r.deadline <- ok

	<-ctx.Done()

	return ctx.Err()
}

func TestBroadcaster_StalledRelayIsBounded(t *testing.T) {
	relay := &stalledRelay{deadline: make(chan bool, 1)}
	b := broadcast.New(slog.New(slog.DiscardHandler),
		broadcast.WithRelay(relay), broadcast.WithRelayTimeout(50*time.Millisecond))

	sub := b.Join("proj-1")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	started := time.Now()
	b.Publish(ctx, "proj-1", events.WorkflowRun{RunID: "run-1", Status: "running"})

	assert.True(t, <-relay.deadline)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	assert.Less(t, time.Since(started), time.Second)
	assert.Len(t, sub.Events(), 1)
}

func TestBusRelay(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.RealtimeRelay, 1)

	require.NoError(t, bus.Handle(events.RealtimeRelayEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RealtimeRelay)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	b := broadcast.New(logger, broadcast.WithRelay(broadcast.NewBusRelay(bus)))
	b.Publish(t.Context(), "proj-9", events.ApprovalNeeded{RunID: "run-1", NodeID: "gate", Description: "ship?"})

	select {
	case relay := <-received:
		assert.Equal(t, "proj-9", relay.ProjectID)
		assert.Equal(t, events.ApprovalNeededName, relay.Name)
		assert.Equal(t, map[string]any{"runId": "run-1", "nodeId": "gate", "description": "ship?"}, relay.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("relay message was not delivered")
	}
}
