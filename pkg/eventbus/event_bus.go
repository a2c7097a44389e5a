// Package eventbus carries agent, board and real-time events between the
// engine and its out-of-process collaborators.
package eventbus

import (
	"context"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
)

// Event is anything the bus can route to a topic.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes an event keyed by run or project id, so that
// ordered transports keep one run's events on one partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers typed handlers and starts consuming.
// Handle must be called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event as a pointer to its concrete type.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
