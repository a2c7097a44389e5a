// Package broadcast fans real-time notifications out to the subscribers of a project.
//
// Delivery is best effort and at most once: a subscriber whose buffer is full
// misses the event, and a failing relay never blocks publishers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
)

const (
	DefaultBufferSize   = 64
	DefaultRelayTimeout = 2 * time.Second
)

// Publisher is the side of the broadcaster the engine and collaborators use.
type Publisher interface {
	Publish(ctx context.Context, projectID string, event events.Realtime)
}

// Relay forwards every published message to another transport.
type Relay interface {
	Relay(ctx context.Context, msg Message) error
}

// Message is one notification as delivered to subscribers.
type Message struct {
	ProjectID string          `json:"projectId"`
	Name      events.Name     `json:"event"`
	Payload   events.Realtime `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscription is one observer joined to a project topic.
type Subscription struct {
	projectID string
	ch        chan Message
}

// Events yields messages until the subscription leaves.
func (s *Subscription) Events() <-chan Message {
	return s.ch
}

type Broadcaster struct {
	logger       *slog.Logger
	bufferSize   int
	relays       []Relay
	relayTimeout time.Duration
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
}

type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(size int) Option {
	return func(b *Broadcaster) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithRelayTimeout bounds how long Publish waits on each relay.
func WithRelayTimeout(timeout time.Duration) Option {
	return func(b *Broadcaster) {
		if timeout > 0 {
			b.relayTimeout = timeout
		}
	}
}

// WithRelay adds a relay receiving every published message.
func WithRelay(relay Relay) Option {
	return func(b *Broadcaster) {
		b.relays = append(b.relays, relay)
	}
}

func New(logger *slog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:       logger.With("module", "broadcast"),
		bufferSize:   DefaultBufferSize,
		relayTimeout: DefaultRelayTimeout,
		subscribers:  make(map[string]map[*Subscription]struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Join registers a new subscriber on the project's topic.
func (b *Broadcaster) Join(projectID string) *Subscription {
	sub := &Subscription{projectID: projectID, ch: make(chan Message, b.bufferSize)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[projectID] == nil {
		b.subscribers[projectID] = make(map[*Subscription]struct{})
	}

	b.subscribers[projectID][sub] = struct{}{}

	return sub
}

// Leave removes the subscriber and closes its channel. Leaving twice is a no-op.
func (b *Broadcaster) Leave(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sub.projectID]
	if !ok {
		return
	}

	if _, joined := subs[sub]; !joined {
		return
	}

	delete(subs, sub)
	close(sub.ch)

	if len(subs) == 0 {
		delete(b.subscribers, sub.projectID)
	}
}

// Subscribers returns the number of subscribers joined to a project.
func (b *Broadcaster) Subscribers(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[projectID])
}

// Publish delivers event to every subscriber of projectID without blocking.
func (b *Broadcaster) Publish(ctx context.Context, projectID string, event events.Realtime) {
	msg := Message{
		ProjectID: projectID,
		Name:      event.EventName(),
		Payload:   event,
		Timestamp: time.Now().UTC(),
	}

	b.mu.RLock()

	for sub := range b.subscribers[projectID] {
		select {
		case sub.ch <- msg:
		default:
			b.logger.DebugContext(ctx, "subscriber buffer full, dropping event",
				"project_id", projectID, "event", msg.Name)
		}
	}

	b.mu.RUnlock()

	for _, relay := range b.relays {
		b.relay(ctx, relay, msg)
	}
}

// relay runs detached from ctx cancellation and gives up after relayTimeout.
func (b *Broadcaster) relay(ctx context.Context, relay Relay, msg Message) {
	relayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.relayTimeout)
	defer cancel()

	err := relay.Relay(relayCtx, msg)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to relay event",
			"project_id", msg.ProjectID, "event", msg.Name, "error", err)
	}
}
