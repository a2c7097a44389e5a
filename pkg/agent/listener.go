package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
)

// Listener consumes agent runtime messages: completions are handed to the
// engine, status and log lines go straight to the broadcaster.
type Listener struct {
	subscriber  eventbus.EventSubscriber
	handler     CompletionHandler
	broadcaster broadcast.Publisher
	logger      *slog.Logger
}

func NewListener(
	logger *slog.Logger,
	subscriber eventbus.EventSubscriber,
	handler CompletionHandler,
	broadcaster broadcast.Publisher,
) *Listener {
	return &Listener{
		subscriber:  subscriber,
		handler:     handler,
		broadcaster: broadcaster,
		logger:      logger.With("module", "agent-listener"),
	}
}

// Register installs the listener's handlers; call before the bus subscribes.
func (l *Listener) Register() error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.AgentCompletedEvent: l.handleCompleted,
		events.AgentStatusEvent:    l.handleStatus,
		events.AgentLogEvent:       l.handleLog,
	}

	for eventType, handler := range handlers {
		err := l.subscriber.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", eventType, err)
		}
	}

	return nil
}

// handleCompleted acks rejected completions and returns every other error so
// the bus redelivers the message.
func (l *Listener) handleCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.AgentCompleted)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	err := l.handler.CompleteAgentTask(ctx, Completion{
		RunID:           completed.RunID,
		NodeID:          completed.NodeID,
		AgentInstanceID: completed.AgentInstanceID,
		Success:         completed.Success,
		Output:          completed.Output,
		Error:           completed.Error,
	})
	if errors.Is(err, ErrCompletionRejected) {
		l.logger.WarnContext(ctx, "agent completion rejected",
			"run_id", completed.RunID, "node_id", completed.NodeID, "error", err)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to apply completion of run %s node %s: %w", completed.RunID, completed.NodeID, err)
	}

	return nil
}

func (l *Listener) handleStatus(ctx context.Context, event any) error {
	status, ok := event.(*events.AgentStatusReported)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	l.broadcaster.Publish(ctx, status.ProjectID, events.AgentStatus{
		AgentInstanceID: status.AgentInstanceID,
		Status:          status.Status,
	})

	return nil
}

func (l *Listener) handleLog(ctx context.Context, event any) error {
	line, ok := event.(*events.AgentLogLine)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	l.broadcaster.Publish(ctx, line.ProjectID, events.AgentLog{
		AgentInstanceID: line.AgentInstanceID,
		Line:            line.Line,
		Type:            line.Stream,
		RunID:           line.RunID,
		Timestamp:       line.Timestamp,
	})

	return nil
}
