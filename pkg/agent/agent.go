// Package agent connects the engine to the external agent runtime: assignments
// go out over the event bus and completions come back the same way.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/google/uuid"
)

var (
	ErrInvalidAssignment = errors.New("invalid agent assignment")
	// ErrCompletionRejected marks completions that would be refused again on
	// redelivery: unknown runs, malformed reports and invalid transitions.
	ErrCompletionRejected = errors.New("agent completion rejected")
)

// Assignment is the work handed to an agent for one agent_task node.
type Assignment struct {
	RunID       string
	ProjectID   string
	StoryID     string
	NodeID      string
	Role        string
	Description string
}

func (a Assignment) Validate() error {
	if a.RunID == "" || a.NodeID == "" {
		return fmt.Errorf("%w: run id and node id are required", ErrInvalidAssignment)
	}

	if a.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidAssignment)
	}

	return nil
}

// Dispatcher assigns agent_task work and returns the agent instance handling it.
type Dispatcher interface {
	Assign(ctx context.Context, assignment Assignment) (string, error)
}

// Completion reports the outcome of an assignment.
type Completion struct {
	RunID           string
	NodeID          string
	AgentInstanceID string
	Success         bool
	Output          map[string]any
	Error           string
}

// CompletionHandler consumes completions; implemented by the engine. Errors
// wrapping ErrCompletionRejected are permanent, any other error is retried.
type CompletionHandler interface {
	CompleteAgentTask(ctx context.Context, completion Completion) error
}

// BusDispatcher publishes assignments on the agent assignment topic.
type BusDispatcher struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewBusDispatcher(logger *slog.Logger, publisher eventbus.EventPublisher) *BusDispatcher {
	return &BusDispatcher{
		publisher: publisher,
		logger:    logger.With("module", "agent-dispatcher"),
	}
}

func (d *BusDispatcher) Assign(ctx context.Context, assignment Assignment) (string, error) {
	err := assignment.Validate()
	if err != nil {
		return "", err
	}

	instanceID := uuid.NewString()

	event := events.AgentAssigned{
		BaseEvent:       events.NewBaseEvent(events.AgentAssignedEvent, assignment.RunID),
		AgentInstanceID: instanceID,
		ProjectID:       assignment.ProjectID,
		StoryID:         assignment.StoryID,
		NodeID:          assignment.NodeID,
		Role:            assignment.Role,
		Description:     assignment.Description,
	}

	err = d.publisher.Publish(ctx, assignment.RunID, event)
	if err != nil {
		return "", fmt.Errorf("failed to publish assignment: %w", err)
	}

	d.logger.InfoContext(ctx, "agent assigned",
		"run_id", assignment.RunID,
		"node_id", assignment.NodeID,
		"role", assignment.Role,
		"agent_instance_id", instanceID)

	return instanceID, nil
}
