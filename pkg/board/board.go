// Package board moves story cards on the project board as agent tasks progress.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/eventbus"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

var ErrNoStory = errors.New("run has no story to move")

// CardMove describes a card transition triggered by an agent_task node.
type CardMove struct {
	RunID      string
	ProjectID  string
	StoryID    string
	NodeID     string
	Phase      models.CardPhase
	Status     string
	NodeStatus models.NodeStatus
}

// Mover is the board collaborator.
type Mover interface {
	MoveCard(ctx context.Context, move CardMove) error
}

// BusMover publishes card moves for the board service and notifies project
// subscribers with story:status.
type BusMover struct {
	publisher   eventbus.EventPublisher
	broadcaster broadcast.Publisher
	logger      *slog.Logger
}

func NewBusMover(logger *slog.Logger, publisher eventbus.EventPublisher, broadcaster broadcast.Publisher) *BusMover {
	return &BusMover{
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger.With("module", "board"),
	}
}

func (m *BusMover) MoveCard(ctx context.Context, move CardMove) error {
	if move.StoryID == "" {
		return ErrNoStory
	}

	err := m.publisher.Publish(ctx, move.StoryID, events.CardMoved{
		BaseEvent: events.NewBaseEvent(events.CardMovedEvent, move.RunID),
		ProjectID: move.ProjectID,
		StoryID:   move.StoryID,
		NodeID:    move.NodeID,
		Phase:     move.Phase,
		Status:    move.Status,
	})
	if err != nil {
		return fmt.Errorf("failed to publish card move: %w", err)
	}

	m.broadcaster.Publish(ctx, move.ProjectID, events.StoryStatus{
		StoryID:            move.StoryID,
		Status:             move.Status,
		WorkflowNodeStatus: string(move.NodeStatus),
	})

	m.logger.DebugContext(ctx, "card moved",
		"run_id", move.RunID, "story_id", move.StoryID, "status", move.Status, "phase", move.Phase)

	return nil
}
