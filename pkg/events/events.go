// Package events defines the messages exchanged over the event bus and the
// real-time notifications pushed to project subscribers.
package events

import (
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const (
	AgentAssignmentTopic = "squads.agent.assignments"
	AgentCompletionTopic = "squads.agent.completions"
	AgentActivityTopic   = "squads.agent.activity"
	BoardMoveTopic       = "squads.board.moves"
	RealtimeTopic        = "squads.realtime"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	AgentAssignedEvent  EventType = "agent.assigned"
	AgentCompletedEvent EventType = "agent.completed"
	AgentStatusEvent    EventType = "agent.status"
	AgentLogEvent       EventType = "agent.log"
	CardMovedEvent      EventType = "board.card_moved"
	RealtimeRelayEvent  EventType = "realtime.relay"
)

// TopicOf returns the bus topic carrying events of the given type.
func TopicOf(eventType EventType) string {
	switch eventType {
	case AgentAssignedEvent:
		return AgentAssignmentTopic
	case AgentCompletedEvent:
		return AgentCompletionTopic
	case AgentStatusEvent, AgentLogEvent:
		return AgentActivityTopic
	case CardMovedEvent:
		return BoardMoveTopic
	case RealtimeRelayEvent:
		return RealtimeTopic
	default:
		return ""
	}
}

// New returns an empty value of the event registered for eventType, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case AgentAssignedEvent:
		return &AgentAssigned{}, true
	case AgentCompletedEvent:
		return &AgentCompleted{}, true
	case AgentStatusEvent:
		return &AgentStatusReported{}, true
	case AgentLogEvent:
		return &AgentLogLine{}, true
	case CardMovedEvent:
		return &CardMoved{}, true
	case RealtimeRelayEvent:
		return &RealtimeRelay{}, true
	default:
		return nil, false
	}
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Metadata:  make(map[string]any),
	}
}

// AgentAssigned asks the agent runtime to work on an agent_task node.
type AgentAssigned struct {
	BaseEvent

	AgentInstanceID string `json:"agent_instance_id"`
	ProjectID       string `json:"project_id,omitempty"`
	StoryID         string `json:"story_id,omitempty"`
	NodeID          string `json:"node_id"`
	Role            string `json:"role"`
	Description     string `json:"description"`
}

func (e AgentAssigned) GetType() EventType {
	return AgentAssignedEvent
}

// AgentCompleted is reported by the agent runtime when an assignment finishes.
type AgentCompleted struct {
	BaseEvent

	AgentInstanceID string         `json:"agent_instance_id,omitempty"`
	NodeID          string         `json:"node_id"`
	Success         bool           `json:"success"`
	Output          map[string]any `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func (e AgentCompleted) GetType() EventType {
	return AgentCompletedEvent
}

type AgentStatusReported struct {
	BaseEvent

	ProjectID       string `json:"project_id"`
	AgentInstanceID string `json:"agent_instance_id"`
	Status          string `json:"status"`
}

func (e AgentStatusReported) GetType() EventType {
	return AgentStatusEvent
}

type AgentLogLine struct {
	BaseEvent

	ProjectID       string `json:"project_id"`
	AgentInstanceID string `json:"agent_instance_id"`
	Line            string `json:"line"`
	Stream          string `json:"stream,omitempty"`
}

func (e AgentLogLine) GetType() EventType {
	return AgentLogEvent
}

// CardMoved tells the board service to move a story card.
type CardMoved struct {
	BaseEvent

	ProjectID string           `json:"project_id"`
	StoryID   string           `json:"story_id"`
	NodeID    string           `json:"node_id"`
	Phase     models.CardPhase `json:"phase"`
	Status    string           `json:"status"`
}

func (e CardMoved) GetType() EventType {
	return CardMovedEvent
}

// RealtimeRelay carries a real-time notification to out-of-process gateways.
type RealtimeRelay struct {
	BaseEvent

	ProjectID string `json:"project_id"`
	Name      Name   `json:"name"`
	Payload   any    `json:"payload"`
}

func (e RealtimeRelay) GetType() EventType {
	return RealtimeRelayEvent
}
