package events

import "time"

// Name identifies a real-time notification on a project channel.
type Name string

const (
	WorkflowNodeName   Name = "workflow:node"
	WorkflowRunName    Name = "workflow:run"
	ApprovalNeededName Name = "approval:needed"
	AgentStatusName    Name = "agent:status"
	AgentLogName       Name = "agent:log"
	StoryStatusName    Name = "story:status"
)

// Realtime is a notification pushed to the subscribers of a project.
type Realtime interface {
	EventName() Name
}

type WorkflowNode struct {
	RunID  string `json:"runId"`
	NodeID string `json:"nodeId"`
	Status string `json:"status"`
}

func (WorkflowNode) EventName() Name { return WorkflowNodeName }

type WorkflowRun struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

func (WorkflowRun) EventName() Name { return WorkflowRunName }

type ApprovalNeeded struct {
	RunID       string `json:"runId"`
	NodeID      string `json:"nodeId"`
	Description string `json:"description"`
}

func (ApprovalNeeded) EventName() Name { return ApprovalNeededName }

type AgentStatus struct {
	AgentInstanceID string `json:"agentInstanceId"`
	Status          string `json:"status"`
}

func (AgentStatus) EventName() Name { return AgentStatusName }

type AgentLog struct {
	AgentInstanceID string    `json:"agentInstanceId"`
	Line            string    `json:"line"`
	Type            string    `json:"type"`
	RunID           string    `json:"runId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

func (AgentLog) EventName() Name { return AgentLogName }

type StoryStatus struct {
	StoryID            string `json:"storyId"`
	Status             string `json:"status"`
	WorkflowNodeStatus string `json:"workflowNodeStatus"`
}

func (StoryStatus) EventName() Name { return StoryStatusName }
