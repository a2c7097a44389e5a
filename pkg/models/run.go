package models

import (
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition may leave the status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// HasCursor reports whether a run in this status must point at a current node.
func (s RunStatus) HasCursor() bool {
	return s == RunStatusRunning || s == RunStatusPaused
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// ApprovalStatus is the outcome of a human decision on an approval gate.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// RunErrorKind classifies why a run failed.
type RunErrorKind string

const (
	RunErrorNoMatchingBranch RunErrorKind = "NoMatchingBranch"
	RunErrorEvaluation       RunErrorKind = "EvaluationError"
	RunErrorDispatch         RunErrorKind = "DispatchError"
	RunErrorRejected         RunErrorKind = "Rejected"
	RunErrorInternal         RunErrorKind = "InternalError"
)

// RunError records the failure that terminated a run.
type RunError struct {
	Kind    RunErrorKind `json:"kind"`
	NodeID  string       `json:"node_id,omitempty"`
	Message string       `json:"message"`
}

// WorkflowRun is one execution instance of a template.
type WorkflowRun struct {
	ID             string             `json:"id"`
	TemplateID     string             `json:"template_id"`
	ProjectID      string             `json:"project_id,omitempty"`
	StoryID        string             `json:"story_id,omitempty"`
	Status         RunStatus          `json:"status"`
	CurrentNodeID  string             `json:"current_node_id,omitempty"`
	Input          map[string]any     `json:"input,omitempty"`
	Graph          *WorkflowTemplate  `json:"graph"`
	NodeExecutions []*NodeExecution   `json:"node_executions"`
	Approvals      []ApprovalDecision `json:"approvals,omitempty"`
	Error          *RunError          `json:"error,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NodeExecution is the per-node audit record within a run's log.
type NodeExecution struct {
	NodeID          string         `json:"node_id"`
	NodeType        NodeType       `json:"node_type"`
	Status          NodeStatus     `json:"status"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	AgentInstanceID string         `json:"agent_instance_id,omitempty"`
	Result          string         `json:"result,omitempty"`
	Output          map[string]any `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// ApprovalDecision records a human decision on an approval gate.
type ApprovalDecision struct {
	RunID     string         `json:"run_id"`
	NodeID    string         `json:"node_id"`
	Status    ApprovalStatus `json:"status"`
	DecidedBy string         `json:"decided_by,omitempty"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
	Comment   string         `json:"comment,omitempty"`
}

// Execution returns the log entry for nodeID, if the node was visited.
func (r *WorkflowRun) Execution(nodeID string) (*NodeExecution, bool) {
	for _, execution := range r.NodeExecutions {
		if execution.NodeID == nodeID {
			return execution, true
		}
	}

	return nil, false
}

// Approval returns the recorded decision for the gate nodeID.
func (r *WorkflowRun) Approval(nodeID string) (*ApprovalDecision, bool) {
	for i := range r.Approvals {
		if r.Approvals[i].NodeID == nodeID {
			return &r.Approvals[i], true
		}
	}

	return nil, false
}

// CurrentNode resolves the cursor against the run's graph snapshot.
func (r *WorkflowRun) CurrentNode() (*Node, bool) {
	if r.CurrentNodeID == "" || r.Graph == nil {
		return nil, false
	}

	return r.Graph.Node(r.CurrentNodeID)
}

// Clone returns a deep copy of the run, safe to hand to callers.
func (r *WorkflowRun) Clone() *WorkflowRun {
	if r == nil {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}

	var clone WorkflowRun

	err = json.Unmarshal(data, &clone)
	if err != nil {
		return nil
	}

	return &clone
}
