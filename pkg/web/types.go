package web

import "github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"

// TriggerRunRequest is the optional body of POST /templates/:id/runs.
type TriggerRunRequest struct {
	ProjectID string         `json:"project_id"`
	StoryID   string         `json:"story_id"`
	Input     map[string]any `json:"input"`
}

// DecisionRequest is the body of POST /runs/:id/nodes/:nodeId/decision.
type DecisionRequest struct {
	Decision  models.ApprovalStatus `json:"decision"   validate:"required,oneof=approved rejected"`
	DecidedBy string                `json:"decided_by" validate:"required"`
	Comment   string                `json:"comment"`
}

// CompletionRequest is the body of POST /runs/:id/nodes/:nodeId/completion.
type CompletionRequest struct {
	AgentInstanceID string         `json:"agent_instance_id" validate:"required"`
	Success         bool           `json:"success"`
	Output          map[string]any `json:"output"`
	Error           string         `json:"error"             validate:"required_if=Success false"`
}

// ValidateTemplateResponse reports a template that passed validation.
type ValidateTemplateResponse struct {
	Valid      bool   `json:"valid"`
	TemplateID string `json:"template_id"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
}

// RunsResponse wraps GET /runs.
type RunsResponse struct {
	Runs  []*models.WorkflowRun `json:"runs"`
	Count int                   `json:"count"`
}
