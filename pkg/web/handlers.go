// Package web exposes the workflow engine over HTTP.
package web

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/templates"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const maxListLimit = 500

type APIHandlers struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	broadcaster *broadcast.Broadcaster
	validator   *validator.Validate
	logger      *slog.Logger
	keepAlive   time.Duration
	done        chan struct{}
}

func NewAPIHandlers(
	logger *slog.Logger,
	workflowEngine *engine.Engine,
	persistence persistence.Persistence,
	broadcaster *broadcast.Broadcaster,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:      workflowEngine,
		persistence: persistence,
		broadcaster: broadcaster,
		validator:   validator,
		logger:      logger.With("module", "web"),
		keepAlive:   defaultKeepAlive,
		done:        make(chan struct{}),
	}
}

// Close ends every open event stream.
func (h *APIHandlers) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *APIHandlers) TriggerRun(c fiber.Ctx) error {
	templateID := c.Params("id")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	var req TriggerRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	run, err := h.engine.Trigger(c.Context(), engine.TriggerRequest{
		TemplateID: templateID,
		ProjectID:  req.ProjectID,
		StoryID:    req.StoryID,
		Input:      req.Input,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.engine.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	filter, err := parseRunFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	runs, err := h.engine.List(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	if runs == nil {
		runs = []*models.WorkflowRun{}
	}

	return c.JSON(RunsResponse{Runs: runs, Count: len(runs)})
}

func parseRunFilter(c fiber.Ctx) (persistence.RunFilter, error) {
	filter := persistence.RunFilter{
		ProjectID:  c.Query("project_id"),
		TemplateID: c.Query("template_id"),
	}

	if statuses := c.Query("status"); statuses != "" {
		for _, raw := range strings.Split(statuses, ",") {
			status := models.RunStatus(strings.TrimSpace(raw))
			switch status {
			case models.RunStatusPending, models.RunStatusRunning, models.RunStatusPaused,
				models.RunStatusCompleted, models.RunStatusFailed:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, fmt.Errorf("unknown status %q", raw)
			}
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return filter, err
		}

		if limit < 0 {
			return filter, fmt.Errorf("limit must not be negative, got %d", limit)
		}

		filter.Limit = min(limit, maxListLimit)
	}

	return filter, nil
}

func (h *APIHandlers) DecideApproval(c fiber.Ctx) error {
	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.engine.Decide(c.Context(), engine.DecideRequest{
		RunID:     c.Params("id"),
		NodeID:    c.Params("nodeId"),
		Decision:  req.Decision,
		DecidedBy: req.DecidedBy,
		Comment:   req.Comment,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) CompleteAgentTask(c fiber.Ctx) error {
	var req CompletionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	runID := c.Params("id")

	err := h.engine.CompleteAgentTask(c.Context(), agent.Completion{
		RunID:           runID,
		NodeID:          c.Params("nodeId"),
		AgentInstanceID: req.AgentInstanceID,
		Success:         req.Success,
		Output:          req.Output,
		Error:           req.Error,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	run, err := h.engine.Get(c.Context(), runID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(run)
}

// ValidateTemplate checks a YAML or JSON template document without storing it.
func (h *APIHandlers) ValidateTemplate(c fiber.Ctx) error {
	template, err := templates.Parse(c.Body())
	if err != nil {
		return invalidTemplate(c, err)
	}

	return c.JSON(ValidateTemplateResponse{
		Valid:      true,
		TemplateID: template.ID,
		Nodes:      len(template.Nodes),
		Edges:      len(template.Edges),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		h.logger.ErrorContext(c.Context(), "health check failed", "error", err)

		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":      "healthy",
		"active_runs": h.engine.ActiveRuns(),
		"timestamp":   time.Now().UTC(),
	})
}
