package web

import (
	"errors"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/graph"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/templates"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// ValidationProblem is a 400 problem carrying every graph violation.
type ValidationProblem struct {
	*problems.Problem

	TemplateID string            `json:"template_id,omitempty"`
	Violations []graph.Violation `json:"violations,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func invalidTemplate(c fiber.Ctx, err error) error {
	problem := &ValidationProblem{
		Problem: problems.NewStatusProblem(fiber.StatusBadRequest).
			WithInstance(c.Path()).
			WithType("invalid_template").
			WithDetail("template is invalid"),
	}

	var validationErr *graph.ValidationError
	if errors.As(err, &validationErr) {
		problem.TemplateID = validationErr.TemplateID
		problem.Violations = validationErr.Violations
	}

	var schemaErr *templates.SchemaError
	if errors.As(err, &schemaErr) {
		problem.Errors = schemaErr.Errors
	} else if problem.Violations == nil {
		problem.Errors = []string{err.Error()}
	}

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleEngineError maps engine and persistence errors onto problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case graph.IsValidationError(err), errors.Is(err, templates.ErrInvalidDocument):
		return invalidTemplate(c, err)

	case errors.Is(err, engine.ErrInvalidRequest):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrNotFound):
		problem := problems.NewStatusProblem(fiber.StatusNotFound).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, engine.ErrInvalidStateTransition):
		problem := problems.NewStatusProblem(fiber.StatusConflict).
			WithInstance(c.Path()).
			WithType("invalid_state_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, engine.ErrEngineClosed):
		problem := problems.NewStatusProblem(fiber.StatusServiceUnavailable).
			WithInstance(c.Path()).
			WithType("unavailable").
			WithDetail("engine is shutting down")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
