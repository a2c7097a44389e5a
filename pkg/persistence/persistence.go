// Package persistence provides the durable store for workflow templates and runs.
package persistence

import (
	"context"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TemplateRepository stores workflow templates. Authoring happens elsewhere;
// the engine only reads them when a run is triggered.
type TemplateRepository interface {
	Templates(ctx context.Context) ([]*models.WorkflowTemplate, error)
	TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// RunRepository is the run state store and the source of truth for recovery.
// Every write must be durable when the call returns.
type RunRepository interface {
	// CreateRun persists a new run; fails with ErrRunAlreadyExists on id collision.
	CreateRun(ctx context.Context, run *models.WorkflowRun) error

	// SaveRun replaces the stored state of an existing run.
	SaveRun(ctx context.Context, run *models.WorkflowRun) error

	// RunByID fails with ErrRunNotFound for unknown ids.
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)

	// ListRuns returns runs matching filter, newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.WorkflowRun, error)
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Statuses   []models.RunStatus
	ProjectID  string
	TemplateID string
	Limit      int
}

// ActiveRuns matches every run that has not reached a terminal status.
func ActiveRuns() RunFilter {
	return RunFilter{Statuses: []models.RunStatus{
		models.RunStatusPending,
		models.RunStatusRunning,
		models.RunStatusPaused,
	}}
}

// Matches reports whether run satisfies the filter, ignoring Limit.
func (f RunFilter) Matches(run *models.WorkflowRun) bool {
	if f.ProjectID != "" && run.ProjectID != f.ProjectID {
		return false
	}

	if f.TemplateID != "" && run.TemplateID != f.TemplateID {
		return false
	}

	if len(f.Statuses) == 0 {
		return true
	}

	for _, status := range f.Statuses {
		if run.Status == status {
			return true
		}
	}

	return false
}
