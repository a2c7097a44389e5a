package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// RunRepository stores each run as a JSONB document with scalar columns for filtering.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// CreateRun inserts a new run.
func (rr *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	document, err := json.Marshal(run)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, fmt.Errorf("failed to marshal run: %w", err))
	}

	query := `
		INSERT INTO workflow_runs (
			id, template_id, project_id, story_id, status, current_node_id, document, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = rr.db.ExecContext(ctx, query,
		run.ID, run.TemplateID, run.ProjectID, run.StoryID, run.Status, run.CurrentNodeID,
		document, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewRunError("CreateRun", run.ID, persistence.ErrRunAlreadyExists)
		}

		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// SaveRun replaces the stored state of an existing run.
func (rr *RunRepository) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	document, err := json.Marshal(run)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, fmt.Errorf("failed to marshal run: %w", err))
	}

	query := `
		UPDATE workflow_runs
		SET status = $2, current_node_id = $3, document = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := rr.db.ExecContext(ctx, query, run.ID, run.Status, run.CurrentNodeID, document, run.UpdatedAt)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("SaveRun", run.ID, persistence.ErrRunNotFound)
	}

	return nil
}

// RunByID returns a run by its id.
func (rr *RunRepository) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	var document []byte

	err := rr.db.QueryRowContext(ctx, `SELECT document FROM workflow_runs WHERE id = $1`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", id, err)
	}

	var run models.WorkflowRun

	err = json.Unmarshal(document, &run)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", id, fmt.Errorf("failed to unmarshal run: %w", err))
	}

	return &run, nil
}

// ListRuns returns runs matching filter, newest first.
func (rr *RunRepository) ListRuns(ctx context.Context, filter persistence.RunFilter) ([]*models.WorkflowRun, error) {
	var (
		conditions []string
		args       []any
	)

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}

		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}

	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		conditions = append(conditions, fmt.Sprintf("template_id = $%d", len(args)))
	}

	query := `SELECT document FROM workflow_runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := rr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var runs []*models.WorkflowRun

	for rows.Next() {
		var document []byte

		err = rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var run models.WorkflowRun

		err = json.Unmarshal(document, &run)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}

		runs = append(runs, &run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}
