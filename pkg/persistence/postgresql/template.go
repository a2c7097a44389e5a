package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// Templates returns every template ordered by id.
func (tr *TemplateRepository) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	rows, err := tr.db.QueryContext(ctx, `SELECT document FROM workflow_templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			tr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var templates []*models.WorkflowTemplate

	for rows.Next() {
		var document []byte

		err = rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		var template models.WorkflowTemplate

		err = json.Unmarshal(document, &template)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}

		templates = append(templates, &template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating template rows: %w", err)
	}

	return templates, nil
}

// TemplateByID returns a template by its id.
func (tr *TemplateRepository) TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	var document []byte

	err := tr.db.QueryRowContext(ctx, `SELECT document FROM workflow_templates WHERE id = $1`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("TemplateByID", id, err)
	}

	var template models.WorkflowTemplate

	err = json.Unmarshal(document, &template)
	if err != nil {
		return nil, persistence.NewTemplateError("TemplateByID", id, fmt.Errorf("failed to unmarshal template: %w", err))
	}

	return &template, nil
}

// SaveTemplate upserts a template.
func (tr *TemplateRepository) SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	document, err := json.Marshal(template)
	if err != nil {
		return persistence.NewTemplateError("SaveTemplate", template.ID, fmt.Errorf("failed to marshal template: %w", err))
	}

	query := `
		INSERT INTO workflow_templates (id, name, project_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			project_id = EXCLUDED.project_id,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tr.db.ExecContext(ctx, query,
		template.ID, template.Name, template.ProjectID, document, template.CreatedAt, template.UpdatedAt)
	if err != nil {
		return persistence.NewTemplateError("SaveTemplate", template.ID, err)
	}

	return nil
}

// DeleteTemplate removes a template.
func (tr *TemplateRepository) DeleteTemplate(ctx context.Context, id string) error {
	result, err := tr.db.ExecContext(ctx, `DELETE FROM workflow_templates WHERE id = $1`, id)
	if err != nil {
		return persistence.NewTemplateError("DeleteTemplate", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewTemplateError("DeleteTemplate", id, err)
	}

	if affected == 0 {
		return persistence.NewTemplateError("DeleteTemplate", id, persistence.ErrTemplateNotFound)
	}

	return nil
}
