package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
)

// TemplateRepository handles template-related file operations.
type TemplateRepository struct {
	dir string
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{dir: filepath.Join(root, "templates")}
}

// Templates returns every stored template ordered by id.
func (tr *TemplateRepository) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	ids, err := listIDs(tr.dir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := tr.TemplateByID(ctx, id)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })

	return templates, nil
}

// TemplateByID loads a template by id.
func (tr *TemplateRepository) TemplateByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewTemplateError("TemplateByID", id, err)
	}

	var template models.WorkflowTemplate

	err = readJSON(tr.dir, id, &template)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewTemplateError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("TemplateByID", id, err)
	}

	return &template, nil
}

// SaveTemplate creates or replaces a template.
func (tr *TemplateRepository) SaveTemplate(_ context.Context, template *models.WorkflowTemplate) error {
	err := validateID(template.ID)
	if err != nil {
		return persistence.NewTemplateError("SaveTemplate", template.ID, err)
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	err = writeJSON(tr.dir, template.ID, template)
	if err != nil {
		return persistence.NewTemplateError("SaveTemplate", template.ID, err)
	}

	return nil
}

// DeleteTemplate removes a template.
func (tr *TemplateRepository) DeleteTemplate(_ context.Context, id string) error {
	err := validateID(id)
	if err != nil {
		return persistence.NewTemplateError("DeleteTemplate", id, err)
	}

	err = os.Remove(filepath.Join(tr.dir, id+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewTemplateError("DeleteTemplate", id, persistence.ErrTemplateNotFound)
		}

		return persistence.NewTemplateError("DeleteTemplate", id, fmt.Errorf("failed to delete template file: %w", err))
	}

	return nil
}
