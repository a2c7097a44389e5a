package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
)

// RunRepository stores one JSON document per run.
type RunRepository struct {
	dir string
	mu  sync.Mutex
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{dir: filepath.Join(root, "runs")}
}

// CreateRun persists a new run.
func (rr *RunRepository) CreateRun(_ context.Context, run *models.WorkflowRun) error {
	err := validateID(run.ID)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	_, err = os.Stat(filepath.Join(rr.dir, run.ID+".json"))
	if err == nil {
		return persistence.NewRunError("CreateRun", run.ID, persistence.ErrRunAlreadyExists)
	}

	err = writeJSON(rr.dir, run.ID, run)
	if err != nil {
		return persistence.NewRunError("CreateRun", run.ID, err)
	}

	return nil
}

// SaveRun replaces the stored state of an existing run.
func (rr *RunRepository) SaveRun(_ context.Context, run *models.WorkflowRun) error {
	err := validateID(run.ID)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	_, err = os.Stat(filepath.Join(rr.dir, run.ID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewRunError("SaveRun", run.ID, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	err = writeJSON(rr.dir, run.ID, run)
	if err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	return nil
}

// RunByID loads a run by id.
func (rr *RunRepository) RunByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewRunError("RunByID", id, err)
	}

	var run models.WorkflowRun

	err = readJSON(rr.dir, id, &run)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("RunByID", id, err)
	}

	return &run, nil
}

// ListRuns scans every stored run and applies the filter in memory.
func (rr *RunRepository) ListRuns(ctx context.Context, filter persistence.RunFilter) ([]*models.WorkflowRun, error) {
	ids, err := listIDs(rr.dir)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.WorkflowRun, 0, len(ids))

	for _, id := range ids {
		run, err := rr.RunByID(ctx, id)
		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}

			return nil, err
		}

		if filter.Matches(run) {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}

		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}

	return runs, nil
}
