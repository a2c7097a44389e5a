package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"workflow_runs", "workflow_templates", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("squads_test"),
			postgres.WithUsername("squads"),
			postgres.WithPassword("squads"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func sampleTemplate() *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:        "delivery",
		Name:      "Delivery",
		ProjectID: "proj-1",
		Nodes: []*models.Node{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "gate", Type: models.NodeTypeApprovalGate, Approval: &models.ApprovalConfig{Description: "ship it?"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Edges: []*models.Edge{
			{Source: "start", Target: "gate"},
			{Source: "gate", Target: "end"},
		},
	}
}

func TestTemplateRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TemplateRepository()

	require.NoError(t, repo.SaveTemplate(ctx, sampleTemplate()))

	loaded, err := repo.TemplateByID(ctx, "delivery")
	require.NoError(t, err)
	assert.Equal(t, "Delivery", loaded.Name)
	assert.Equal(t, "ship it?", loaded.Nodes[1].Approval.Description)

	templates, err := repo.Templates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 1)

	require.NoError(t, repo.DeleteTemplate(ctx, "delivery"))

	_, err = repo.TemplateByID(ctx, "delivery")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestRunRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RunRepository()

	now := time.Now().UTC().Truncate(time.Millisecond)
	run := &models.WorkflowRun{
		ID:         uuid.NewString(),
		TemplateID: "delivery",
		ProjectID:  "proj-1",
		Status:     models.RunStatusPending,
		Graph:      sampleTemplate(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	require.NoError(t, repo.CreateRun(ctx, run))
	assert.ErrorIs(t, repo.CreateRun(ctx, run), persistence.ErrRunAlreadyExists)

	run.Status = models.RunStatusPaused
	run.CurrentNodeID = "gate"
	require.NoError(t, repo.SaveRun(ctx, run))

	loaded, err := repo.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPaused, loaded.Status)
	assert.Equal(t, "gate", loaded.CurrentNodeID)

	other := run.Clone()
	other.ID = uuid.NewString()
	other.ProjectID = "proj-2"
	other.Status = models.RunStatusCompleted
	other.CurrentNodeID = ""
	other.CreatedAt = now.Add(time.Minute)
	require.NoError(t, repo.CreateRun(ctx, other))

	runs, err := repo.ListRuns(ctx, persistence.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, other.ID, runs[0].ID)

	runs, err = repo.ListRuns(ctx, persistence.ActiveRuns())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	runs, err = repo.ListRuns(ctx, persistence.RunFilter{ProjectID: "proj-2", Limit: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = repo.RunByID(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))

	err = repo.SaveRun(ctx, &models.WorkflowRun{ID: "missing", Status: models.RunStatusRunning})
	assert.True(t, persistence.IsRunNotFound(err))
}
