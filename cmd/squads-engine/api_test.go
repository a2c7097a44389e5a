package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/log"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence/file"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDispatcher struct{}

func (nopDispatcher) Assign(context.Context, agent.Assignment) (string, error) {
	return "agent-1", nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := log.Discard()
	store := file.NewPersistence(t.TempDir())
	broadcaster := broadcast.New(logger)

	e, err := engine.New(engine.Config{
		Runs:        store.RunRepository(),
		Templates:   store.TemplateRepository(),
		Dispatcher:  nopDispatcher{},
		Broadcaster: broadcaster,
		Logger:      logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = e.Shutdown(ctx)
	})

	handlers := web.NewAPIHandlers(logger, e, store, broadcaster, validator.New())
	t.Cleanup(handlers.Close)

	return App(handlers)
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Squads Engine API", body)
}

func TestAPI_HealthEndpoints(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		status, _ := get(t, app, path)
		assert.Equal(t, http.StatusOK, status, path)
	}
}

func TestAPI_RoutesRegistered(t *testing.T) {
	app := setupTestApp(t)

	status, _ := get(t, app, "/runs/ghost")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := get(t, app, "/runs")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"count":0`)
}

func TestNewScheduler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schedules:
  - id: nightly
    cron: "0 2 * * *"
    template_id: delivery
`), 0o600))

	s, err := newScheduler(log.Discard(), nil, path)
	require.NoError(t, err)

	_, ok := s.Next("nightly")
	assert.True(t, ok)

	s, err = newScheduler(log.Discard(), nil, "")
	require.NoError(t, err)
	assert.NotNil(t, s)
}
