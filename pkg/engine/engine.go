// Package engine advances workflow runs through their template graph.
//
// Each run is driven by a single logical actor: messages for a run (start,
// agent completion, approval decision, recovery resume) are queued and
// consumed by one goroutine at a time, under a per-run lock. Every transition
// is persisted before the next node is entered and before its notification is
// published, so the run store alone is enough to resume after a crash.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/board"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/broadcast"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/graph"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/lock"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/otelhelper"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the engine's collaborators. Board, Locker and Tracer are optional.
type Config struct {
	Runs        persistence.RunRepository
	Templates   persistence.TemplateRepository
	Dispatcher  agent.Dispatcher
	Board       board.Mover
	Broadcaster broadcast.Publisher
	Locker      lock.Locker
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

type Engine struct {
	runs        persistence.RunRepository
	templates   persistence.TemplateRepository
	dispatcher  agent.Dispatcher
	board       board.Mover
	broadcaster broadcast.Publisher
	locker      lock.Locker
	tracer      trace.Tracer
	logger      *slog.Logger
	handlers    map[models.NodeType]nodeHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	mailboxes map[string][]message
}

// TriggerRequest starts a run of a template.
type TriggerRequest struct {
	TemplateID string
	ProjectID  string
	StoryID    string
	Input      map[string]any
}

func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Runs == nil:
		return nil, errors.New("engine requires a run repository")
	case cfg.Templates == nil:
		return nil, errors.New("engine requires a template repository")
	case cfg.Dispatcher == nil:
		return nil, errors.New("engine requires an agent dispatcher")
	case cfg.Broadcaster == nil:
		return nil, errors.New("engine requires a broadcaster")
	case cfg.Logger == nil:
		return nil, errors.New("engine requires a logger")
	}

	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otelhelper.NoopTracer()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		runs:        cfg.Runs,
		templates:   cfg.Templates,
		dispatcher:  cfg.Dispatcher,
		board:       cfg.Board,
		broadcaster: cfg.Broadcaster,
		locker:      cfg.Locker,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger.With("module", "engine"),
		ctx:         ctx,
		cancel:      cancel,
		mailboxes:   make(map[string][]message),
	}

	e.handlers = e.handlerTable()

	for _, nodeType := range models.NodeTypes() {
		if _, ok := e.handlers[nodeType]; !ok {
			cancel()

			return nil, fmt.Errorf("%w: %s", ErrMissingHandler, nodeType)
		}
	}

	return e, nil
}

// Trigger creates a pending run from a snapshot of the template and starts it
// asynchronously. The returned run is the persisted pending state.
func (e *Engine) Trigger(ctx context.Context, req TriggerRequest) (*models.WorkflowRun, error) {
	if req.TemplateID == "" {
		return nil, fmt.Errorf("%w: template id is required", ErrInvalidRequest)
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return nil, ErrEngineClosed
	}

	template, err := e.templates.TemplateByID(ctx, req.TemplateID)
	if err != nil {
		return nil, notFound(err)
	}

	err = graph.Validate(template)
	if err != nil {
		return nil, err
	}

	projectID := req.ProjectID
	if projectID == "" {
		projectID = template.ProjectID
	}

	now := time.Now().UTC()
	run := &models.WorkflowRun{
		ID:             uuid.NewString(),
		TemplateID:     template.ID,
		ProjectID:      projectID,
		StoryID:        req.StoryID,
		Status:         models.RunStatusPending,
		Input:          req.Input,
		Graph:          template.Clone(),
		NodeExecutions: []*models.NodeExecution{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = e.runs.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	e.logger.InfoContext(ctx, "run triggered",
		"run_id", run.ID, "template_id", run.TemplateID, "project_id", run.ProjectID)

	e.publishRun(ctx, run)

	err = e.deliver(run.ID, message{kind: messageStart})
	if err != nil {
		return nil, err
	}

	return run.Clone(), nil
}

// Get returns the full state of a run including its execution log.
func (e *Engine) Get(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	run, err := e.runs.RunByID(ctx, runID)
	if err != nil {
		return nil, notFound(err)
	}

	return run, nil
}

// List returns runs matching filter, newest first.
func (e *Engine) List(ctx context.Context, filter persistence.RunFilter) ([]*models.WorkflowRun, error) {
	return e.runs.ListRuns(ctx, filter)
}

// Recover resumes every non-terminal run found in the store and returns how many were resumed.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	runs, err := e.runs.ListRuns(ctx, persistence.ActiveRuns())
	if err != nil {
		return 0, fmt.Errorf("failed to list active runs: %w", err)
	}

	for _, run := range runs {
		err = e.deliver(run.ID, message{kind: messageResume})
		if err != nil {
			return 0, err
		}
	}

	e.logger.InfoContext(ctx, "recovered active runs", "count", len(runs))

	return len(runs), nil
}

// Shutdown stops accepting messages and waits for queued work to drain.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	defer e.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveRuns returns the number of runs with queued or in-flight messages.
func (e *Engine) ActiveRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.mailboxes)
}

func (e *Engine) publish(ctx context.Context, run *models.WorkflowRun, event events.Realtime) {
	e.broadcaster.Publish(ctx, run.ProjectID, event)
}

func (e *Engine) publishRun(ctx context.Context, run *models.WorkflowRun) {
	e.publish(ctx, run, events.WorkflowRun{RunID: run.ID, Status: string(run.Status)})
}

func (e *Engine) publishNode(ctx context.Context, run *models.WorkflowRun, nodeID string, status models.NodeStatus) {
	e.publish(ctx, run, events.WorkflowNode{RunID: run.ID, NodeID: nodeID, Status: string(status)})
}

func (e *Engine) save(ctx context.Context, run *models.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()

	err := e.runs.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}

	return nil
}

func (e *Engine) startSpan(ctx context.Context, name string, run *models.WorkflowRun) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, e.tracer, name,
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.TemplateIDKey, run.TemplateID),
		attribute.String(otelhelper.ProjectIDKey, run.ProjectID),
	)
}
