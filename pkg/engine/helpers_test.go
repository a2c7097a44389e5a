package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/board"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	assignments []agent.Assignment
	instanceIDs []string
	err         error
}

func (d *fakeDispatcher) Assign(_ context.Context, assignment agent.Assignment) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return "", d.err
	}

	id := "agent-" + uuid.NewString()[:8]
	d.assignments = append(d.assignments, assignment)
	d.instanceIDs = append(d.instanceIDs, id)

	return id, nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.assignments)
}

type fakeBoard struct {
	mu    sync.Mutex
	moves []board.CardMove
	err   error
}

func (b *fakeBoard) MoveCard(_ context.Context, move board.CardMove) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.moves = append(b.moves, move)

	return b.err
}

func (b *fakeBoard) recorded() []board.CardMove {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]board.CardMove(nil), b.moves...)
}

type published struct {
	projectID string
	event     events.Realtime
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingBroadcaster) Publish(_ context.Context, projectID string, event events.Realtime) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, published{projectID: projectID, event: event})
}

func (r *recordingBroadcaster) named(name events.Name) []events.Realtime {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []events.Realtime

	for _, p := range r.events {
		if p.event.EventName() == name {
			out = append(out, p.event)
		}
	}

	return out
}

func (r *recordingBroadcaster) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

type harness struct {
	engine      *engine.Engine
	store       *file.Persistence
	dispatcher  *fakeDispatcher
	board       *fakeBoard
	broadcaster *recordingBroadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return newHarnessWithStore(t, file.NewPersistence(t.TempDir()))
}

func newHarnessWithStore(t *testing.T, store *file.Persistence) *harness {
	t.Helper()

	h := &harness{
		store:       store,
		dispatcher:  &fakeDispatcher{},
		board:       &fakeBoard{},
		broadcaster: &recordingBroadcaster{},
	}

	e, err := engine.New(engine.Config{
		Runs:        store.RunRepository(),
		Templates:   store.TemplateRepository(),
		Dispatcher:  h.dispatcher,
		Board:       h.board,
		Broadcaster: h.broadcaster,
		Logger:      slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = e.Shutdown(ctx)
	})

	h.engine = e

	return h
}

func (h *harness) saveTemplate(t *testing.T, template *models.WorkflowTemplate) {
	t.Helper()

	require.NoError(t, h.store.TemplateRepository().SaveTemplate(t.Context(), template))
}

func (h *harness) trigger(t *testing.T, templateID string, input map[string]any) *models.WorkflowRun {
	t.Helper()

	run, err := h.engine.Trigger(t.Context(), engine.TriggerRequest{
		TemplateID: templateID,
		ProjectID:  "proj-1",
		StoryID:    "story-1",
		Input:      input,
	})
	require.NoError(t, err)

	return run
}

// waitFor polls the stored run until cond holds and the engine is idle.
func (h *harness) waitFor(t *testing.T, runID string, cond func(*models.WorkflowRun) bool) *models.WorkflowRun {
	t.Helper()

	var run *models.WorkflowRun

	require.Eventually(t, func() bool {
		if h.engine.ActiveRuns() != 0 {
			return false
		}

		var err error

		run, err = h.engine.Get(t.Context(), runID)

		return err == nil && cond(run)
	}, 5*time.Second, 10*time.Millisecond)

	assertCursorInvariant(t, run)

	return run
}

func hasStatus(status models.RunStatus) func(*models.WorkflowRun) bool {
	return func(run *models.WorkflowRun) bool { return run.Status == status }
}

func assertCursorInvariant(t *testing.T, run *models.WorkflowRun) {
	t.Helper()

	assert.Equal(t, run.Status.HasCursor(), run.CurrentNodeID != "",
		"run %s in status %s has cursor %q", run.ID, run.Status, run.CurrentNodeID)

	active := 0

	for _, execution := range run.NodeExecutions {
		if execution.Status == models.NodeStatusRunning {
			active++
		}
	}

	assert.LessOrEqual(t, active, 1)
}

func executionOrder(run *models.WorkflowRun) ([]string, []models.NodeStatus) {
	ids := make([]string, 0, len(run.NodeExecutions))
	statuses := make([]models.NodeStatus, 0, len(run.NodeExecutions))

	for _, execution := range run.NodeExecutions {
		ids = append(ids, execution.NodeID)
		statuses = append(statuses, execution.Status)
	}

	return ids, statuses
}

func startNode() *models.Node {
	return &models.Node{ID: "start", Type: models.NodeTypeStart}
}

func endNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeEnd}
}

func agentNode(id string, moveOn models.CardPhase) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeAgentTask, AgentTask: &models.AgentTaskConfig{
		Role:        "developer",
		Description: "implement the story",
		BoardStatus: "in_progress",
		MoveCardOn:  moveOn,
	}}
}

func gateNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeApprovalGate, Approval: &models.ApprovalConfig{Description: "release?"}}
}

func linear(id string, middle *models.Node) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:        id,
		ProjectID: "proj-1",
		Nodes:     []*models.Node{startNode(), middle, endNode("end")},
		Edges: []*models.Edge{
			{Source: "start", Target: middle.ID},
			{Source: middle.ID, Target: "end"},
		},
	}
}

func conditionTemplate(expression string) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		ID:        "branching",
		ProjectID: "proj-1",
		Nodes: []*models.Node{
			startNode(),
			{ID: "check", Type: models.NodeTypeCondition, Condition: &models.ConditionConfig{Expression: expression}},
			endNode("end_a"),
			endNode("end_b"),
		},
		Edges: []*models.Edge{
			{Source: "start", Target: "check"},
			{Source: "check", Target: "end_a", Branch: "true"},
			{Source: "check", Target: "end_b", Branch: "false"},
		},
	}
}

var errAgentsDown = errors.New("agent runtime unavailable")

func contextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	return context.WithTimeout(t.Context(), timeout)
}
