package engine_test

import (
	"testing"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/engine"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execution(nodeID string, nodeType models.NodeType, status models.NodeStatus) *models.NodeExecution {
	now := time.Now().UTC()

	return &models.NodeExecution{NodeID: nodeID, NodeType: nodeType, Status: status, StartedAt: &now}
}

// seedRun stores a run as a crashed process would have left it.
func (h *harness) seedRun(
	t *testing.T,
	id string,
	template *models.WorkflowTemplate,
	status models.RunStatus,
	cursor string,
	executions ...*models.NodeExecution,
) {
	t.Helper()

	now := time.Now().UTC()
	run := &models.WorkflowRun{
		ID:             id,
		TemplateID:     template.ID,
		ProjectID:      "proj-1",
		Status:         status,
		CurrentNodeID:  cursor,
		Input:          map[string]any{"approved": false},
		Graph:          template.Clone(),
		NodeExecutions: executions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if status == models.RunStatusPaused {
		run.Approvals = []models.ApprovalDecision{{RunID: id, NodeID: cursor, Status: models.ApprovalStatusPending}}
	}

	require.NoError(t, h.store.RunRepository().CreateRun(t.Context(), run))
}

func TestRecover_ResumesEveryActiveRun(t *testing.T) {
	h := newHarness(t)

	agentTemplate := linear("delivery", agentNode("build", models.CardPhaseNone))
	gateTemplate := linear("release", gateNode("gate"))
	branching := conditionTemplate("input.approved")

	h.seedRun(t, "pending", gateTemplate, models.RunStatusPending, "")

	h.seedRun(t, "paused", gateTemplate, models.RunStatusPaused, "gate",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		execution("gate", models.NodeTypeApprovalGate, models.NodeStatusRunning))

	waiting := execution("build", models.NodeTypeAgentTask, models.NodeStatusRunning)
	waiting.AgentInstanceID = "agent-before-crash"
	h.seedRun(t, "waiting", agentTemplate, models.RunStatusRunning, "build",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		waiting)

	h.seedRun(t, "undispatched", agentTemplate, models.RunStatusRunning, "build",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		execution("build", models.NodeTypeAgentTask, models.NodeStatusRunning))

	h.seedRun(t, "mid-condition", branching, models.RunStatusRunning, "check",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		execution("check", models.NodeTypeCondition, models.NodeStatusRunning))

	h.seedRun(t, "between-nodes", branching, models.RunStatusRunning, "start",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted))

	h.seedRun(t, "finished", branching, models.RunStatusCompleted, "",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted))

	count, err := h.engine.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	pending := h.waitFor(t, "pending", hasStatus(models.RunStatusPaused))
	assert.Equal(t, "gate", pending.CurrentNodeID)

	paused := h.waitFor(t, "paused", hasStatus(models.RunStatusPaused))
	assert.Equal(t, "gate", paused.CurrentNodeID)

	waitingRun := h.waitFor(t, "waiting", hasStatus(models.RunStatusRunning))
	build, _ := waitingRun.Execution("build")
	assert.Equal(t, "agent-before-crash", build.AgentInstanceID)

	undispatched := h.waitFor(t, "undispatched", agentAssigned("build"))
	assert.Equal(t, models.RunStatusRunning, undispatched.Status)

	require.Equal(t, 1, h.dispatcher.count())
	assert.Equal(t, "undispatched", h.dispatcher.assignments[0].RunID)

	midCondition := h.waitFor(t, "mid-condition", hasStatus(models.RunStatusCompleted))
	ids, _ := executionOrder(midCondition)
	assert.Equal(t, []string{"start", "check", "end_b"}, ids)

	between := h.waitFor(t, "between-nodes", hasStatus(models.RunStatusCompleted))
	ids, _ = executionOrder(between)
	assert.Equal(t, []string{"start", "check", "end_b"}, ids)

	needed := map[string]bool{}
	for _, event := range h.broadcaster.named(events.ApprovalNeededName) {
		needed[event.(events.ApprovalNeeded).RunID] = true
	}

	assert.Equal(t, map[string]bool{"pending": true, "paused": true}, needed)
}

func TestRecover_RecoveredRunsAcceptSignals(t *testing.T) {
	h := newHarness(t)

	agentTemplate := linear("delivery", agentNode("build", models.CardPhaseNone))
	gateTemplate := linear("release", gateNode("gate"))

	h.seedRun(t, "paused", gateTemplate, models.RunStatusPaused, "gate",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		execution("gate", models.NodeTypeApprovalGate, models.NodeStatusRunning))

	waiting := execution("build", models.NodeTypeAgentTask, models.NodeStatusRunning)
	waiting.AgentInstanceID = "agent-before-crash"
	h.seedRun(t, "waiting", agentTemplate, models.RunStatusRunning, "build",
		execution("start", models.NodeTypeStart, models.NodeStatusCompleted),
		waiting)

	_, err := h.engine.Recover(t.Context())
	require.NoError(t, err)

	decided, err := h.engine.Decide(t.Context(), engine.DecideRequest{
		RunID: "paused", NodeID: "gate", Decision: models.ApprovalStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, decided.Status)

	require.NoError(t, h.engine.CompleteAgentTask(t.Context(), agent.Completion{
		RunID: "waiting", NodeID: "build", AgentInstanceID: "agent-before-crash", Success: true,
	}))

	done := h.waitFor(t, "waiting", hasStatus(models.RunStatusCompleted))
	assert.Len(t, done.NodeExecutions, 3)
	assert.Equal(t, 0, h.dispatcher.count())
}
