package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

// CompleteAgentTask applies an agent's reported outcome to the agent_task node
// it was assigned. Completions for a node that is no longer running are
// accepted and ignored, so redelivered completions are harmless. Errors that
// redelivery cannot fix also match agent.ErrCompletionRejected.
func (e *Engine) CompleteAgentTask(ctx context.Context, completion agent.Completion) error {
	if completion.RunID == "" || completion.NodeID == "" {
		return rejectCompletion(fmt.Errorf("%w: run id and node id are required", ErrInvalidRequest))
	}

	_, err := e.call(ctx, completion.RunID, message{kind: messageAgentCompleted, completion: &completion})

	return rejectCompletion(err)
}

func rejectCompletion(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidStateTransition) {
		return fmt.Errorf("%w: %w", agent.ErrCompletionRejected, err)
	}

	return err
}

func (e *Engine) agentCompleted(ctx context.Context, run *models.WorkflowRun, completion agent.Completion) error {
	node, ok := run.Graph.Node(completion.NodeID)
	if !ok || node.Type != models.NodeTypeAgentTask {
		return invalidTransition(run.ID, completion.NodeID, "node is not an agent task of this run")
	}

	execution, visited := run.Execution(node.ID)
	if !visited {
		return invalidTransition(run.ID, node.ID, "agent task was never started")
	}

	if execution.Status != models.NodeStatusRunning || run.CurrentNodeID != node.ID || run.Status != models.RunStatusRunning {
		e.logger.DebugContext(ctx, "ignoring completion for a node that is not running",
			"run_id", run.ID, "node_id", node.ID, "node_status", execution.Status)

		return nil
	}

	if completion.AgentInstanceID != "" && execution.AgentInstanceID != "" &&
		completion.AgentInstanceID != execution.AgentInstanceID {
		return invalidTransition(run.ID, node.ID, "agent instance %s is not assigned to this node", completion.AgentInstanceID)
	}

	instanceID := execution.AgentInstanceID
	if instanceID == "" {
		instanceID = completion.AgentInstanceID
	}

	if !completion.Success {
		e.publish(ctx, run, events.AgentStatus{AgentInstanceID: instanceID, Status: "failed"})

		reason := completion.Error
		if reason == "" {
			reason = "agent reported failure"
		}

		return e.fail(ctx, run, node, models.RunErrorDispatch, fmt.Sprintf("%s: %s", ErrDispatch.Error(), reason))
	}

	execution.AgentInstanceID = instanceID

	err := e.complete(ctx, run, node, "", completion.Output)
	if err != nil {
		return err
	}

	e.publish(ctx, run, events.AgentStatus{AgentInstanceID: instanceID, Status: "completed"})

	if node.AgentTask.MoveCardOn == models.CardPhaseComplete {
		e.moveCard(ctx, run, node, models.NodeStatusCompleted)
	}

	next, err := e.successor(ctx, run, node, "")
	if err != nil || next == nil {
		return err
	}

	return e.drive(ctx, run, next)
}
