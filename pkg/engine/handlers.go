package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/board"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/condition"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/events"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/render"
)

// nodeHandler runs a node that has just been entered. It returns the node to
// enter next, or nil when the run must wait for an external signal or has ended.
type nodeHandler func(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error)

func (e *Engine) handlerTable() map[models.NodeType]nodeHandler {
	return map[models.NodeType]nodeHandler{
		models.NodeTypeStart:        e.handleStart,
		models.NodeTypeAgentTask:    e.handleAgentTask,
		models.NodeTypeApprovalGate: e.handleApprovalGate,
		models.NodeTypeCondition:    e.handleCondition,
		models.NodeTypeEnd:          e.handleEnd,
	}
}

// drive enters node and keeps walking the graph until a handler stops.
func (e *Engine) drive(ctx context.Context, run *models.WorkflowRun, node *models.Node) error {
	for node != nil {
		err := e.enter(ctx, run, node)
		if err != nil {
			return err
		}

		node, err = e.execute(ctx, run, node)
		if err != nil {
			return err
		}
	}

	return nil
}

// enter moves the cursor onto node and marks it running.
func (e *Engine) enter(ctx context.Context, run *models.WorkflowRun, node *models.Node) error {
	now := time.Now().UTC()

	execution, visited := run.Execution(node.ID)
	if !visited {
		execution = &models.NodeExecution{NodeID: node.ID, NodeType: node.Type}
		run.NodeExecutions = append(run.NodeExecutions, execution)
	}

	execution.Status = models.NodeStatusRunning
	if execution.StartedAt == nil {
		execution.StartedAt = &now
	}

	run.CurrentNodeID = node.ID

	err := e.save(ctx, run)
	if err != nil {
		return err
	}

	e.logger.DebugContext(ctx, "node entered", "run_id", run.ID, "node_id", node.ID, "node_type", node.Type)
	e.publishNode(ctx, run, node.ID, models.NodeStatusRunning)

	return nil
}

func (e *Engine) execute(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	handler, ok := e.handlers[node.Type]
	if !ok {
		return nil, e.fail(ctx, run, node, models.RunErrorInternal, fmt.Sprintf("no handler for node type %q", node.Type))
	}

	return handler(ctx, run, node)
}

// complete records a node's successful outcome.
func (e *Engine) complete(ctx context.Context, run *models.WorkflowRun, node *models.Node, result string, output map[string]any) error {
	now := time.Now().UTC()

	execution, visited := run.Execution(node.ID)
	if !visited {
		execution = &models.NodeExecution{NodeID: node.ID, NodeType: node.Type, StartedAt: &now}
		run.NodeExecutions = append(run.NodeExecutions, execution)
	}

	execution.Status = models.NodeStatusCompleted
	execution.CompletedAt = &now
	execution.Result = result

	if output != nil {
		execution.Output = output
	}

	err := e.save(ctx, run)
	if err != nil {
		return err
	}

	e.publishNode(ctx, run, node.ID, models.NodeStatusCompleted)

	return nil
}

// fail terminates the run. node may be nil when the failure is not tied to a node.
func (e *Engine) fail(ctx context.Context, run *models.WorkflowRun, node *models.Node, kind models.RunErrorKind, msg string) error {
	now := time.Now().UTC()
	nodeID := ""

	if node != nil {
		nodeID = node.ID

		execution, visited := run.Execution(node.ID)
		if !visited {
			execution = &models.NodeExecution{NodeID: node.ID, NodeType: node.Type, StartedAt: &now}
			run.NodeExecutions = append(run.NodeExecutions, execution)
		}

		execution.Status = models.NodeStatusFailed
		execution.CompletedAt = &now
		execution.Error = msg
	}

	run.Status = models.RunStatusFailed
	run.CurrentNodeID = ""
	run.CompletedAt = &now
	run.Error = &models.RunError{Kind: kind, NodeID: nodeID, Message: msg}

	err := e.save(ctx, run)
	if err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "run failed", "run_id", run.ID, "node_id", nodeID, "kind", kind, "error", msg)

	if node != nil {
		e.publishNode(ctx, run, node.ID, models.NodeStatusFailed)
	}

	e.publishRun(ctx, run)

	return nil
}

// successor follows the outgoing edge of a completed node. Condition nodes
// follow the edge labeled with branch.
func (e *Engine) successor(ctx context.Context, run *models.WorkflowRun, node *models.Node, branch string) (*models.Node, error) {
	edges := run.Graph.OutgoingEdges(node.ID)

	var target string

	if node.Type == models.NodeTypeCondition {
		for _, edge := range edges {
			if edge.Branch == branch {
				target = edge.Target

				break
			}
		}

		if target == "" {
			return nil, e.fail(ctx, run, node, models.RunErrorNoMatchingBranch,
				fmt.Sprintf("%s: result %q", ErrNoMatchingBranch.Error(), branch))
		}
	} else {
		if len(edges) != 1 {
			return nil, e.fail(ctx, run, node, models.RunErrorInternal,
				fmt.Sprintf("%s node has %d outgoing edges, expected one", node.Type, len(edges)))
		}

		target = edges[0].Target
	}

	next, ok := run.Graph.Node(target)
	if !ok {
		return nil, e.fail(ctx, run, node, models.RunErrorInternal, fmt.Sprintf("edge target %q does not exist", target))
	}

	return next, nil
}

func (e *Engine) handleStart(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	err := e.complete(ctx, run, node, "", nil)
	if err != nil {
		return nil, err
	}

	return e.successor(ctx, run, node, "")
}

func (e *Engine) handleEnd(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	now := time.Now().UTC()

	execution, _ := run.Execution(node.ID)
	execution.Status = models.NodeStatusCompleted
	execution.CompletedAt = &now

	run.Status = models.RunStatusCompleted
	run.CurrentNodeID = ""
	run.CompletedAt = &now

	err := e.save(ctx, run)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "end_node_id", node.ID)

	e.publishNode(ctx, run, node.ID, models.NodeStatusCompleted)
	e.publishRun(ctx, run)

	return nil, nil
}

func (e *Engine) handleCondition(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	result, err := condition.Evaluate(node.Condition.Expression, condition.FromRun(run))
	if err != nil {
		return nil, e.fail(ctx, run, node, models.RunErrorEvaluation, err.Error())
	}

	hasBranch := false

	for _, edge := range run.Graph.OutgoingEdges(node.ID) {
		if edge.Branch == result {
			hasBranch = true

			break
		}
	}

	if !hasBranch {
		return nil, e.fail(ctx, run, node, models.RunErrorNoMatchingBranch,
			fmt.Sprintf("%s: result %q", ErrNoMatchingBranch.Error(), result))
	}

	err = e.complete(ctx, run, node, result, nil)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "condition evaluated", "run_id", run.ID, "node_id", node.ID, "branch", result)

	return e.successor(ctx, run, node, result)
}

func (e *Engine) handleApprovalGate(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	return nil, e.awaitApproval(ctx, run, node)
}

// awaitApproval pauses the run on a gate and asks for a decision. Calling it
// again on an already paused run only repeats the request.
func (e *Engine) awaitApproval(ctx context.Context, run *models.WorkflowRun, node *models.Node) error {
	if run.Status != models.RunStatusPaused {
		run.Status = models.RunStatusPaused

		if _, ok := run.Approval(node.ID); !ok {
			run.Approvals = append(run.Approvals, models.ApprovalDecision{
				RunID:  run.ID,
				NodeID: node.ID,
				Status: models.ApprovalStatusPending,
			})
		}

		err := e.save(ctx, run)
		if err != nil {
			return err
		}

		e.publishRun(ctx, run)
	}

	e.publish(ctx, run, events.ApprovalNeeded{
		RunID:       run.ID,
		NodeID:      node.ID,
		Description: e.describe(ctx, run, node, node.Description()),
	})

	return nil
}

// handleAgentTask assigns the node to an agent and waits for its completion.
func (e *Engine) handleAgentTask(ctx context.Context, run *models.WorkflowRun, node *models.Node) (*models.Node, error) {
	task := node.AgentTask

	instanceID, err := e.dispatcher.Assign(ctx, agent.Assignment{
		RunID:       run.ID,
		ProjectID:   run.ProjectID,
		StoryID:     run.StoryID,
		NodeID:      node.ID,
		Role:        task.Role,
		Description: e.describe(ctx, run, node, task.Description),
	})
	if err != nil {
		return nil, e.fail(ctx, run, node, models.RunErrorDispatch, fmt.Errorf("%w: %w", ErrDispatch, err).Error())
	}

	execution, _ := run.Execution(node.ID)
	execution.AgentInstanceID = instanceID

	err = e.save(ctx, run)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, run, events.AgentStatus{AgentInstanceID: instanceID, Status: "assigned"})

	if task.MoveCardOn == models.CardPhaseStart {
		e.moveCard(ctx, run, node, models.NodeStatusRunning)
	}

	return nil, nil
}

// describe renders template actions in a node description. A description that
// fails to render is used verbatim.
func (e *Engine) describe(ctx context.Context, run *models.WorkflowRun, node *models.Node, text string) string {
	rendered, err := render.Description(text, run)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to render node description",
			"run_id", run.ID, "node_id", node.ID, "error", err)

		return text
	}

	return rendered
}

// moveCard asks the board to move the run's story card. Board failures never affect the run.
func (e *Engine) moveCard(ctx context.Context, run *models.WorkflowRun, node *models.Node, status models.NodeStatus) {
	if e.board == nil || run.StoryID == "" || node.AgentTask.BoardStatus == "" {
		return
	}

	err := e.board.MoveCard(ctx, board.CardMove{
		RunID:      run.ID,
		ProjectID:  run.ProjectID,
		StoryID:    run.StoryID,
		NodeID:     node.ID,
		Phase:      node.AgentTask.MoveCardOn,
		Status:     node.AgentTask.BoardStatus,
		NodeStatus: status,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "failed to move story card",
			"run_id", run.ID, "node_id", node.ID, "story_id", run.StoryID, "error", err)
	}
}
