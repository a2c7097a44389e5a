package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/agent"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

type messageKind string

const (
	messageStart          messageKind = "start"
	messageResume         messageKind = "resume"
	messageAgentCompleted messageKind = "agent_completed"
	messageApprovalDecide messageKind = "approval_decided"
)

type message struct {
	kind       messageKind
	completion *agent.Completion
	decision   *DecideRequest
	reply      chan reply
}

type reply struct {
	run *models.WorkflowRun
	err error
}

// deliver appends msg to the run's mailbox, starting the run's actor if none is active.
func (e *Engine) deliver(runID string, msg message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	queue, active := e.mailboxes[runID]
	e.mailboxes[runID] = append(queue, msg)

	if !active {
		e.wg.Add(1)

		go e.actor(runID)
	}

	return nil
}

// call delivers msg and waits for the actor's reply.
func (e *Engine) call(ctx context.Context, runID string, msg message) (*models.WorkflowRun, error) {
	msg.reply = make(chan reply, 1)

	err := e.deliver(runID, msg)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-msg.reply:
		return r.run, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// actor drains the run's mailbox and exits once it is empty.
func (e *Engine) actor(runID string) {
	defer e.wg.Done()

	for {
		e.mu.Lock()

		queue := e.mailboxes[runID]
		if len(queue) == 0 {
			delete(e.mailboxes, runID)
			e.mu.Unlock()

			return
		}

		msg := queue[0]
		e.mailboxes[runID] = queue[1:]
		e.mu.Unlock()

		run, err := e.process(e.ctx, runID, msg)
		if err != nil {
			e.logger.ErrorContext(e.ctx, "failed to process run message",
				"run_id", runID, "message", msg.kind, "error", err)
		}

		if msg.reply != nil {
			msg.reply <- reply{run: run, err: err}
		}
	}
}

// process handles one message under the run lock against freshly loaded state.
func (e *Engine) process(ctx context.Context, runID string, msg message) (*models.WorkflowRun, error) {
	unlock, err := e.locker.Lock(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", runID, err)
	}

	defer func() {
		unlockErr := unlock(ctx)
		if unlockErr != nil {
			e.logger.WarnContext(ctx, "failed to release run lock", "run_id", runID, "error", unlockErr)
		}
	}()

	run, err := e.runs.RunByID(ctx, runID)
	if err != nil {
		return nil, notFound(err)
	}

	ctx, span := e.startSpan(ctx, "engine."+string(msg.kind), run)
	defer span.End()

	switch msg.kind {
	case messageStart:
		err = e.start(ctx, run)
	case messageResume:
		err = e.resume(ctx, run)
	case messageAgentCompleted:
		err = e.agentCompleted(ctx, run, *msg.completion)
	case messageApprovalDecide:
		err = e.approvalDecided(ctx, run, *msg.decision)
	default:
		err = fmt.Errorf("unknown message kind %q", msg.kind)
	}

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.MessageKey, string(msg.kind)))

		return nil, err
	}

	return run.Clone(), nil
}

// start moves a pending run onto its start node. Replays on a started run are ignored.
func (e *Engine) start(ctx context.Context, run *models.WorkflowRun) error {
	if run.Status != models.RunStatusPending {
		return nil
	}

	startNode, ok := run.Graph.StartNode()
	if !ok {
		return e.fail(ctx, run, nil, models.RunErrorInternal, "run graph has no start node")
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now
	run.CurrentNodeID = startNode.ID

	err := e.save(ctx, run)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "run started", "run_id", run.ID)
	e.publishRun(ctx, run)

	return e.drive(ctx, run, startNode)
}

// resume continues a run loaded from the store after a restart.
func (e *Engine) resume(ctx context.Context, run *models.WorkflowRun) error {
	if run.Status == models.RunStatusPending {
		return e.start(ctx, run)
	}

	if run.Status.Terminal() {
		return nil
	}

	node, ok := run.CurrentNode()
	if !ok {
		return e.fail(ctx, run, nil, models.RunErrorInternal,
			fmt.Sprintf("run cursor %q does not resolve to a node", run.CurrentNodeID))
	}

	execution, visited := run.Execution(node.ID)

	switch {
	case !visited || execution.Status == models.NodeStatusPending:
		return e.drive(ctx, run, node)
	case execution.Status == models.NodeStatusCompleted:
		next, err := e.successor(ctx, run, node, execution.Result)
		if err != nil || next == nil {
			return err
		}

		return e.drive(ctx, run, next)
	case execution.Status == models.NodeStatusFailed || execution.Status == models.NodeStatusSkipped:
		return e.fail(ctx, run, node, models.RunErrorInternal, "run stopped on a node that had already finished")
	}

	switch node.Type {
	case models.NodeTypeApprovalGate:
		return e.awaitApproval(ctx, run, node)
	case models.NodeTypeAgentTask:
		if execution.AgentInstanceID != "" {
			e.logger.InfoContext(ctx, "waiting for agent completion",
				"run_id", run.ID, "node_id", node.ID, "agent_instance_id", execution.AgentInstanceID)

			return nil
		}
	case models.NodeTypeStart, models.NodeTypeCondition, models.NodeTypeEnd:
	}

	next, err := e.execute(ctx, run, node)
	if err != nil {
		return err
	}

	return e.drive(ctx, run, next)
}
