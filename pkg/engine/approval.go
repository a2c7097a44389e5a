package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

// DecideRequest is a human decision on a paused approval gate.
type DecideRequest struct {
	RunID     string
	NodeID    string
	Decision  models.ApprovalStatus
	DecidedBy string
	Comment   string
}

func (r DecideRequest) validate() error {
	if r.RunID == "" || r.NodeID == "" {
		return fmt.Errorf("%w: run id and node id are required", ErrInvalidRequest)
	}

	if r.Decision != models.ApprovalStatusApproved && r.Decision != models.ApprovalStatusRejected {
		return fmt.Errorf("%w: decision must be %q or %q", ErrInvalidRequest,
			models.ApprovalStatusApproved, models.ApprovalStatusRejected)
	}

	return nil
}

// Decide resolves the approval gate the run is paused on. Approval resumes the
// run along the gate's edge; rejection fails it. The returned run reflects the
// state after the decision was applied.
func (e *Engine) Decide(ctx context.Context, req DecideRequest) (*models.WorkflowRun, error) {
	err := req.validate()
	if err != nil {
		return nil, err
	}

	return e.call(ctx, req.RunID, message{kind: messageApprovalDecide, decision: &req})
}

func (e *Engine) approvalDecided(ctx context.Context, run *models.WorkflowRun, req DecideRequest) error {
	if run.Status != models.RunStatusPaused {
		return invalidTransition(run.ID, req.NodeID, "run is %s, not paused", run.Status)
	}

	if run.CurrentNodeID != req.NodeID {
		return invalidTransition(run.ID, req.NodeID, "run is paused on node %q", run.CurrentNodeID)
	}

	node, ok := run.CurrentNode()
	if !ok || node.Type != models.NodeTypeApprovalGate {
		return invalidTransition(run.ID, req.NodeID, "node is not an approval gate")
	}

	now := time.Now().UTC()

	approval, ok := run.Approval(node.ID)
	if !ok {
		run.Approvals = append(run.Approvals, models.ApprovalDecision{RunID: run.ID, NodeID: node.ID})
		approval = &run.Approvals[len(run.Approvals)-1]
	}

	if approval.Status != models.ApprovalStatusPending && approval.Status != "" {
		return invalidTransition(run.ID, req.NodeID, "gate was already %s", approval.Status)
	}

	approval.Status = req.Decision
	approval.DecidedBy = req.DecidedBy
	approval.DecidedAt = &now
	approval.Comment = req.Comment

	e.logger.InfoContext(ctx, "approval decided",
		"run_id", run.ID, "node_id", node.ID, "decision", req.Decision, "decided_by", req.DecidedBy)

	if req.Decision == models.ApprovalStatusRejected {
		execution, _ := run.Execution(node.ID)
		if execution != nil {
			execution.Result = string(models.ApprovalStatusRejected)
		}

		msg := "approval rejected"
		if req.Comment != "" {
			msg += ": " + req.Comment
		}

		return e.fail(ctx, run, node, models.RunErrorRejected, msg)
	}

	run.Status = models.RunStatusRunning

	err := e.complete(ctx, run, node, string(models.ApprovalStatusApproved), nil)
	if err != nil {
		return err
	}

	e.publishRun(ctx, run)

	next, err := e.successor(ctx, run, node, "")
	if err != nil || next == nil {
		return err
	}

	return e.drive(ctx, run, next)
}
