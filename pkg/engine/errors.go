package engine

import (
	"errors"
	"fmt"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNoMatchingBranch       = errors.New("no outgoing edge matches the condition result")
	ErrDispatch               = errors.New("agent dispatch failed")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrMissingHandler         = errors.New("node type has no handler")
	ErrEngineClosed           = errors.New("engine is shut down")
)

// TransitionError explains why a caller-requested transition was refused.
type TransitionError struct {
	RunID  string
	NodeID string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: run %s node %s: %s", ErrInvalidStateTransition.Error(), e.RunID, e.NodeID, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

func invalidTransition(runID, nodeID, format string, args ...any) error {
	return &TransitionError{RunID: runID, NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// notFound maps store lookups onto ErrNotFound while keeping the store error in
// the chain. An id the store cannot even represent names nothing stored.
func notFound(err error) error {
	if persistence.IsNotFound(err) || errors.Is(err, persistence.ErrInvalidID) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
