package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidGraph matches every ValidationError via errors.Is.
var ErrInvalidGraph = errors.New("invalid workflow graph")

// Violation codes.
const (
	CodeNilTemplate       = "nil_template"
	CodeEmptyNodeID       = "empty_node_id"
	CodeDuplicateNode     = "duplicate_node"
	CodeUnknownNodeType   = "unknown_node_type"
	CodeMissingPayload    = "missing_payload"
	CodeInvalidExpression = "invalid_expression"
	CodeInvalidMoveCardOn = "invalid_move_card_on"
	CodeMissingStart      = "missing_start"
	CodeMultipleStart     = "multiple_start"
	CodeMissingEnd        = "missing_end"
	CodeDanglingEdge      = "dangling_edge"
	CodeSelfReference     = "self_reference"
	CodeUnreachable       = "unreachable"
	CodeCycle             = "cycle"
	CodeOutgoingEdges     = "outgoing_edges"
	CodeUnexpectedBranch  = "unexpected_branch"
	CodeMissingBranch     = "missing_branch"
	CodeDuplicateBranch   = "duplicate_branch"
)

// Violation is one broken invariant of a template graph.
type Violation struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.NodeID != "" {
		return fmt.Sprintf("%s (node %q): %s", v.Code, v.NodeID, v.Message)
	}

	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// ValidationError enumerates every violation found in a template graph.
type ValidationError struct {
	TemplateID string      `json:"template_id,omitempty"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return ErrInvalidGraph.Error()
	}

	parts := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		parts = append(parts, violation.String())
	}

	return fmt.Sprintf("%s: %s", ErrInvalidGraph.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidGraph }

// Has reports whether a violation with the given code was recorded.
func (e *ValidationError) Has(code string) bool {
	for _, violation := range e.Violations {
		if violation.Code == code {
			return true
		}
	}

	return false
}

// IsValidationError checks if an error is a graph validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}
