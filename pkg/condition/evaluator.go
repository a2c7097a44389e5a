// Package condition evaluates condition-node expressions against the context
// accumulated by a workflow run.
//
// Expressions use HCL expression syntax over three root variables:
//   - input        the run's trigger input, e.g. input.customer.tier
//   - nodes.<id>   result, status and output of every visited node
//   - run          id, template_id, project_id and story_id
//
// Operators, literals and conditionals work as in HCL:
//
//	nodes.review.result == "approved"
//	input.priority > 2 ? "urgent" : "normal"
//
// The value of the expression becomes the branch label: strings verbatim,
// numbers in decimal and booleans as "true" or "false".
package condition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

const filename = "condition"

// ErrEvaluation matches every EvaluationError via errors.Is.
var ErrEvaluation = errors.New("condition evaluation failed")

// EvaluationError reports a malformed expression or a missing context field.
type EvaluationError struct {
	Expression string
	Reason     string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrEvaluation.Error(), e.Expression, e.Reason)
}

func (e *EvaluationError) Unwrap() error { return ErrEvaluation }

// Parse checks that expression is syntactically valid and only references the
// input, nodes and run variables. It does not need a run.
func Parse(expression string) error {
	_, err := parse(expression)

	return err
}

// Evaluate resolves expression against ctx and returns the branch label.
func Evaluate(expression string, ctx Context) (string, error) {
	expr, err := parse(expression)
	if err != nil {
		return "", err
	}

	evalCtx, err := ctx.evalContext()
	if err != nil {
		return "", &EvaluationError{Expression: expression, Reason: err.Error()}
	}

	value, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diagnosticsError(expression, diags)
	}

	result, err := label(value)
	if err != nil {
		return "", &EvaluationError{Expression: expression, Reason: err.Error()}
	}

	return result, nil
}

func parse(expression string) (hclsyntax.Expression, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, &EvaluationError{Expression: expression, Reason: "empty expression"}
	}

	expr, diags := hclsyntax.ParseExpression([]byte(expression), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diagnosticsError(expression, diags)
	}

	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if _, ok := roots[root]; !ok {
			return nil, &EvaluationError{
				Expression: expression,
				Reason:     fmt.Sprintf("unknown variable %q, expected input, nodes or run", root),
			}
		}
	}

	return expr, nil
}

func diagnosticsError(expression string, diags hcl.Diagnostics) error {
	reasons := make([]string, 0, len(diags))

	for _, diag := range diags.Errs() {
		var d *hcl.Diagnostic
		if errors.As(diag, &d) && d.Detail != "" {
			reasons = append(reasons, d.Summary+": "+d.Detail)

			continue
		}

		reasons = append(reasons, diag.Error())
	}

	return &EvaluationError{Expression: expression, Reason: strings.Join(reasons, "; ")}
}

func label(value cty.Value) (string, error) {
	if !value.IsWhollyKnown() {
		return "", errors.New("result is not known")
	}

	if value.IsNull() {
		return "null", nil
	}

	switch value.Type() {
	case cty.String:
		return value.AsString(), nil
	case cty.Bool:
		return strconv.FormatBool(value.True()), nil
	case cty.Number:
		return value.AsBigFloat().Text('f', -1), nil
	default:
		return "", fmt.Errorf("result of type %s cannot be used as a branch label", value.Type().FriendlyName())
	}
}
