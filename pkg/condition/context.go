package condition

import (
	"encoding/json"
	"fmt"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

var roots = map[string]struct{}{
	"input": {},
	"nodes": {},
	"run":   {},
}

// NodeContext is what a visited node contributes to the evaluation context.
type NodeContext struct {
	Status string
	Result string
	Output map[string]any
}

// Context is the run state visible to expressions.
type Context struct {
	Input map[string]any
	Nodes map[string]NodeContext
	Run   map[string]string
}

// FromRun builds the evaluation context from a run's input and execution log.
func FromRun(run *models.WorkflowRun) Context {
	ctx := Context{
		Input: run.Input,
		Nodes: make(map[string]NodeContext, len(run.NodeExecutions)),
		Run: map[string]string{
			"id":          run.ID,
			"template_id": run.TemplateID,
			"project_id":  run.ProjectID,
			"story_id":    run.StoryID,
		},
	}

	for _, execution := range run.NodeExecutions {
		ctx.Nodes[execution.NodeID] = NodeContext{
			Status: string(execution.Status),
			Result: execution.Result,
			Output: execution.Output,
		}
	}

	return ctx
}

// evalContext converts the context into HCL variables. Empty results, absent
// outputs and unset run fields are left out so that referencing them fails
// instead of yielding an empty label.
func (c Context) evalContext() (*hcl.EvalContext, error) {
	input, err := objectValue(c.Input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	nodes := make(map[string]cty.Value, len(c.Nodes))

	for id, node := range c.Nodes {
		attrs := map[string]cty.Value{"status": cty.StringVal(node.Status)}

		if node.Result != "" {
			attrs["result"] = cty.StringVal(node.Result)
		}

		if node.Output != nil {
			output, err := objectValue(node.Output)
			if err != nil {
				return nil, fmt.Errorf("nodes.%s.output: %w", id, err)
			}

			attrs["output"] = output
		}

		nodes[id] = cty.ObjectVal(attrs)
	}

	run := make(map[string]cty.Value, len(c.Run))

	for key, value := range c.Run {
		if value != "" {
			run[key] = cty.StringVal(value)
		}
	}

	return &hcl.EvalContext{Variables: map[string]cty.Value{
		"input": input,
		"nodes": cty.ObjectVal(nodes),
		"run":   cty.ObjectVal(run),
	}}, nil
}

// objectValue converts decoded JSON data into a cty object through its JSON
// form, which is how run input and agent output arrive anyway.
func objectValue(data map[string]any) (cty.Value, error) {
	if len(data) == 0 {
		return cty.EmptyObjectVal, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return cty.NilVal, err
	}

	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}

	return ctyjson.Unmarshal(raw, ty)
}
