// Package render expands text/template expressions in node descriptions
// against the state of a run.
package render

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

// NeedsTemplating reports whether text contains a template action.
func NeedsTemplating(text string) bool {
	return strings.Contains(text, "{{")
}

// Data builds the template data for run:
//
//	.input.<key>                 trigger input
//	.nodes.<id>.status|result    visited nodes
//	.nodes.<id>.output.<key>     agent outcome payloads
//	.run.id|template_id|project_id|story_id
func Data(run *models.WorkflowRun) map[string]any {
	nodes := make(map[string]any, len(run.NodeExecutions))

	for _, execution := range run.NodeExecutions {
		nodes[execution.NodeID] = map[string]any{
			"status": string(execution.Status),
			"result": execution.Result,
			"output": execution.Output,
		}
	}

	input := run.Input
	if input == nil {
		input = map[string]any{}
	}

	return map[string]any{
		"input": input,
		"nodes": nodes,
		"run": map[string]any{
			"id":          run.ID,
			"template_id": run.TemplateID,
			"project_id":  run.ProjectID,
			"story_id":    run.StoryID,
		},
	}
}

// Render executes text against data. Referencing a missing key is an error.
func Render(text string, data any) (string, error) {
	tmpl, err := template.
		New("description").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", text, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", text, err)
	}

	return buf.String(), nil
}

// Description renders text for run, returning text unchanged when it holds no
// template actions.
func Description(text string, run *models.WorkflowRun) (string, error) {
	if !NeedsTemplating(text) {
		return text, nil
	}

	return Render(text, Data(run))
}
