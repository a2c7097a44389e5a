package render_test

import (
	"testing"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:         "run-1",
		TemplateID: "delivery",
		ProjectID:  "proj-1",
		StoryID:    "story-7",
		Input:      map[string]any{"feature": "search", "priority": 2},
		NodeExecutions: []*models.NodeExecution{
			{NodeID: "build", Status: models.NodeStatusCompleted, Output: map[string]any{"pr": "https://git/pr/42"}},
			{NodeID: "review", Status: models.NodeStatusCompleted, Result: "approved"},
		},
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"plain text", "Implement the story", "Implement the story"},
		{"input", "Implement {{ .input.feature }}", "Implement search"},
		{"run field", "Story {{ .run.story_id }} of {{ .run.project_id }}", "Story story-7 of proj-1"},
		{"node output", "Review {{ .nodes.build.output.pr }}", "Review https://git/pr/42"},
		{"node result", "Gate said {{ .nodes.review.result }}", "Gate said approved"},
		{"default", `Owner {{ default "unassigned" .input.owner_missing_ok }}`, "Owner unassigned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := sampleRun()
			if tt.name == "default" {
				run.Input["owner_missing_ok"] = ""
			}

			result, err := render.Description(tt.text, run)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDescription_Errors(t *testing.T) {
	_, err := render.Description("{{ .input.missing }}", sampleRun())
	require.Error(t, err)

	_, err = render.Description("{{ .input.feature ", sampleRun())
	require.Error(t, err)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, render.NeedsTemplating("hello {{ .run.id }}"))
	assert.False(t, render.NeedsTemplating("hello"))
}
