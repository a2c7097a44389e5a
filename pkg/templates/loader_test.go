package templates_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/graph"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/log"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/persistence/file"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deliveryYAML = `
id: delivery
name: Story delivery
project_id: proj-1
nodes:
  - id: start
    type: start
  - id: build
    type: agent_task
    agent_task:
      role: developer
      description: Implement the story
      board_status: in_progress
      move_card_on: start
  - id: check
    type: condition
    condition:
      expression: nodes.build.output.tests_passed
  - id: review
    type: approval_gate
    approval:
      description: Review the change
  - id: done
    type: end
  - id: abandoned
    type: end
edges:
  - {source: start, target: build}
  - {source: build, target: check}
  - {source: check, target: review, branch: "true"}
  - {source: check, target: abandoned, branch: "false"}
  - {source: review, target: done}
`

const releaseJSON = `{
  "id": "release",
  "name": "Release",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "gate", "type": "approval_gate", "approval": {"description": "ship?"}},
    {"id": "end", "type": "end"}
  ],
  "edges": [
    {"source": "start", "target": "gate"},
    {"source": "gate", "target": "end"}
  ]
}`

func TestParse_YAML(t *testing.T) {
	template, err := templates.Parse([]byte(deliveryYAML))
	require.NoError(t, err)

	assert.Equal(t, "delivery", template.ID)
	assert.Len(t, template.Nodes, 6)

	build, ok := template.Node("build")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeAgentTask, build.Type)
	assert.Equal(t, models.CardPhaseStart, build.AgentTask.MoveCardOn)

	edges := template.OutgoingEdges("check")
	require.Len(t, edges, 2)
	assert.Equal(t, "true", edges[0].Branch)
}

func TestParse_JSON(t *testing.T) {
	template, err := templates.Parse([]byte(releaseJSON))
	require.NoError(t, err)
	assert.Equal(t, "release", template.ID)
}

func TestParse_SchemaViolations(t *testing.T) {
	_, err := templates.Parse([]byte(`
id: bad
name: Bad
nodes:
  - id: start
    type: loop
    extra: 1
edges: []
`))
	require.ErrorIs(t, err, templates.ErrInvalidDocument)

	var schemaErr *templates.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.GreaterOrEqual(t, len(schemaErr.Errors), 2)

	_, err = templates.Parse([]byte("   "))
	require.ErrorIs(t, err, templates.ErrInvalidDocument)

	_, err = templates.Parse([]byte("id: [unclosed"))
	require.ErrorIs(t, err, templates.ErrInvalidDocument)
}

func TestParse_GraphViolations(t *testing.T) {
	_, err := templates.Parse([]byte(`
id: no-end
name: No end
nodes:
  - id: start
    type: start
edges: []
`))
	require.ErrorIs(t, err, graph.ErrInvalidGraph)
}

func TestLoadDirAndImport(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "delivery.yaml"), []byte(deliveryYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "release.json"), []byte(releaseJSON), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	files, err := templates.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "delivery", files[0].Template.ID)

	store := file.NewPersistence(t.TempDir())

	count, err := templates.Import(t.Context(), log.Discard(), store.TemplateRepository(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := store.TemplateRepository().Templates(t.Context())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	files, err = templates.LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestLoadDir_ReportsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("id: x\n"), 0o600))

	_, err := templates.LoadDir(dir)
	require.ErrorIs(t, err, templates.ErrInvalidDocument)
	assert.Contains(t, err.Error(), "broken.yml")
}
