// Package graph validates the structure of workflow template graphs.
package graph

import (
	"fmt"
	"sort"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/condition"
	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/models"
)

type checker struct {
	template   *models.WorkflowTemplate
	nodes      map[string]*models.Node
	adjacency  map[string][]string
	violations []Violation
}

// Validate checks every structural invariant of a template graph and returns a
// *ValidationError listing all violations, or nil when the graph is valid.
func Validate(template *models.WorkflowTemplate) error {
	if template == nil {
		return &ValidationError{Violations: []Violation{{
			Code:    CodeNilTemplate,
			Message: "template is nil",
		}}}
	}

	c := &checker{
		template:  template,
		nodes:     make(map[string]*models.Node, len(template.Nodes)),
		adjacency: make(map[string][]string),
	}

	c.checkNodes()
	c.checkEdges()
	c.checkTerminals()
	c.checkOutgoing()
	c.checkReachability()
	c.checkCycles()

	if len(c.violations) == 0 {
		return nil
	}

	return &ValidationError{TemplateID: template.ID, Violations: c.violations}
}

func (c *checker) add(code, nodeID, format string, args ...any) {
	c.violations = append(c.violations, Violation{
		Code:    code,
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	})
}

func (c *checker) checkNodes() {
	for i, node := range c.template.Nodes {
		if node == nil || node.ID == "" {
			c.add(CodeEmptyNodeID, "", "node at position %d has no id", i)

			continue
		}

		if _, exists := c.nodes[node.ID]; exists {
			c.add(CodeDuplicateNode, node.ID, "node id %q is declared more than once", node.ID)

			continue
		}

		c.nodes[node.ID] = node

		if !node.Type.Valid() {
			c.add(CodeUnknownNodeType, node.ID, "unknown node type %q", node.Type)

			continue
		}

		c.checkPayload(node)
	}
}

func (c *checker) checkPayload(node *models.Node) {
	switch node.Type {
	case models.NodeTypeAgentTask:
		if node.AgentTask == nil || node.AgentTask.Role == "" {
			c.add(CodeMissingPayload, node.ID, "agent_task requires a role")

			return
		}

		switch node.AgentTask.MoveCardOn {
		case models.CardPhaseNone, models.CardPhaseStart, models.CardPhaseComplete:
		default:
			c.add(CodeInvalidMoveCardOn, node.ID, "move_card_on must be %q or %q, got %q",
				models.CardPhaseStart, models.CardPhaseComplete, node.AgentTask.MoveCardOn)
		}
	case models.NodeTypeCondition:
		if node.Condition == nil || node.Condition.Expression == "" {
			c.add(CodeMissingPayload, node.ID, "condition requires an expression")

			return
		}

		if err := condition.Parse(node.Condition.Expression); err != nil {
			c.add(CodeInvalidExpression, node.ID, "%v", err)
		}
	case models.NodeTypeStart, models.NodeTypeApprovalGate, models.NodeTypeEnd:
	}
}

func (c *checker) checkEdges() {
	for i, edge := range c.template.Edges {
		if edge == nil {
			c.add(CodeDanglingEdge, "", "edge at position %d is empty", i)

			continue
		}

		_, sourceOK := c.nodes[edge.Source]
		if !sourceOK {
			c.add(CodeDanglingEdge, edge.Source, "edge %d references unknown source node %q", i, edge.Source)
		}

		_, targetOK := c.nodes[edge.Target]
		if !targetOK {
			c.add(CodeDanglingEdge, edge.Target, "edge %d references unknown target node %q", i, edge.Target)
		}

		if edge.Source == edge.Target && edge.Source != "" {
			c.add(CodeSelfReference, edge.Source, "edge %d loops back onto its source", i)

			continue
		}

		if sourceOK && targetOK {
			c.adjacency[edge.Source] = append(c.adjacency[edge.Source], edge.Target)
		}
	}
}

func (c *checker) checkTerminals() {
	var starts, ends []string

	for _, node := range c.template.Nodes {
		if node == nil {
			continue
		}

		switch node.Type {
		case models.NodeTypeStart:
			starts = append(starts, node.ID)
		case models.NodeTypeEnd:
			ends = append(ends, node.ID)
		case models.NodeTypeAgentTask, models.NodeTypeApprovalGate, models.NodeTypeCondition:
		}
	}

	switch {
	case len(starts) == 0:
		c.add(CodeMissingStart, "", "graph has no start node")
	case len(starts) > 1:
		c.add(CodeMultipleStart, "", "graph has %d start nodes %v, exactly one is required", len(starts), starts)
	}

	if len(ends) == 0 {
		c.add(CodeMissingEnd, "", "graph has no end node")
	}
}

func (c *checker) checkOutgoing() {
	outgoing := make(map[string][]*models.Edge)

	for _, edge := range c.template.Edges {
		if edge == nil {
			continue
		}

		if _, ok := c.nodes[edge.Source]; ok {
			outgoing[edge.Source] = append(outgoing[edge.Source], edge)
		}
	}

	for _, node := range c.template.Nodes {
		if node == nil || c.nodes[node.ID] != node {
			continue
		}

		edges := outgoing[node.ID]

		switch node.Type {
		case models.NodeTypeEnd:
			if len(edges) > 0 {
				c.add(CodeOutgoingEdges, node.ID, "end node must not have outgoing edges, found %d", len(edges))
			}
		case models.NodeTypeStart, models.NodeTypeAgentTask, models.NodeTypeApprovalGate:
			if len(edges) != 1 {
				c.add(CodeOutgoingEdges, node.ID, "%s node must have exactly one outgoing edge, found %d", node.Type, len(edges))
			}

			for _, edge := range edges {
				if edge.Branch != "" {
					c.add(CodeUnexpectedBranch, node.ID, "%s node edge to %q must not carry a branch label", node.Type, edge.Target)
				}
			}
		case models.NodeTypeCondition:
			c.checkBranches(node, edges)
		}
	}
}

func (c *checker) checkBranches(node *models.Node, edges []*models.Edge) {
	if len(edges) == 0 {
		c.add(CodeOutgoingEdges, node.ID, "condition node must have at least one outgoing edge")

		return
	}

	seen := make(map[string]bool, len(edges))

	for _, edge := range edges {
		if edge.Branch == "" {
			c.add(CodeMissingBranch, node.ID, "condition edge to %q has no branch label", edge.Target)

			continue
		}

		if seen[edge.Branch] {
			c.add(CodeDuplicateBranch, node.ID, "branch label %q is used by more than one edge", edge.Branch)

			continue
		}

		seen[edge.Branch] = true
	}
}

func (c *checker) checkReachability() {
	var roots []string

	for _, node := range c.template.Nodes {
		if node != nil && node.Type == models.NodeTypeStart && c.nodes[node.ID] == node {
			roots = append(roots, node.ID)
		}
	}

	if len(roots) == 0 {
		return
	}

	visited := make(map[string]bool, len(c.nodes))
	queue := append([]string(nil), roots...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}

		visited[current] = true
		queue = append(queue, c.adjacency[current]...)
	}

	for _, node := range c.template.Nodes {
		if node == nil || c.nodes[node.ID] != node {
			continue
		}

		if !visited[node.ID] {
			c.add(CodeUnreachable, node.ID, "node is not reachable from the start node")
		}
	}
}

// checkCycles uses DFS coloring: 0 unvisited, 1 on the current path, 2 done.
func (c *checker) checkCycles() {
	color := make(map[string]int, len(c.nodes))
	reported := make(map[string]bool)

	var path []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = 1
		path = append(path, id)

		for _, next := range c.adjacency[id] {
			switch color[next] {
			case 1:
				start := 0
				for i, n := range path {
					if n == next {
						start = i

						break
					}
				}

				cycle := append(append([]string(nil), path[start:]...), next)
				if !reported[next] {
					reported[next] = true
					c.add(CodeCycle, next, "cycle detected: %v", cycle)
				}
			case 0:
				visit(next)
			}
		}

		path = path[:len(path)-1]
		color[id] = 2
	}

	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == 0 {
			visit(id)
		}
	}
}
