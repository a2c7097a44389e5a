// Package models defines the workflow templates, runs and execution records handled by the engine.
package models

import "time"

// NodeType tags the variant carried by a Node.
type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeAgentTask    NodeType = "agent_task"
	NodeTypeApprovalGate NodeType = "approval_gate"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeEnd          NodeType = "end"
)

// NodeTypes lists every node type the engine knows how to execute.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeTypeStart,
		NodeTypeAgentTask,
		NodeTypeApprovalGate,
		NodeTypeCondition,
		NodeTypeEnd,
	}
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// CardPhase selects when an agent task moves its story card on the board.
type CardPhase string

const (
	CardPhaseNone     CardPhase = ""
	CardPhaseStart    CardPhase = "start"
	CardPhaseComplete CardPhase = "complete"
)

// WorkflowTemplate is a reusable graph definition. Runs snapshot it at creation.
type WorkflowTemplate struct {
	ID          string    `json:"id"                    yaml:"id"`
	Name        string    `json:"name"                  yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"  yaml:"project_id,omitempty"`
	Nodes       []*Node   `json:"nodes"                 yaml:"nodes"`
	Edges       []*Edge   `json:"edges"                 yaml:"edges"`
	CreatedAt   time.Time `json:"created_at"            yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at"            yaml:"-"`
}

// Node is a typed step in the graph. Exactly one payload pointer matching Type is set.
type Node struct {
	ID        string           `json:"id"                   yaml:"id"`
	Type      NodeType         `json:"type"                 yaml:"type"`
	Name      string           `json:"name,omitempty"       yaml:"name,omitempty"`
	AgentTask *AgentTaskConfig `json:"agent_task,omitempty" yaml:"agent_task,omitempty"`
	Approval  *ApprovalConfig  `json:"approval,omitempty"   yaml:"approval,omitempty"`
	Condition *ConditionConfig `json:"condition,omitempty"  yaml:"condition,omitempty"`
}

// AgentTaskConfig is the payload of an agent_task node.
type AgentTaskConfig struct {
	Role        string    `json:"role"                   yaml:"role"`
	Description string    `json:"description"            yaml:"description"`
	BoardStatus string    `json:"board_status,omitempty" yaml:"board_status,omitempty"`
	MoveCardOn  CardPhase `json:"move_card_on,omitempty" yaml:"move_card_on,omitempty"`
}

// ApprovalConfig is the payload of an approval_gate node.
type ApprovalConfig struct {
	Description string `json:"description" yaml:"description"`
}

// ConditionConfig is the payload of a condition node.
type ConditionConfig struct {
	Expression string `json:"expression" yaml:"expression"`
}

// Edge is a directed, optionally branch-labeled transition.
type Edge struct {
	Source string `json:"source"           yaml:"source"`
	Target string `json:"target"           yaml:"target"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// Description returns the human readable text attached to the node payload.
func (n *Node) Description() string {
	switch n.Type {
	case NodeTypeAgentTask:
		if n.AgentTask != nil {
			return n.AgentTask.Description
		}
	case NodeTypeApprovalGate:
		if n.Approval != nil {
			return n.Approval.Description
		}
	case NodeTypeStart, NodeTypeCondition, NodeTypeEnd:
	}

	return n.Name
}

// Node looks a node up by id.
func (t *WorkflowTemplate) Node(id string) (*Node, bool) {
	for _, node := range t.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges returns the edges leaving nodeID, in declaration order.
func (t *WorkflowTemplate) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range t.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// StartNode returns the first start node of the graph.
func (t *WorkflowTemplate) StartNode() (*Node, bool) {
	for _, node := range t.Nodes {
		if node.Type == NodeTypeStart {
			return node, true
		}
	}

	return nil, false
}

// Clone deep-copies the template so later edits never reach a run snapshot.
func (t *WorkflowTemplate) Clone() *WorkflowTemplate {
	if t == nil {
		return nil
	}

	clone := *t
	clone.Nodes = make([]*Node, 0, len(t.Nodes))

	for _, node := range t.Nodes {
		if node == nil {
			clone.Nodes = append(clone.Nodes, nil)

			continue
		}

		n := *node
		if node.AgentTask != nil {
			payload := *node.AgentTask
			n.AgentTask = &payload
		}

		if node.Approval != nil {
			payload := *node.Approval
			n.Approval = &payload
		}

		if node.Condition != nil {
			payload := *node.Condition
			n.Condition = &payload
		}

		clone.Nodes = append(clone.Nodes, &n)
	}

	clone.Edges = make([]*Edge, 0, len(t.Edges))

	for _, edge := range t.Edges {
		if edge == nil {
			clone.Edges = append(clone.Edges, nil)

			continue
		}

		e := *edge
		clone.Edges = append(clone.Edges, &e)
	}

	return &clone
}
