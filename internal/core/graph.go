package core

// NodeID uniquely identifies a node within a graph.
type NodeID string

// Node is a unit of work: one tool invocation driven by a prompt template.
type Node struct {
	ID     NodeID         `json:"id" yaml:"id"`
	Kind   string         `json:"kind" yaml:"kind"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Prompt string         `json:"prompt" yaml:"prompt"`
	Args   map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// DisplayName returns the label, falling back to the id.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return string(n.ID)
}

// Edge is a directed dependency: To may not run until From completed.
type Edge struct {
	From NodeID `json:"from" yaml:"from"`
	To   NodeID `json:"to" yaml:"to"`
}

// Graph is the caller-supplied node/edge description of a task.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Node returns the declared node with the given id.
func (g Graph) Node(id NodeID) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
