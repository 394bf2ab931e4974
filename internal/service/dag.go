package service

import (
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// DAGBuilder collects nodes and edges and validates them into a Plan.
type DAGBuilder struct {
	order []core.NodeID
	nodes map[core.NodeID]core.Node
	edges []core.Edge
	errs  []error
	mu    sync.Mutex
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		nodes: make(map[core.NodeID]core.Node),
	}
}

// AddNode declares a node. Declaration order is the tie-break inside a wave.
func (d *DAGBuilder) AddNode(node core.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if node.ID == "" {
		err := core.ErrValidation(core.CodeInvalidNode,
			fmt.Sprintf("node at position %d has an empty id", len(d.order)))
		d.errs = append(d.errs, err)
		return err
	}
	if _, exists := d.nodes[node.ID]; exists {
		err := core.ErrValidation(core.CodeDuplicateNode,
			fmt.Sprintf("node %q declared more than once", node.ID)).
			WithDetail("node_id", string(node.ID))
		d.errs = append(d.errs, err)
		return err
	}

	d.nodes[node.ID] = node
	d.order = append(d.order, node.ID)
	return nil
}

// AddEdge declares that to depends on from. Endpoints are checked in Build so
// edges may be added before their nodes.
func (d *DAGBuilder) AddEdge(from, to core.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edges = append(d.edges, core.Edge{From: from, To: to})
}

// Plan is a validated graph ready for execution.
type Plan struct {
	// Order groups node ids into waves; every dependency of a node in wave k
	// sits in a wave < k. Within a wave ids keep declaration order.
	Order [][]core.NodeID
	// Adjacency maps a node to its dependents, in edge declaration order.
	Adjacency map[core.NodeID][]core.NodeID
	// Predecessors maps a node to the nodes it depends on.
	Predecessors map[core.NodeID][]core.NodeID
	Nodes        map[core.NodeID]core.Node

	declared []core.NodeID
	waveOf   map[core.NodeID]int
}

// Build validates the graph and computes its waves.
func (d *DAGBuilder) Build() (*Plan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.errs) > 0 {
		return nil, d.errs[0]
	}
	if len(d.order) == 0 {
		return nil, core.ErrValidation(core.CodeEmptyGraph, "graph declares no nodes")
	}

	adjacency := make(map[core.NodeID][]core.NodeID, len(d.order))
	predecessors := make(map[core.NodeID][]core.NodeID, len(d.order))
	seen := make(map[core.Edge]bool, len(d.edges))

	for _, e := range d.edges {
		if _, ok := d.nodes[e.From]; !ok {
			return nil, core.ErrUnknownNodeRef(e, e.From)
		}
		if _, ok := d.nodes[e.To]; !ok {
			return nil, core.ErrUnknownNodeRef(e, e.To)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		adjacency[e.From] = append(adjacency[e.From], e.To)
		predecessors[e.To] = append(predecessors[e.To], e.From)
	}

	levels, err := d.calculateLevels(adjacency, predecessors)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Order:        levels,
		Adjacency:    adjacency,
		Predecessors: predecessors,
		Nodes:        make(map[core.NodeID]core.Node, len(d.nodes)),
		declared:     append([]core.NodeID(nil), d.order...),
		waveOf:       make(map[core.NodeID]int, len(d.order)),
	}
	for id, n := range d.nodes {
		plan.Nodes[id] = n
	}
	for i, wave := range levels {
		for _, id := range wave {
			plan.waveOf[id] = i
		}
	}
	return plan, nil
}

// calculateLevels peels the graph with Kahn's algorithm one level at a time.
// Nodes left over when no in-degree-zero node remains lie on a cycle.
func (d *DAGBuilder) calculateLevels(adjacency, predecessors map[core.NodeID][]core.NodeID) ([][]core.NodeID, error) {
	inDegree := make(map[core.NodeID]int, len(d.order))
	for _, id := range d.order {
		inDegree[id] = len(predecessors[id])
	}

	levels := make([][]core.NodeID, 0)
	assigned := make(map[core.NodeID]bool, len(d.order))

	for len(assigned) < len(d.order) {
		level := make([]core.NodeID, 0)
		for _, id := range d.order {
			if !assigned[id] && inDegree[id] == 0 {
				level = append(level, id)
			}
		}

		if len(level) == 0 {
			return nil, core.ErrCycle(d.nodeOnCycle(assigned, predecessors))
		}

		for _, id := range level {
			assigned[id] = true
			for _, next := range adjacency[id] {
				inDegree[next]--
			}
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// nodeOnCycle walks unassigned predecessors from the first leftover node in
// declaration order. Every leftover node still has a leftover predecessor, so
// the walk revisits a node, and that node lies on a cycle.
func (d *DAGBuilder) nodeOnCycle(assigned map[core.NodeID]bool, predecessors map[core.NodeID][]core.NodeID) core.NodeID {
	var cur core.NodeID
	for _, id := range d.order {
		if !assigned[id] {
			cur = id
			break
		}
	}

	visited := make(map[core.NodeID]bool)
	for !visited[cur] {
		visited[cur] = true
		for _, p := range predecessors[cur] {
			if !assigned[p] {
				cur = p
				break
			}
		}
	}
	return cur
}

// BuildGraph validates nodes and edges and returns their execution plan.
func BuildGraph(nodes []core.Node, edges []core.Edge) (*Plan, error) {
	d := NewDAGBuilder()
	for _, n := range nodes {
		if err := d.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		d.AddEdge(e.From, e.To)
	}
	return d.Build()
}

// NodeCount returns the number of nodes in the plan.
func (p *Plan) NodeCount() int {
	return len(p.declared)
}

// WaveOf returns the wave index of a node, or -1 if it is not in the plan.
func (p *Plan) WaveOf(id core.NodeID) int {
	w, ok := p.waveOf[id]
	if !ok {
		return -1
	}
	return w
}

// Sinks returns the nodes without outgoing edges, in declaration order.
func (p *Plan) Sinks() []core.NodeID {
	sinks := make([]core.NodeID, 0)
	for _, id := range p.declared {
		if len(p.Adjacency[id]) == 0 {
			sinks = append(sinks, id)
		}
	}
	return sinks
}

// DefaultOutput picks the node whose output becomes the run result when the
// caller does not designate one: the last declared sink of the final wave.
func (p *Plan) DefaultOutput() core.NodeID {
	last := len(p.Order) - 1
	var out core.NodeID
	for _, id := range p.Sinks() {
		if p.waveOf[id] == last {
			out = id
		}
	}
	return out
}

// Ancestors returns every node id that id transitively depends on.
func (p *Plan) Ancestors(id core.NodeID) map[core.NodeID]bool {
	result := make(map[core.NodeID]bool)
	stack := append([]core.NodeID(nil), p.Predecessors[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if result[cur] {
			continue
		}
		result[cur] = true
		stack = append(stack, p.Predecessors[cur]...)
	}
	return result
}

// DanglingReferences reports, per node, channel references in its prompt that
// do not name an ancestor. Such references resolve to the empty string.
func (p *Plan) DanglingReferences() map[core.NodeID][]core.NodeID {
	out := make(map[core.NodeID][]core.NodeID)
	for _, id := range p.declared {
		refs := References(p.Nodes[id].Prompt)
		if len(refs) == 0 {
			continue
		}
		ancestors := p.Ancestors(id)
		for _, ref := range refs {
			if !ancestors[ref] {
				out[id] = append(out[id], ref)
			}
		}
	}
	return out
}
