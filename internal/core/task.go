package core

import (
	"fmt"
	"strings"
)

// DefaultKind is the tool kind used by single-node tasks that declare no type.
const DefaultKind = "answer"

// SingleNodeID is the id given to the implicit node of a single-node task.
const SingleNodeID NodeID = "task"

// TaskSpec is the wire form of a task as supplied by callers (files, HTTP).
// It is decoded once into a Task via Resolve.
type TaskSpec struct {
	Goal       string            `json:"goal" yaml:"goal"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Prompt     string            `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Graph      *Graph            `json:"graph,omitempty" yaml:"graph,omitempty"`
	Input      map[string]string `json:"input,omitempty" yaml:"input,omitempty"`
	OutputNode NodeID            `json:"output_node,omitempty" yaml:"output_node,omitempty"`
}

// Task is either a SingleNodeTask or a GraphTask.
type Task interface {
	// TaskGoal returns the human-readable goal.
	TaskGoal() string
	// StaticInputs returns the substitution values available to every prompt.
	StaticInputs() map[string]string
	// AsGraph normalizes the task into graph form.
	AsGraph() GraphTask
}

// SingleNodeTask runs one tool with the goal (or flat prompt) as its prompt.
type SingleNodeTask struct {
	Goal   string
	Type   string
	Prompt string
	Input  map[string]string
}

// GraphTask runs a node/edge graph.
type GraphTask struct {
	Goal  string
	Graph Graph
	Input map[string]string
	// OutputNode designates the node whose output becomes the result.
	// When empty the last declared sink of the final wave is used.
	OutputNode NodeID
}

// TaskGoal implements Task.
func (t SingleNodeTask) TaskGoal() string { return t.Goal }

// StaticInputs implements Task.
func (t SingleNodeTask) StaticInputs() map[string]string { return staticInputs(t.Goal, t.Input) }

// AsGraph implements Task. The result is a one-node graph with no edges.
func (t SingleNodeTask) AsGraph() GraphTask {
	kind := strings.TrimSpace(t.Type)
	if kind == "" {
		kind = DefaultKind
	}
	prompt := t.Prompt
	if prompt == "" {
		prompt = t.Goal
	}
	return GraphTask{
		Goal:  t.Goal,
		Input: t.Input,
		Graph: Graph{Nodes: []Node{{
			ID:     SingleNodeID,
			Kind:   kind,
			Label:  t.Goal,
			Prompt: prompt,
		}}},
		OutputNode: SingleNodeID,
	}
}

// TaskGoal implements Task.
func (t GraphTask) TaskGoal() string { return t.Goal }

// StaticInputs implements Task.
func (t GraphTask) StaticInputs() map[string]string { return staticInputs(t.Goal, t.Input) }

// AsGraph implements Task.
func (t GraphTask) AsGraph() GraphTask { return t }

// staticInputs merges the caller's input bag with goal-derived defaults.
// Explicit inputs always win.
func staticInputs(goal string, input map[string]string) map[string]string {
	out := make(map[string]string, len(input)+2)
	out["goal"] = goal
	out["topic"] = goal
	for k, v := range input {
		out[k] = v
	}
	return out
}

// WithDefaultKind returns a copy of s in which the single node, or every graph
// node, that names no kind uses kind. An empty kind means DefaultKind. The
// caller's graph is never modified.
func (s TaskSpec) WithDefaultKind(kind string) TaskSpec {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = DefaultKind
	}
	if s.Graph == nil {
		if strings.TrimSpace(s.Type) == "" {
			s.Type = kind
		}
		return s
	}

	g := *s.Graph
	g.Nodes = make([]Node, len(s.Graph.Nodes))
	for i, n := range s.Graph.Nodes {
		if strings.TrimSpace(n.Kind) == "" {
			n.Kind = kind
		}
		g.Nodes[i] = n
	}
	s.Graph = &g
	return s
}

// Resolve decides the task variant. A spec with a graph becomes a GraphTask,
// anything else a SingleNodeTask.
func (s TaskSpec) Resolve() (Task, error) {
	if s.Graph != nil {
		if len(s.Graph.Nodes) == 0 {
			return nil, ErrValidation(CodeEmptyGraph, "graph declares no nodes")
		}
		if s.OutputNode != "" {
			if _, ok := s.Graph.Node(s.OutputNode); !ok {
				return nil, ErrValidation(CodeInvalidOutputNode,
					fmt.Sprintf("output node %q is not declared", s.OutputNode))
			}
		}
		return GraphTask{
			Goal:       s.Goal,
			Graph:      *s.Graph,
			Input:      s.Input,
			OutputNode: s.OutputNode,
		}, nil
	}

	if strings.TrimSpace(s.Goal) == "" && strings.TrimSpace(s.Prompt) == "" {
		return nil, ErrValidation(CodeInvalidTask, "task needs a goal, a prompt or a graph")
	}
	if s.OutputNode != "" && s.OutputNode != SingleNodeID {
		return nil, ErrValidation(CodeInvalidOutputNode,
			fmt.Sprintf("output node %q is not declared", s.OutputNode))
	}
	return SingleNodeTask{
		Goal:   s.Goal,
		Type:   s.Type,
		Prompt: s.Prompt,
		Input:  s.Input,
	}, nil
}
