package core

import (
	"context"
	"errors"
	"testing"
)

func TestTaskSpec_ResolveSingleNode(t *testing.T) {
	task, err := TaskSpec{Goal: "what is Go"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	single, ok := task.(SingleNodeTask)
	if !ok {
		t.Fatalf("Resolve() = %T, want SingleNodeTask", task)
	}

	g := single.AsGraph()
	if len(g.Graph.Nodes) != 1 || len(g.Graph.Edges) != 0 {
		t.Fatalf("AsGraph() = %+v, want one node and no edges", g.Graph)
	}
	n := g.Graph.Nodes[0]
	if n.ID != SingleNodeID || n.Kind != DefaultKind || n.Prompt != "what is Go" {
		t.Errorf("node = %+v", n)
	}
	if g.OutputNode != SingleNodeID {
		t.Errorf("OutputNode = %q", g.OutputNode)
	}
}

func TestTaskSpec_ResolveSingleNodeTypeAndPrompt(t *testing.T) {
	task, err := TaskSpec{Goal: "g", Type: " upper ", Prompt: "p {{goal}}"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	n := task.AsGraph().Graph.Nodes[0]
	if n.Kind != "upper" || n.Prompt != "p {{goal}}" || n.Label != "g" {
		t.Errorf("node = %+v", n)
	}
}

func TestTaskSpec_ResolveGraph(t *testing.T) {
	spec := TaskSpec{
		Goal: "g",
		Graph: &Graph{
			Nodes: []Node{{ID: "A", Kind: "answer"}, {ID: "B", Kind: "answer"}},
			Edges: []Edge{{From: "A", To: "B"}},
		},
		OutputNode: "A",
	}
	task, err := spec.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	gt, ok := task.(GraphTask)
	if !ok {
		t.Fatalf("Resolve() = %T, want GraphTask", task)
	}
	if gt.OutputNode != "A" || len(gt.Graph.Nodes) != 2 {
		t.Errorf("GraphTask = %+v", gt)
	}
	if gt.AsGraph().Goal != "g" {
		t.Error("AsGraph() should return the task itself")
	}
}

func TestTaskSpec_ResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		spec TaskSpec
		code string
	}{
		{"nothing", TaskSpec{}, CodeInvalidTask},
		{"blank goal", TaskSpec{Goal: "  "}, CodeInvalidTask},
		{"empty graph", TaskSpec{Goal: "g", Graph: &Graph{}}, CodeEmptyGraph},
		{
			"unknown output node",
			TaskSpec{Goal: "g", Graph: &Graph{Nodes: []Node{{ID: "A"}}}, OutputNode: "B"},
			CodeInvalidOutputNode,
		},
		{"single node with foreign output", TaskSpec{Goal: "g", OutputNode: "X"}, CodeInvalidOutputNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Resolve()
			if GetCode(err) != tt.code {
				t.Errorf("Resolve() error = %v, want code %s", err, tt.code)
			}
			if !IsCategory(err, ErrCatValidation) {
				t.Errorf("category = %s, want validation", GetCategory(err))
			}
		})
	}
}

func TestStaticInputs(t *testing.T) {
	task := GraphTask{Goal: "G", Input: map[string]string{"topic": "T", "extra": "x"}}
	in := task.StaticInputs()
	if in["goal"] != "G" || in["topic"] != "T" || in["extra"] != "x" {
		t.Errorf("StaticInputs() = %v", in)
	}

	defaults := SingleNodeTask{Goal: "G"}.StaticInputs()
	if defaults["topic"] != "G" {
		t.Errorf("topic default = %q, want goal", defaults["topic"])
	}

	explicit := SingleNodeTask{Goal: "G", Input: map[string]string{"goal": "other"}}.StaticInputs()
	if explicit["goal"] != "other" {
		t.Errorf("explicit goal = %q, want other", explicit["goal"])
	}
}

func TestGraph_NodeLookup(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "A", Label: "Alpha"}, {ID: "B"}}}
	n, ok := g.Node("A")
	if !ok || n.DisplayName() != "Alpha" {
		t.Errorf("Node(A) = %+v, %v", n, ok)
	}
	n, _ = g.Node("B")
	if n.DisplayName() != "B" {
		t.Errorf("DisplayName() = %q, want B", n.DisplayName())
	}
	if _, ok := g.Node("Z"); ok {
		t.Error("Node(Z) should miss")
	}
}

func TestToolMap(t *testing.T) {
	called := false
	m := ToolMap{
		"b": ToolFunc(func(ctx context.Context, args ToolArgs) (string, error) {
			called = true
			return args.Query, nil
		}),
		"a": nil,
	}
	tool, ok := m.Lookup("b")
	if !ok {
		t.Fatal("Lookup(b) missed")
	}
	out, err := tool.Invoke(context.Background(), ToolArgs{Query: "q"})
	if err != nil || out != "q" || !called {
		t.Errorf("Invoke() = %q, %v", out, err)
	}
	if _, ok := m.Lookup("c"); ok {
		t.Error("Lookup(c) should miss")
	}
	if kinds := m.Kinds(); len(kinds) != 2 || kinds[0] != "a" {
		t.Errorf("Kinds() = %v", kinds)
	}
}

func TestRunState_IsTerminal(t *testing.T) {
	for state, want := range map[RunState]bool{
		RunStatePending:   false,
		RunStateRunning:   false,
		RunStateCompleted: true,
		RunStateFailed:    true,
	} {
		if state.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", state, !want, want)
		}
	}
}

func TestExecutionResult_FailedNodesInWaveOrder(t *testing.T) {
	r := &ExecutionResult{
		Waves: [][]NodeID{{"A"}, {"C", "B"}},
		Metrics: map[NodeID]NodeMetrics{
			"A": {Status: NodeStatusOK},
			"B": {Status: NodeStatusError},
			"C": {Status: NodeStatusError},
		},
	}
	got := r.FailedNodes()
	if len(got) != 2 || got[0] != "C" || got[1] != "B" {
		t.Errorf("FailedNodes() = %v", got)
	}
}

func TestNewRunRecord(t *testing.T) {
	spec := &TaskSpec{Goal: "g"}
	result := &ExecutionResult{RunID: "r", State: RunStateFailed, Error: "boom"}
	rec := NewRunRecord(result, "g", spec, []TraceEvent{{Event: EventRunStart}})
	if rec.RunID != "r" || rec.State != RunStateFailed || rec.Error != "boom" || rec.Spec != spec || len(rec.Events) != 1 {
		t.Errorf("NewRunRecord() = %+v", rec)
	}
	if !errors.Is(ErrRunMissing("r"), ErrRunNotFound) {
		t.Error("ErrRunMissing should match ErrRunNotFound")
	}
}

func TestTaskSpec_WithDefaultKind(t *testing.T) {
	if got := (TaskSpec{Goal: "g"}).WithDefaultKind("echo"); got.Type != "echo" {
		t.Errorf("untyped single node: Type = %q, want echo", got.Type)
	}
	if got := (TaskSpec{Goal: "g", Type: "upper"}).WithDefaultKind("echo"); got.Type != "upper" {
		t.Errorf("typed single node: Type = %q, want upper", got.Type)
	}
	if got := (TaskSpec{Goal: "g"}).WithDefaultKind(" "); got.Type != DefaultKind {
		t.Errorf("empty default: Type = %q, want %s", got.Type, DefaultKind)
	}
}

func TestTaskSpec_WithDefaultKindFillsGraphNodes(t *testing.T) {
	spec := TaskSpec{Graph: &Graph{
		Nodes: []Node{{ID: "A", Prompt: "hi"}, {ID: "B", Kind: "upper"}},
		Edges: []Edge{{From: "A", To: "B"}},
	}}

	got := spec.WithDefaultKind("echo")
	if got.Type != "" {
		t.Errorf("graph spec: Type = %q, want empty", got.Type)
	}
	if k := got.Graph.Nodes[0].Kind; k != "echo" {
		t.Errorf("Nodes[A].Kind = %q, want echo", k)
	}
	if k := got.Graph.Nodes[1].Kind; k != "upper" {
		t.Errorf("Nodes[B].Kind = %q, want upper", k)
	}
	if len(got.Graph.Edges) != 1 {
		t.Errorf("Edges = %v, want one edge", got.Graph.Edges)
	}
	if spec.Graph.Nodes[0].Kind != "" {
		t.Error("WithDefaultKind modified the caller's graph")
	}
}
