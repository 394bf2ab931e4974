package testutil

import (
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// NewTestRecord creates a completed RunRecord with sensible defaults for tests.
// Use functional options to override specific fields.
func NewTestRecord(runID string, opts ...func(*core.RunRecord)) *core.RunRecord {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &core.RunRecord{
		RunID:      runID,
		Goal:       "test goal",
		State:      core.RunStateCompleted,
		Success:    true,
		Result:     "OUT:test goal",
		OutputNode: core.SingleNodeID,
		StartedAt:  started,
		EndedAt:    started.Add(10 * time.Millisecond),
		Waves:      [][]core.NodeID{{core.SingleNodeID}},
		Metrics: map[core.NodeID]core.NodeMetrics{
			core.SingleNodeID: {NodeID: core.SingleNodeID, Kind: core.DefaultKind, Status: core.NodeStatusOK},
		},
		Channels: map[core.NodeID]string{core.SingleNodeID: "OUT:test goal"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DiamondSpec returns the four-node fan-out/fan-in task used across tests.
func DiamondSpec() core.TaskSpec {
	return core.TaskSpec{
		Goal:  "research T",
		Input: map[string]string{"topic": "T"},
		Graph: &core.Graph{
			Nodes: []core.Node{
				{ID: "A", Kind: "answer", Prompt: "A on {{topic}}"},
				{ID: "B", Kind: "answer", Prompt: "B sees {{channel:A.last}}"},
				{ID: "C", Kind: "answer", Prompt: "C sees {{channel:A.last}}"},
				{ID: "D", Kind: "answer", Prompt: "Combine {{channel:B.last}} + {{channel:C.last}}"},
			},
			Edges: []core.Edge{
				{From: "A", To: "B"},
				{From: "A", To: "C"},
				{From: "B", To: "D"},
				{From: "C", To: "D"},
			},
		},
	}
}
