package core

import "time"

// NodeStatus is the final state of a node within one run.
type NodeStatus string

const (
	NodeStatusOK      NodeStatus = "ok"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// RunState tracks an orchestration call: pending until run.start, running
// until the last wave settled. Completed and Failed are terminal.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// NodeMetrics records the execution of one node.
type NodeMetrics struct {
	NodeID     NodeID     `json:"node_id"`
	Kind       string     `json:"kind"`
	Wave       int        `json:"wave"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	EndedAt    time.Time  `json:"ended_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Status     NodeStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// RunSummary counts node outcomes of one run.
type RunSummary struct {
	Waves      int   `json:"waves"`
	Nodes      int   `json:"nodes"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	DurationMS int64 `json:"duration_ms"`
}

// KindMetrics aggregates the invocations of one tool kind within a run.
type KindMetrics struct {
	Kind        string `json:"kind"`
	Invocations int    `json:"invocations"`
	Errors      int    `json:"errors"`
	TotalMS     int64  `json:"total_ms"`
	AvgMS       int64  `json:"avg_ms"`
}

// ExecutionResult is the outcome of one orchestration call.
type ExecutionResult struct {
	RunID      string                 `json:"run_id"`
	Success    bool                   `json:"success"`
	State      RunState               `json:"state"`
	Result     string                 `json:"result"`
	OutputNode NodeID                 `json:"output_node,omitempty"`
	Metrics    map[NodeID]NodeMetrics `json:"metrics"`
	Summary    RunSummary             `json:"summary"`
	Kinds      map[string]KindMetrics `json:"kinds,omitempty"`
	Channels   map[NodeID]string      `json:"channels,omitempty"`
	Waves      [][]NodeID             `json:"waves,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    time.Time              `json:"ended_at"`
}

// Duration returns the wall time of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// FailedNodes returns the ids of nodes whose status is error, in wave order.
func (r *ExecutionResult) FailedNodes() []NodeID {
	var failed []NodeID
	for _, wave := range r.Waves {
		for _, id := range wave {
			if r.Metrics[id].Status == NodeStatusError {
				failed = append(failed, id)
			}
		}
	}
	return failed
}
