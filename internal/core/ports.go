package core

import (
	"context"
	"time"
)

// RunRecord is the persisted form of one orchestration call.
type RunRecord struct {
	RunID      string                 `json:"run_id"`
	Goal       string                 `json:"goal"`
	State      RunState               `json:"state"`
	Success    bool                   `json:"success"`
	Result     string                 `json:"result"`
	OutputNode NodeID                 `json:"output_node,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    time.Time              `json:"ended_at"`
	Waves      [][]NodeID             `json:"waves,omitempty"`
	Metrics    map[NodeID]NodeMetrics `json:"metrics,omitempty"`
	Summary    RunSummary             `json:"summary"`
	Kinds      map[string]KindMetrics `json:"kinds,omitempty"`
	Channels   map[NodeID]string      `json:"channels,omitempty"`
	Events     []TraceEvent           `json:"events,omitempty"`
	Spec       *TaskSpec              `json:"spec,omitempty"`
}

// NewRunRecord captures a finished run for storage.
func NewRunRecord(result *ExecutionResult, goal string, spec *TaskSpec, events []TraceEvent) *RunRecord {
	return &RunRecord{
		RunID:      result.RunID,
		Goal:       goal,
		State:      result.State,
		Success:    result.Success,
		Result:     result.Result,
		OutputNode: result.OutputNode,
		Error:      result.Error,
		StartedAt:  result.StartedAt,
		EndedAt:    result.EndedAt,
		Waves:      result.Waves,
		Metrics:    result.Metrics,
		Summary:    result.Summary,
		Kinds:      result.Kinds,
		Channels:   result.Channels,
		Events:     events,
		Spec:       spec,
	}
}

// DurationMS returns the wall time of the run in milliseconds.
func (r *RunRecord) DurationMS() int64 {
	return r.EndedAt.Sub(r.StartedAt).Milliseconds()
}

// RunFilter narrows RunStore.List.
type RunFilter struct {
	// Limit caps the number of records; zero means no cap.
	Limit int
	// State keeps only runs in this state when set.
	State RunState
}

// RunStore persists run history. Implementations must be safe for concurrent use.
type RunStore interface {
	// Save inserts or replaces the record with the same run id.
	Save(ctx context.Context, record *RunRecord) error

	// Get returns a run or an error matching ErrRunNotFound.
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// List returns runs newest first.
	List(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// Delete removes a run. Deleting a missing run is an ErrRunNotFound error.
	Delete(ctx context.Context, runID string) error

	Close() error
}
