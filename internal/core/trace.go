package core

import "time"

// TraceLevel is the severity of a trace event.
type TraceLevel string

const (
	TraceInfo  TraceLevel = "info"
	TraceWarn  TraceLevel = "warn"
	TraceError TraceLevel = "error"
)

// Trace event names emitted by the orchestrator.
const (
	EventRunStart  = "run.start"
	EventRunEnd    = "run.end"
	EventWaveStart = "wave.start"
	EventWaveEnd   = "wave.end"
	EventNodeStart = "node.start"
	EventNodeEnd   = "node.end"
	EventNodeError = "node.error"
	EventNodeSkip  = "node.skip"
)

// TraceEvent is one structured trace record.
type TraceEvent struct {
	Event string         `json:"event"`
	Level TraceLevel     `json:"level"`
	Data  map[string]any `json:"data,omitempty"`
	Time  time.Time      `json:"time"`
}

// TraceSink receives orchestration events. It is an output only: the
// orchestrator never inspects what a sink does. Implementations must accept
// concurrent calls from sibling nodes of the same wave.
type TraceSink interface {
	Info(event string, data map[string]any)
	Warn(event string, data map[string]any)
	Error(event string, data map[string]any)
}
