package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

// SSEEvent is the data payload of one trace event on the stream.
type SSEEvent struct {
	Level core.TraceLevel `json:"level"`
	Data  map[string]any  `json:"data,omitempty"`
	Time  time.Time       `json:"time"`
}

// sseTrace forwards trace events to a Server-Sent Events stream. Sibling nodes
// emit concurrently, so writes are serialized.
type sseTrace struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *logging.Logger
	closed  bool
}

func (t *sseTrace) Info(event string, data map[string]any) {
	t.send(event, SSEEvent{Level: core.TraceInfo, Data: data, Time: time.Now()})
}

func (t *sseTrace) Warn(event string, data map[string]any) {
	t.send(event, SSEEvent{Level: core.TraceWarn, Data: data, Time: time.Now()})
}

func (t *sseTrace) Error(event string, data map[string]any) {
	t.send(event, SSEEvent{Level: core.TraceError, Data: data, Time: time.Now()})
}

func (t *sseTrace) send(eventType string, payload interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	// SSE format: event: type\ndata: json\n\n
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		// The client went away; the run continues without a stream.
		t.closed = true
		return
	}
	t.flusher.Flush()
}

// handleStreamRun runs a task and streams its trace events as they happen.
// Structural errors are reported as a plain JSON error before the stream opens.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	spec, err := decodeSpec(w, r)
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}
	task, err := spec.WithDefaultKind(s.defaultKind).Resolve()
	if err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}
	if _, _, err := s.orchestrator.Plan(task); err != nil {
		s.respondDomainError(w, err, "invalid task")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := &sseTrace{w: w, flusher: flusher, logger: s.logger}
	record, err := s.execute(r, spec, stream)
	if err != nil {
		s.logger.Error("streamed run failed", "error", err)
		stream.send("error", ErrorResponse{Error: err.Error(), Code: core.GetCode(err)})
		return
	}
	stream.send("result", summarize(record))
}
