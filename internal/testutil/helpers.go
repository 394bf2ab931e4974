package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// ErrTest is a generic tool failure.
var ErrTest = errors.New("test error")

// WriteSpec writes a task spec file into dir and returns its path.
func WriteSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing spec %s: %v", name, err)
	}
	return path
}

// EventLog is a trace sink that can be queried while a run is in flight.
type EventLog interface {
	Filter(event string) []core.TraceEvent
}

// WaitForEvent polls log until an event named event was recorded. It reports
// false when timeout passes first.
func WaitForEvent(log EventLog, event string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for len(log.Filter(event)) == 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

// NodeStatuses flattens result metrics to a status per node.
func NodeStatuses(result *core.ExecutionResult) map[core.NodeID]core.NodeStatus {
	out := make(map[core.NodeID]core.NodeStatus, len(result.Metrics))
	for id, m := range result.Metrics {
		out[id] = m.Status
	}
	return out
}
