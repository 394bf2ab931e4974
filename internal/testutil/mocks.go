package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// MockTool implements core.Tool and records every invocation.
type MockTool struct {
	kind       string
	invokeFunc func(context.Context, core.ToolArgs) (string, error)
	delay      time.Duration
	calls      []MockCall
	mu         sync.Mutex
}

// MockCall records a call to the mock.
type MockCall struct {
	Args      core.ToolArgs
	Timestamp time.Time
}

// NewMockTool creates a mock that answers "<kind>:<prompt>".
func NewMockTool(kind string) *MockTool {
	return &MockTool{kind: kind}
}

// Invoke records the call and delegates to the configured behaviour.
func (m *MockTool) Invoke(ctx context.Context, args core.ToolArgs) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Args: args, Timestamp: time.Now()})
	fn := m.invokeFunc
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, args)
	}
	return fmt.Sprintf("%s:%s", m.kind, args.Query), nil
}

// WithInvokeFunc sets custom invoke behaviour.
func (m *MockTool) WithInvokeFunc(fn func(context.Context, core.ToolArgs) (string, error)) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFunc = fn
	return m
}

// WithResponse makes every call return output.
func (m *MockTool) WithResponse(output string) *MockTool {
	return m.WithInvokeFunc(func(context.Context, core.ToolArgs) (string, error) {
		return output, nil
	})
}

// WithError makes every call fail with err.
func (m *MockTool) WithError(err error) *MockTool {
	return m.WithInvokeFunc(func(context.Context, core.ToolArgs) (string, error) {
		return "", err
	})
}

// WithDelay makes every call wait d before answering, or until ctx is done.
func (m *MockTool) WithDelay(d time.Duration) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls returns a copy of the recorded calls.
func (m *MockTool) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of invocations.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Queries returns the substituted prompt of every call, in call order.
func (m *MockTool) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Args.Query
	}
	return out
}

// NodeIDs returns the node of every call, in call order.
func (m *MockTool) NodeIDs() []core.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.NodeID, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Args.NodeID
	}
	return out
}

// Reset clears recorded calls.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// MockRunStore is an in-memory core.RunStore.
type MockRunStore struct {
	runs    map[string]*core.RunRecord
	saveErr error
	mu      sync.Mutex
}

// NewMockRunStore creates an empty store.
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{runs: make(map[string]*core.RunRecord)}
}

// Save implements core.RunStore.
func (m *MockRunStore) Save(_ context.Context, record *core.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *record
	m.runs[record.RunID] = &cp
	return nil
}

// Get implements core.RunStore.
func (m *MockRunStore) Get(_ context.Context, runID string) (*core.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, core.ErrRunMissing(runID)
	}
	cp := *r
	return &cp, nil
}

// List implements core.RunStore.
func (m *MockRunStore) List(_ context.Context, filter core.RunFilter) ([]*core.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete implements core.RunStore.
func (m *MockRunStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return core.ErrRunMissing(runID)
	}
	delete(m.runs, runID)
	return nil
}

// Close implements core.RunStore.
func (m *MockRunStore) Close() error { return nil }

// WithSaveError makes Save fail.
func (m *MockRunStore) WithSaveError(err error) *MockRunStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// Len returns the number of stored runs.
func (m *MockRunStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}
