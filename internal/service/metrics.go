package service

import (
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// MetricsCollector collects metrics for a single orchestration run.
// Sibling nodes of a wave report concurrently.
type MetricsCollector struct {
	mu      sync.RWMutex
	started time.Time
	ended   time.Time
	summary core.RunSummary
	nodes   map[core.NodeID]*core.NodeMetrics
	kinds   map[string]*kindTotals
}

type kindTotals struct {
	invocations int
	errors      int
	total       time.Duration
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		nodes: make(map[core.NodeID]*core.NodeMetrics),
		kinds: make(map[string]*kindTotals),
	}
}

// StartRun marks run start.
func (m *MetricsCollector) StartRun(nodeCount, waveCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = time.Now()
	m.summary.Nodes = nodeCount
	m.summary.Waves = waveCount
}

// EndRun marks run end.
func (m *MetricsCollector) EndRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = time.Now()
	m.summary.DurationMS = m.ended.Sub(m.started).Milliseconds()
}

// StartNode starts tracking a node and returns its start time.
func (m *MetricsCollector) StartNode(node core.Node, wave int) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.nodes[node.ID] = &core.NodeMetrics{
		NodeID:    node.ID,
		Kind:      node.Kind,
		Wave:      wave,
		StartedAt: now,
	}
	return now
}

// EndNode ends tracking a node. A nil err marks it ok.
func (m *MetricsCollector) EndNode(id core.NodeID, err error) core.NodeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	nm, ok := m.nodes[id]
	if !ok {
		return core.NodeMetrics{NodeID: id}
	}

	nm.EndedAt = time.Now()
	duration := nm.EndedAt.Sub(nm.StartedAt)
	nm.DurationMS = duration.Milliseconds()

	if err != nil {
		nm.Status = core.NodeStatusError
		nm.Error = err.Error()
		m.summary.Failed++
	} else {
		nm.Status = core.NodeStatusOK
		m.summary.Succeeded++
	}

	kt, ok := m.kinds[nm.Kind]
	if !ok {
		kt = &kindTotals{}
		m.kinds[nm.Kind] = kt
	}
	kt.invocations++
	kt.total += duration
	if err != nil {
		kt.errors++
	}
	return *nm
}

// SkipNode records a node that was never dispatched.
func (m *MetricsCollector) SkipNode(node core.Node, wave int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[node.ID] = &core.NodeMetrics{
		NodeID: node.ID,
		Kind:   node.Kind,
		Wave:   wave,
		Status: core.NodeStatusSkipped,
	}
	m.summary.Skipped++
}

// Summary returns the run-level counts.
func (m *MetricsCollector) Summary() core.RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}

// Snapshot returns a copy of every node's metrics.
func (m *MetricsCollector) Snapshot() map[core.NodeID]core.NodeMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[core.NodeID]core.NodeMetrics, len(m.nodes))
	for id, nm := range m.nodes {
		result[id] = *nm
	}
	return result
}

// ByKind returns invocation totals for every tool kind that ran. Skipped
// nodes never count.
func (m *MetricsCollector) ByKind() map[string]core.KindMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]core.KindMetrics, len(m.kinds))
	for kind, kt := range m.kinds {
		result[kind] = core.KindMetrics{
			Kind:        kind,
			Invocations: kt.invocations,
			Errors:      kt.errors,
			TotalMS:     kt.total.Milliseconds(),
			AvgMS:       (kt.total / time.Duration(kt.invocations)).Milliseconds(),
		}
	}
	return result
}
