package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

// Orchestrator executes task graphs wave by wave.
//
// Nodes of one wave run concurrently; a wave starts only after the previous
// one settled. A failing node never cancels its siblings, but no wave is
// scheduled after a failure. The orchestrator does not retry and imposes no
// deadline of its own: both belong to the caller (tool decorators, ctx).
type Orchestrator struct {
	logger      *logging.Logger
	tracer      trace.Tracer
	maxParallel int
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer enables OpenTelemetry spans for runs and nodes.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithMaxParallel bounds how many nodes of a wave run at once. Zero or a
// negative value leaves waves unbounded.
func WithMaxParallel(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n < 0 {
			n = 0
		}
		o.maxParallel = n
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is one orchestration call.
type Request struct {
	// RunID identifies the run; generated when empty.
	RunID string
	Task  core.Task
	Tools core.ToolLookup
	// Trace receives lifecycle events. Nil discards them.
	Trace core.TraceSink
	// Data is forwarded untouched to every tool.
	Data any
}

// Plan validates a task and returns its execution plan and output node
// without running anything.
func (o *Orchestrator) Plan(task core.Task) (*Plan, core.NodeID, error) {
	if task == nil {
		return nil, "", core.ErrValidation(core.CodeInvalidTask, "no task given")
	}
	gt := task.AsGraph()

	plan, err := BuildGraph(gt.Graph.Nodes, gt.Graph.Edges)
	if err != nil {
		return nil, "", err
	}

	output := gt.OutputNode
	if output == "" {
		output = plan.DefaultOutput()
	} else if _, ok := plan.Nodes[output]; !ok {
		return nil, "", core.ErrValidation(core.CodeInvalidOutputNode,
			fmt.Sprintf("output node %q is not declared", output))
	}
	return plan, output, nil
}

// Orchestrate runs the task. It returns an error only for structural problems
// detected before any tool runs; node failures yield Success=false instead.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*core.ExecutionResult, error) {
	plan, output, err := o.Plan(req.Task)
	if err != nil {
		o.logger.Warn("task rejected", "error", err)
		return nil, err
	}

	tools := req.Tools
	if tools == nil {
		tools = core.ToolMap{}
	}
	sink := req.Trace
	if sink == nil {
		sink = NopTrace{}
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	goal := req.Task.TaskGoal()

	r := &run{
		o:        o,
		id:       runID,
		plan:     plan,
		tools:    tools,
		sink:     sink,
		data:     req.Data,
		inputs:   req.Task.StaticInputs(),
		channels: newChannelStore(),
		metrics:  NewMetricsCollector(),
		logger:   o.logger.WithRun(runID),
	}

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "taskgraph.orchestrate",
			trace.WithAttributes(
				attribute.String("run.id", runID),
				attribute.String("run.goal", goal),
				attribute.Int("run.node_count", plan.NodeCount()),
				attribute.Int("run.wave_count", len(plan.Order)),
			),
		)
		defer span.End()
	}

	result := r.execute(ctx, goal, output)

	if span != nil {
		span.SetAttributes(attribute.Bool("run.success", result.Success))
		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	return result, nil
}

// run holds the state of one orchestration call.
type run struct {
	o        *Orchestrator
	id       string
	plan     *Plan
	tools    core.ToolLookup
	sink     core.TraceSink
	data     any
	inputs   map[string]string
	channels *channelStore
	metrics  *MetricsCollector
	logger   *logging.Logger

	failed   atomic.Bool
	errOnce  sync.Once
	firstErr string
}

func (r *run) execute(ctx context.Context, goal string, output core.NodeID) *core.ExecutionResult {
	started := time.Now()

	r.metrics.StartRun(r.plan.NodeCount(), len(r.plan.Order))
	r.sink.Info(core.EventRunStart, map[string]any{
		"runId": r.id,
		"goal":  goal,
		"nodes": r.plan.NodeCount(),
		"waves": len(r.plan.Order),
	})
	r.logger.Info("orchestration started",
		"nodes", r.plan.NodeCount(),
		"waves", len(r.plan.Order),
	)

	var waveErr error
	for i, wave := range r.plan.Order {
		if err := ctx.Err(); err != nil {
			r.fail(core.ErrCancelled(err).Error())
			r.skipNodes(i, wave, "cancelled")
			continue
		}
		if waveErr != nil {
			r.skipNodes(i, wave, "upstream failure")
			continue
		}
		waveErr = r.runWave(ctx, i, wave)
	}

	r.metrics.EndRun()
	state := core.RunStateCompleted
	if r.failed.Load() {
		state = core.RunStateFailed
	}

	channels := r.channels.snapshot()
	result := &core.ExecutionResult{
		RunID:      r.id,
		Success:    state == core.RunStateCompleted,
		State:      state,
		Result:     channels[output],
		OutputNode: output,
		Metrics:    r.metrics.Snapshot(),
		Summary:    r.metrics.Summary(),
		Kinds:      r.metrics.ByKind(),
		Channels:   channels,
		Waves:      r.plan.Order,
		Error:      r.firstErr,
		StartedAt:  started,
		EndedAt:    time.Now(),
	}

	r.sink.Info(core.EventRunEnd, map[string]any{
		"runId":     r.id,
		"success":   result.Success,
		"elapsedMs": result.Duration().Milliseconds(),
	})
	r.logger.Info("orchestration finished",
		"success", result.Success,
		"duration", result.Duration(),
	)
	return result
}

// runWave dispatches every node of one wave and waits for them. It returns
// the first node error of the wave, or the cancellation that stopped its
// dispatch.
func (r *run) runWave(ctx context.Context, index int, wave []core.NodeID) error {
	r.sink.Info(core.EventWaveStart, map[string]any{
		"wave":  index,
		"nodes": idsToStrings(wave),
	})

	// Every node of this wave reads channels written by earlier waves only.
	tc := TemplateContext{Inputs: r.inputs, Channels: r.channels.snapshot()}

	var sem chan struct{}
	if r.o.maxParallel > 0 {
		sem = make(chan struct{}, r.o.maxParallel)
	}

	// Siblings are never cancelled by a failing node, so the group carries no
	// context of its own.
	var g errgroup.Group
	for i, id := range wave {
		node := r.plan.Nodes[id]
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				cancelled := core.ErrCancelled(ctx.Err())
				r.fail(cancelled.Error())
				r.skipNodes(index, wave[i:], "cancelled")
				if err := g.Wait(); err != nil {
					return r.finishWave(index, err)
				}
				return r.finishWave(index, cancelled)
			}
		}

		// Issued in declaration order: start events are emitted here, not in
		// the goroutine.
		r.metrics.StartNode(node, index)
		r.sink.Info(core.EventNodeStart, map[string]any{
			"nodeId": string(node.ID),
			"kind":   node.Kind,
			"label":  node.DisplayName(),
			"wave":   index,
		})

		g.Go(func() error {
			if sem != nil {
				defer func() { <-sem }()
			}
			return r.runNode(ctx, node, index, tc)
		})
	}
	return r.finishWave(index, g.Wait())
}

func (r *run) finishWave(index int, err error) error {
	if err != nil {
		r.logger.Debug("wave settled with failures", "wave", index, "first_error", err)
	}
	r.sink.Info(core.EventWaveEnd, map[string]any{
		"wave":   index,
		"failed": r.failed.Load(),
	})
	return err
}

func (r *run) runNode(ctx context.Context, node core.Node, wave int, tc TemplateContext) error {
	var span trace.Span
	if r.o.tracer != nil {
		ctx, span = r.o.tracer.Start(ctx, "taskgraph.node",
			trace.WithAttributes(
				attribute.String("node.id", string(node.ID)),
				attribute.String("node.kind", node.Kind),
				attribute.Int("node.wave", wave),
			),
		)
		defer span.End()
	}

	output, err := r.invoke(ctx, node, tc)
	nm := r.metrics.EndNode(node.ID, err)

	if err != nil {
		r.fail(err.Error())
		r.sink.Error(core.EventNodeError, map[string]any{
			"nodeId":    string(node.ID),
			"kind":      node.Kind,
			"error":     err.Error(),
			"elapsedMs": nm.DurationMS,
		})
		r.logger.WithNode(string(node.ID)).Warn("node failed", "kind", node.Kind, "error", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	r.channels.write(node.ID, output)
	r.sink.Info(core.EventNodeEnd, map[string]any{
		"nodeId":      string(node.ID),
		"kind":        node.Kind,
		"elapsedMs":   nm.DurationMS,
		"outputBytes": len(output),
	})
	r.logger.WithNode(string(node.ID)).Debug("node completed", "kind", node.Kind, "duration_ms", nm.DurationMS)
	return nil
}

// invoke resolves the node's tool and calls it. A panicking tool is reported
// as a failed node.
func (r *run) invoke(ctx context.Context, node core.Node, tc TemplateContext) (output string, err error) {
	tool, ok := r.tools.Lookup(node.Kind)
	if !ok || tool == nil {
		return "", core.ErrMissingTool(node.Kind)
	}

	prompt := Substitute(node.Prompt, tc)

	defer func() {
		if p := recover(); p != nil {
			err = core.ErrToolFailed(node.ID, fmt.Errorf("panic: %v", p))
		}
	}()

	output, err = tool.Invoke(ctx, core.ToolArgs{
		Query:  prompt,
		Prompt: prompt,
		NodeID: node.ID,
		Kind:   node.Kind,
		Label:  node.Label,
		Args:   node.Args,
		Data:   r.data,
	})
	if err != nil {
		return "", core.ErrToolFailed(node.ID, err)
	}
	return output, nil
}

func (r *run) skipNodes(index int, ids []core.NodeID, reason string) {
	for _, id := range ids {
		node := r.plan.Nodes[id]
		r.metrics.SkipNode(node, index)
		r.sink.Warn(core.EventNodeSkip, map[string]any{
			"nodeId": string(id),
			"wave":   index,
			"reason": reason,
		})
	}
}

func (r *run) fail(msg string) {
	r.failed.Store(true)
	r.errOnce.Do(func() { r.firstErr = msg })
}

// channelStore holds the last output of every completed node. Each node
// writes at most once per run.
type channelStore struct {
	mu     sync.RWMutex
	values map[core.NodeID]string
}

func newChannelStore() *channelStore {
	return &channelStore{values: make(map[core.NodeID]string)}
}

func (c *channelStore) write(id core.NodeID, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.values[id]; exists {
		return false
	}
	c.values[id] = value
	return true
}

func (c *channelStore) snapshot() map[core.NodeID]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[core.NodeID]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func idsToStrings(ids []core.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
