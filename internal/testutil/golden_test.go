package testutil_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "CRLF to LF",
			input: "line1\r\nline2\r\n",
			want:  "line1\nline2",
		},
		{
			name:  "trailing whitespace",
			input: "line1   \nline2\t\n",
			want:  "line1\nline2",
		},
		{
			name:  "trailing newlines",
			input: "line1\nline2\n\n\n",
			want:  "line1\nline2",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "already clean",
			input: "line1\nline2",
			want:  "line1\nline2",
		},
		{
			name:  "mixed line endings",
			input: "a\r\nb  \nc\t\r\n",
			want:  "a\nb\nc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.Normalize(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScrubTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ISO format with timezone",
			input: "started at 2024-01-15T10:30:45Z",
			want:  "started at [TIMESTAMP]",
		},
		{
			name:  "standard datetime",
			input: "created 2024-01-15 10:30:45 done",
			want:  "created [TIMESTAMP] done",
		},
		{
			name:  "time only",
			input: "run at 10:30:45",
			want:  "run at [TIMESTAMP]",
		},
		{
			name:  "no timestamps",
			input: "no timestamps here",
			want:  "no timestamps here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.ScrubTimestamps(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScrubDurations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "seconds with decimals",
			input: "took 1.234s to complete",
			want:  "took [DURATION] to complete",
		},
		{
			name:  "minutes and seconds",
			input: "elapsed 5m30s",
			want:  "elapsed [DURATION]",
		},
		{
			name:  "milliseconds",
			input: "latency: 150ms",
			want:  "latency: [DURATION]",
		},
		{
			name:  "no durations",
			input: "hello world",
			want:  "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.ScrubDurations(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScrubPaths(t *testing.T) {
	got := testutil.ScrubPaths("file at /home/user/project/main.go", "/home/user/project")
	assert.Equal(t, "file at [WORKDIR]/main.go", got)

	// No match
	got = testutil.ScrubPaths("file at /other/path", "/home/user/project")
	assert.Equal(t, "file at /other/path", got)
}

func TestScrubUUIDs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single UUID",
			input: "id=550e8400-e29b-41d4-a716-446655440000",
			want:  "id=[UUID]",
		},
		{
			name:  "multiple UUIDs",
			input: "a=550e8400-e29b-41d4-a716-446655440000 b=12345678-1234-1234-1234-123456789012",
			want:  "a=[UUID] b=[UUID]",
		},
		{
			name:  "no UUIDs",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.ScrubUUIDs(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScrubRun(t *testing.T) {
	input := "run 550e8400-e29b-41d4-a716-446655440000 started at 2024-01-15T10:30:45Z in /home/user/project took 1.234s  \r\n"
	got := testutil.ScrubRun(input, "/home/user/project")

	assert.Equal(t, "run [UUID] started at [TIMESTAMP] in [WORKDIR] took [DURATION]", got)
}

func TestFormatTrace(t *testing.T) {
	events := []core.TraceEvent{
		{Level: core.TraceInfo, Event: core.EventNodeStart, Data: map[string]any{"wave": 0, "nodeId": "A"}},
		{Level: core.TraceInfo, Event: core.EventNodeEnd, Data: map[string]any{"nodeId": "A", "elapsedMs": int64(12)}},
		{Level: core.TraceWarn, Event: core.EventNodeSkip},
	}

	got := testutil.FormatTrace(events)
	want := "info node.start nodeId=A wave=0\ninfo node.end nodeId=A\nwarn node.skip\n"
	assert.Equal(t, want, got)
}

func TestGolden_AssertString(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSpec(t, dir, "out.golden", "line one\r\nline two  \n\n")

	g := testutil.NewGolden(t, dir)
	g.AssertString("out", "line one\nline two\n")
}

func TestNewGolden_DefaultDir(t *testing.T) {
	g := testutil.NewGolden(t, "")
	assert.Equal(t, filepath.Join("testdata", "diamond.golden"), g.Path("diamond"))
}

func TestWriteSpec(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSpec(t, dir, "task.yaml", "goal: hi\n")
	assert.Equal(t, filepath.Join(dir, "task.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "goal: hi\n", string(data))
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []core.TraceEvent
}

func (f *fakeEventLog) add(e core.TraceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeEventLog) Filter(event string) []core.TraceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.TraceEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func TestWaitForEvent(t *testing.T) {
	log := &fakeEventLog{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		log.add(core.TraceEvent{Event: core.EventNodeSkip})
	}()
	assert.True(t, testutil.WaitForEvent(log, core.EventNodeSkip, 2*time.Second))
}

func TestWaitForEvent_Timeout(t *testing.T) {
	log := &fakeEventLog{}
	log.add(core.TraceEvent{Event: core.EventNodeStart})
	assert.False(t, testutil.WaitForEvent(log, core.EventNodeSkip, 30*time.Millisecond))
}

func TestNodeStatuses(t *testing.T) {
	result := &core.ExecutionResult{Metrics: map[core.NodeID]core.NodeMetrics{
		"A": {NodeID: "A", Status: core.NodeStatusOK},
		"B": {NodeID: "B", Status: core.NodeStatusSkipped},
	}}
	assert.Equal(t, map[core.NodeID]core.NodeStatus{
		"A": core.NodeStatusOK,
		"B": core.NodeStatusSkipped,
	}, testutil.NodeStatuses(result))
}

func TestNewTestRecord(t *testing.T) {
	r := testutil.NewTestRecord("run-1")
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, core.RunStateCompleted, r.State)
	assert.Equal(t, int64(10), r.DurationMS())
}

func TestNewTestRecord_WithOptions(t *testing.T) {
	r := testutil.NewTestRecord("run-1", func(r *core.RunRecord) {
		r.Goal = "custom goal"
	})
	assert.Equal(t, "custom goal", r.Goal)
}

func TestDiamondSpec_Resolves(t *testing.T) {
	task, err := testutil.DiamondSpec().Resolve()
	require.NoError(t, err)
	assert.Len(t, task.AsGraph().Graph.Nodes, 4)
}
