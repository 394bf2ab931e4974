package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

// MemoryTrace keeps every event in memory. It is the sink tests assert on.
type MemoryTrace struct {
	mu     sync.Mutex
	events []core.TraceEvent
}

// NewMemoryTrace creates an empty in-memory sink.
func NewMemoryTrace() *MemoryTrace {
	return &MemoryTrace{}
}

func (m *MemoryTrace) Info(event string, data map[string]any) {
	m.append(core.TraceInfo, event, data)
}

func (m *MemoryTrace) Warn(event string, data map[string]any) {
	m.append(core.TraceWarn, event, data)
}

func (m *MemoryTrace) Error(event string, data map[string]any) {
	m.append(core.TraceError, event, data)
}

func (m *MemoryTrace) append(level core.TraceLevel, event string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, core.TraceEvent{
		Event: event,
		Level: level,
		Data:  data,
		Time:  time.Now(),
	})
}

// Count returns the number of recorded events.
func (m *MemoryTrace) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Events returns a copy of the recorded events in emission order.
func (m *MemoryTrace) Events() []core.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.TraceEvent(nil), m.events...)
}

// Names returns the event names in emission order.
func (m *MemoryTrace) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.events))
	for i, e := range m.events {
		names[i] = e.Event
	}
	return names
}

// Filter returns events with the given name.
func (m *MemoryTrace) Filter(event string) []core.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.TraceEvent
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (m *MemoryTrace) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// LogTrace forwards events to a structured logger.
type LogTrace struct {
	logger *logging.Logger
}

// NewLogTrace creates a sink writing through logger.
func NewLogTrace(logger *logging.Logger) *LogTrace {
	return &LogTrace{logger: logger}
}

func (l *LogTrace) Info(event string, data map[string]any) {
	l.logger.Info(event, flatten(data)...)
}

func (l *LogTrace) Warn(event string, data map[string]any) {
	l.logger.Warn(event, flatten(data)...)
}

func (l *LogTrace) Error(event string, data map[string]any) {
	l.logger.Error(event, flatten(data)...)
}

func flatten(data map[string]any) []any {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(data)*2)
	for _, k := range keys {
		args = append(args, k, data[k])
	}
	return args
}

// MultiTrace fans every event out to several sinks.
type MultiTrace []core.TraceSink

func (m MultiTrace) Info(event string, data map[string]any) {
	for _, s := range m {
		s.Info(event, data)
	}
}

func (m MultiTrace) Warn(event string, data map[string]any) {
	for _, s := range m {
		s.Warn(event, data)
	}
}

func (m MultiTrace) Error(event string, data map[string]any) {
	for _, s := range m {
		s.Error(event, data)
	}
}

// NopTrace discards every event.
type NopTrace struct{}

func (NopTrace) Info(string, map[string]any)  {}
func (NopTrace) Warn(string, map[string]any)  {}
func (NopTrace) Error(string, map[string]any) {}

// TraceConfig configures file traces.
type TraceConfig struct {
	Mode           string
	Dir            string
	Redact         bool
	RedactPatterns []string
	MaxBytes       int64
}

// TraceRunSummary captures end-of-run stats of a file trace.
type TraceRunSummary struct {
	RunID       string    `json:"run_id"`
	Goal        string    `json:"goal,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	TotalEvents int       `json:"total_events"`
	ErrorEvents int       `json:"error_events"`
	Dir         string    `json:"dir"`
}

type traceRecord struct {
	Seq       int             `json:"seq"`
	Timestamp string          `json:"ts"`
	Level     core.TraceLevel `json:"level"`
	Event     string          `json:"event"`
	Data      map[string]any  `json:"data,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

// FileTrace appends events as JSON lines to <dir>/<run-id>/trace.jsonl and
// keeps a run.json manifest next to it. A write failure disables the trace
// after a single warning; it never reaches the orchestrator.
type FileTrace struct {
	cfg    TraceConfig
	logger *logging.Logger

	mu        sync.Mutex
	enabled   bool
	warned    bool
	seq       int
	dir       string
	jsonlPath string
	summary   TraceRunSummary
	redactors []*regexp.Regexp
}

// NewTraceSink returns a FileTrace when mode is "file", otherwise nil.
// Callers combine the result with other sinks.
func NewTraceSink(cfg TraceConfig, logger *logging.Logger) *FileTrace {
	mode := strings.TrimSpace(cfg.Mode)
	if mode != "file" {
		return nil
	}
	return NewFileTrace(cfg, logger)
}

// NewFileTrace creates a file trace. StartRun must be called before events arrive.
func NewFileTrace(cfg TraceConfig, logger *logging.Logger) *FileTrace {
	if cfg.Dir == "" {
		cfg.Dir = ".taskgraph/traces"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 65536
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &FileTrace{cfg: cfg, logger: logger}
	if cfg.Redact {
		patterns := cfg.RedactPatterns
		if len(patterns) == 0 {
			patterns = defaultRedactPatterns()
		}
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				logger.Warn("invalid redact pattern", "pattern", p, "error", err)
				continue
			}
			t.redactors = append(t.redactors, re)
		}
	}
	return t
}

// StartRun creates the run directory and the initial manifest.
func (t *FileTrace) StartRun(runID, goal string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	runID = sanitizeTraceID(runID)
	if runID == "" {
		runID = fmt.Sprintf("run-%d", time.Now().Unix())
	}
	t.dir = filepath.Join(t.cfg.Dir, runID)
	t.jsonlPath = filepath.Join(t.dir, "trace.jsonl")
	t.summary = TraceRunSummary{
		RunID:     runID,
		Goal:      goal,
		StartedAt: time.Now().UTC(),
		Dir:       t.dir,
	}
	t.enabled = true

	if err := os.MkdirAll(t.dir, 0o750); err != nil {
		t.disableWithWarning(fmt.Errorf("creating trace dir: %w", err))
		return err
	}
	if err := t.writeManifest(); err != nil {
		t.disableWithWarning(fmt.Errorf("writing trace manifest: %w", err))
		return err
	}
	return nil
}

// EndRun finalizes the manifest and returns the summary.
func (t *FileTrace) EndRun() TraceRunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.EndedAt = time.Now().UTC()
	if t.enabled {
		if err := t.writeManifest(); err != nil {
			t.disableWithWarning(fmt.Errorf("updating trace manifest: %w", err))
		}
	}
	return t.summary
}

// Dir returns the run directory, empty before StartRun.
func (t *FileTrace) Dir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir
}

func (t *FileTrace) Info(event string, data map[string]any) {
	t.record(core.TraceInfo, event, data)
}

func (t *FileTrace) Warn(event string, data map[string]any) {
	t.record(core.TraceWarn, event, data)
}

func (t *FileTrace) Error(event string, data map[string]any) {
	t.record(core.TraceError, event, data)
}

func (t *FileTrace) record(level core.TraceLevel, event string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	t.seq++
	t.summary.TotalEvents++
	if level == core.TraceError {
		t.summary.ErrorEvents++
	}

	rec := traceRecord{
		Seq:       t.seq,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Data:      data,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		// Unserializable payloads are replaced by the marshal error.
		rec.Data = map[string]any{"marshal_error": err.Error()}
		line, _ = json.Marshal(rec)
	}
	line = t.redact(line)
	if int64(len(line)) > t.cfg.MaxBytes {
		rec.Data = nil
		rec.Truncated = true
		line, _ = json.Marshal(rec)
	}
	line = append(line, '\n')

	if err := t.appendLine(line); err != nil {
		t.disableWithWarning(fmt.Errorf("writing trace record: %w", err))
	}
}

func (t *FileTrace) appendLine(line []byte) error {
	file, err := os.OpenFile(t.jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err = file.Write(line); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (t *FileTrace) redact(line []byte) []byte {
	if len(t.redactors) == 0 {
		return line
	}
	text := string(line)
	for _, re := range t.redactors {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return []byte(text)
}

func (t *FileTrace) writeManifest() error {
	data, err := json.MarshalIndent(t.summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.dir, "run.json"), data, 0o600)
}

func (t *FileTrace) disableWithWarning(err error) {
	if !t.enabled {
		return
	}
	t.enabled = false
	if t.warned {
		return
	}
	t.warned = true
	t.logger.Warn("trace disabled", "error", err)
}

func defaultRedactPatterns() []string {
	return []string{
		`(?i)authorization\s*:\s*bearer\s+[A-Za-z0-9._\-]+`,
		`(?i)\b(api[_-]?key|access[_-]?token|refresh[_-]?token|secret)\b\s*[:=]\s*[^\s"']+`,
		`\bsk-[A-Za-z0-9]{16,}\b`,
		`\bgh[pousr]_[A-Za-z0-9]{36,}\b`,
	}
}

func sanitizeTraceID(input string) string {
	var b strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
