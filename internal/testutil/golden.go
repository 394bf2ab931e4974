package testutil

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

var update = flag.Bool("update", false, "rewrite golden files with the current output")

// Golden compares test output with files under a testdata directory.
type Golden struct {
	t   *testing.T
	dir string
}

// NewGolden returns a helper reading <dir>/<name>.golden. An empty dir means
// "testdata".
func NewGolden(t *testing.T, dir string) *Golden {
	if dir == "" {
		dir = "testdata"
	}
	return &Golden{t: t, dir: dir}
}

// Path returns the golden file path for name.
func (g *Golden) Path(name string) string {
	return filepath.Join(g.dir, name+".golden")
}

// AssertString fails the test when actual differs from the golden file.
// Both sides are normalized first. Run with -update to rewrite the file.
func (g *Golden) AssertString(name, actual string) {
	g.t.Helper()
	path := g.Path(name)
	actual = Normalize(actual)

	if *update {
		if err := os.MkdirAll(g.dir, 0o750); err != nil {
			g.t.Fatalf("creating %s: %v", g.dir, err)
		}
		if err := os.WriteFile(path, []byte(actual+"\n"), 0o600); err != nil {
			g.t.Fatalf("writing %s: %v", path, err)
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", path, err)
	}
	if expected := Normalize(string(want)); expected != actual {
		g.t.Errorf("%s mismatch:\n--- want ---\n%s\n--- got ---\n%s", name, expected, actual)
	}
}

// AssertTrace compares a trace event stream with a golden file, one line per
// event as rendered by FormatTrace.
func (g *Golden) AssertTrace(name string, events []core.TraceEvent) {
	g.t.Helper()
	g.AssertString(name, FormatTrace(events))
}

// volatileKeys vary between runs of the same graph.
var volatileKeys = map[string]bool{
	"elapsedMs": true,
}

// FormatTrace renders events as "<level> <event> k=v ..." lines with keys
// sorted and timing fields left out.
func FormatTrace(events []core.TraceEvent) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(string(e.Level))
		b.WriteByte(' ')
		b.WriteString(e.Event)

		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			if !volatileKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Normalize converts CRLF to LF and drops trailing blanks on every line and
// at the end.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}[^\s]*|\b\d{2}:\d{2}:\d{2}\b`)
	durationRe  = regexp.MustCompile(`\b(?:\d+(?:\.\d+)?(?:ns|us|µs|ms|h|m|s))+\b`)
	uuidRe      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// ScrubTimestamps replaces RFC 3339, "date time" and clock timestamps.
func ScrubTimestamps(s string) string {
	return timestampRe.ReplaceAllString(s, "[TIMESTAMP]")
}

// ScrubDurations replaces Go-style durations such as "150ms" or "1.2s".
func ScrubDurations(s string) string {
	return durationRe.ReplaceAllString(s, "[DURATION]")
}

// ScrubUUIDs replaces run ids.
func ScrubUUIDs(s string) string {
	return uuidRe.ReplaceAllString(s, "[UUID]")
}

// ScrubPaths replaces basePath with [WORKDIR].
func ScrubPaths(s, basePath string) string {
	if basePath == "" {
		return s
	}
	return strings.ReplaceAll(s, basePath, "[WORKDIR]")
}

// ScrubRun makes CLI or trace output of a run comparable across runs.
func ScrubRun(s, basePath string) string {
	s = ScrubPaths(s, basePath)
	s = ScrubUUIDs(s)
	s = ScrubTimestamps(s)
	s = ScrubDurations(s)
	return Normalize(s)
}
