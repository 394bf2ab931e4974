package clip

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	atotto "github.com/atotto/clipboard"
)

func testCopier(t *testing.T) (*Copier, *bytes.Buffer) {
	t.Helper()
	var term bytes.Buffer
	env := map[string]string{}
	return &Copier{
		native:     func(string) error { return errors.New("no clipboard") },
		terminal:   &term,
		isTerminal: func() bool { return false },
		getenv:     func(k string) string { return env[k] },
		tempDir:    t.TempDir(),
	}, &term
}

func TestCopy_Empty(t *testing.T) {
	c, _ := testCopier(t)
	if _, err := c.Copy(""); err == nil {
		t.Fatal("Copy(\"\") should fail")
	}
}

func TestCopy_Native(t *testing.T) {
	if atotto.Unsupported {
		t.Skip("native clipboard unsupported on this host")
	}
	c, _ := testCopier(t)
	var got string
	c.native = func(s string) error { got = s; return nil }

	res, err := c.Copy("OUT:result")
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Method != MethodNative || got != "OUT:result" {
		t.Errorf("Copy() = %+v, copied %q", res, got)
	}
}

func TestCopy_OSC52Fallback(t *testing.T) {
	c, term := testCopier(t)
	c.isTerminal = func() bool { return true }

	res, err := c.Copy("hello")
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Method != MethodOSC52 {
		t.Fatalf("Method = %s, want osc52", res.Method)
	}
	// base64("hello") inside an OSC 52 sequence.
	if !strings.Contains(term.String(), "aGVsbG8=") || !strings.HasPrefix(term.String(), "\x1b]52;") {
		t.Errorf("terminal output = %q", term.String())
	}
}

func TestCopy_OSC52Tmux(t *testing.T) {
	c, term := testCopier(t)
	c.isTerminal = func() bool { return true }
	c.getenv = func(k string) string {
		if k == "TMUX" {
			return "/tmp/tmux-0/default"
		}
		return ""
	}

	if _, err := c.Copy("x"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(term.String(), "\x1bPtmux;") {
		t.Errorf("terminal output = %q, want tmux passthrough", term.String())
	}
}

func TestCopy_FileFallback(t *testing.T) {
	c, _ := testCopier(t)

	res, err := c.Copy("result text")
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Method != MethodFile {
		t.Fatalf("Method = %s, want file", res.Method)
	}
	if !strings.HasPrefix(filepath.Base(res.FilePath), "taskgraph-result-") {
		t.Errorf("FilePath = %s", res.FilePath)
	}
	data, err := os.ReadFile(res.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "result text" {
		t.Errorf("file content = %q", data)
	}
}

func TestCopy_LargeTextSkipsOSC52(t *testing.T) {
	c, term := testCopier(t)
	c.isTerminal = func() bool { return true }

	res, err := c.Copy(strings.Repeat("x", osc52LimitBytes+1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != MethodFile || term.Len() != 0 {
		t.Errorf("Method = %s, terminal bytes = %d", res.Method, term.Len())
	}
}

func TestCopy_AllFail(t *testing.T) {
	c, _ := testCopier(t)
	c.tempDir = filepath.Join(t.TempDir(), "missing", "dir")

	if _, err := c.Copy("x"); err == nil {
		t.Fatal("Copy() should fail when no method works")
	}
}
