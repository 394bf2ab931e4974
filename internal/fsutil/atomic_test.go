package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

func TestAtomicWrite_BasicOperation(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "result.txt")

	content := []byte("orchestrator:\n  max_parallel: 4\n")
	if err := AtomicWrite(target, content); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", string(data), string(content))
	}

	files, _ := filepath.Glob(filepath.Join(tmpDir, ".*"))
	if len(files) != 0 {
		t.Fatalf("expected no temp files, found %d", len(files))
	}
}

func TestAtomicWrite_OverwriteExisting(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "result.txt")

	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	newContent := []byte("updated")
	if err := AtomicWrite(target, newContent); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != string(newContent) {
		t.Fatalf("content mismatch: got %q, want %q", string(data), string(newContent))
	}
}

func TestAtomicWrite_PreservesPermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows - Unix permissions not supported")
	}

	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "result.txt")

	if err := os.WriteFile(target, []byte("original"), 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	if err := AtomicWrite(target, []byte("updated")); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if info.Mode().Perm() != os.FileMode(0o600) {
		t.Fatalf("expected perms 0600, got %v", info.Mode().Perm())
	}
}

func TestAtomicWrite_ConcurrentWrites(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "result.txt")

	if err := os.WriteFile(target, []byte("initial"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			content := []byte(fmt.Sprintf("content from goroutine %d", n))
			_ = AtomicWrite(target, content)
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), "content from goroutine") {
		t.Fatalf("expected content from goroutine, got %q", string(data))
	}
}

func TestAtomicWrite_CreatesParentDirs(t *testing.T) {
	t.Parallel()
	target := filepath.Join(t.TempDir(), "runs", "out", "result.txt")

	if err := AtomicWrite(target, []byte("OUT:done")); err != nil {
		t.Fatalf("AtomicWrite error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "OUT:done" {
		t.Fatalf("content mismatch: %q", data)
	}
}
