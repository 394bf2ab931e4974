package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/logging"
)

func fastWatch(t *testing.T) {
	t.Helper()
	debounce, tick := watchDebounce, watchTick
	watchDebounce, watchTick = 50*time.Millisecond, 10*time.Millisecond
	t.Cleanup(func() { watchDebounce, watchTick = debounce, tick })
}

func TestWatchSpec_RerunsOnChange(t *testing.T) {
	fastWatch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("goal: one\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchSpec(ctx, path, logging.NewNop(), func() error {
			calls.Add(1)
			return errors.New("failures keep the watch alive")
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Changes to other files in the directory are ignored.
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// A burst of writes settles into a single re-run.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("goal: two\n"), 0o600))
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchSpec did not stop after cancel")
	}
}

func TestWatchSpec_MissingDirectory(t *testing.T) {
	err := watchSpec(context.Background(), filepath.Join(t.TempDir(), "nope", "spec.yaml"), logging.NewNop(), func() error {
		return nil
	})
	require.Error(t, err)
}
