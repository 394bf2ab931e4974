package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRecord(id string, offset time.Duration, success bool) *core.RunRecord {
	state := core.RunStateCompleted
	errMsg := ""
	if !success {
		state = core.RunStateFailed
		errMsg = "tool for node \"B\" failed"
	}
	return &core.RunRecord{
		RunID:      id,
		Goal:       "research T",
		State:      state,
		Success:    success,
		Result:     "OUT:done",
		OutputNode: "D",
		Error:      errMsg,
		StartedAt:  base.Add(offset),
		EndedAt:    base.Add(offset + 150*time.Millisecond),
		Waves:      [][]core.NodeID{{"A"}, {"B", "C"}, {"D"}},
		Metrics: map[core.NodeID]core.NodeMetrics{
			"A": {NodeID: "A", Kind: "answer", Wave: 0, DurationMS: 5, Status: core.NodeStatusOK},
		},
		Channels: map[core.NodeID]string{"A": "OUT:A on T"},
		Events: []core.TraceEvent{
			{Event: core.EventRunStart, Level: core.TraceInfo, Time: base},
		},
	}
}

type storeFactory func(t *testing.T) core.RunStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) core.RunStore {
			s, err := NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"json": func(t *testing.T) core.RunStore {
			s, err := NewJSONRunStore(filepath.Join(t.TempDir(), "runs"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRunStore_SaveGet(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			rec := newRecord("run-1", 0, true)
			require.NoError(t, store.Save(ctx, rec))

			got, err := store.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, rec.RunID, got.RunID)
			assert.Equal(t, rec.Result, got.Result)
			assert.Equal(t, rec.Waves, got.Waves)
			assert.Equal(t, rec.Channels, got.Channels)
			assert.Equal(t, core.NodeStatusOK, got.Metrics["A"].Status)
			assert.True(t, rec.StartedAt.Equal(got.StartedAt))
			assert.Equal(t, int64(150), got.DurationMS())
			require.Len(t, got.Events, 1)
			assert.Equal(t, core.EventRunStart, got.Events[0].Event)
		})
	}
}

func TestRunStore_SaveReplaces(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, newRecord("run-1", 0, true)))
			updated := newRecord("run-1", 0, false)
			require.NoError(t, store.Save(ctx, updated))

			got, err := store.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.False(t, got.Success)
			assert.Equal(t, core.RunStateFailed, got.State)

			all, err := store.List(ctx, core.RunFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestRunStore_GetMissing(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.Get(context.Background(), "nope")
			assert.True(t, errors.Is(err, core.ErrRunNotFound), "got %v", err)
		})
	}
}

func TestRunStore_ListOrderAndFilter(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, newRecord("old", 0, true)))
			require.NoError(t, store.Save(ctx, newRecord("mid", time.Minute, false)))
			require.NoError(t, store.Save(ctx, newRecord("new", 2*time.Minute, true)))

			all, err := store.List(ctx, core.RunFilter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"new", "mid", "old"}, ids(all))

			limited, err := store.List(ctx, core.RunFilter{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"new", "mid"}, ids(limited))

			failed, err := store.List(ctx, core.RunFilter{State: core.RunStateFailed})
			require.NoError(t, err)
			assert.Equal(t, []string{"mid"}, ids(failed))
		})
	}
}

func TestRunStore_Delete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, newRecord("run-1", 0, true)))
			require.NoError(t, store.Delete(ctx, "run-1"))

			_, err := store.Get(ctx, "run-1")
			assert.ErrorIs(t, err, core.ErrRunNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "run-1"), core.ErrRunNotFound)
		})
	}
}

func TestRunStore_RejectsInvalidIDs(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			for _, id := range []string{"", "..", "a/b", `a\b`} {
				err := store.Save(ctx, newRecord(id, 0, true))
				assert.True(t, core.IsCategory(err, core.ErrCatValidation), "id %q: %v", id, err)
			}
			assert.True(t, core.IsCategory(store.Save(ctx, nil), core.ErrCatValidation))
		})
	}
}

func TestRunStore_ConcurrentSaves(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					errs <- store.Save(ctx, newRecord(fmt.Sprintf("run-%02d", n), time.Duration(n)*time.Second, true))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			all, err := store.List(ctx, core.RunFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 20)
			assert.Equal(t, "run-19", all[0].RunID)
		})
	}
}

func TestSQLiteRunStore_ReopenKeepsDataAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s1, err := NewSQLiteRunStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, newRecord("persisted", 0, true)))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteRunStore(path)
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	got, err := s2.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "OUT:done", got.Result)
}

func TestSplitStatements(t *testing.T) {
	script := "-- header\nCREATE TABLE a (x INT);\n\n-- next\nCREATE INDEX i ON a(x);\n"
	got := splitStatements(script)
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, got)
}

func TestNewRunStore(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		wantType string
		wantErr  bool
	}{
		{name: "empty defaults to sqlite", backend: "", wantType: "*state.SQLiteRunStore"},
		{name: "sqlite", backend: "SQLite", wantType: "*state.SQLiteRunStore"},
		{name: "json", backend: "json", wantType: "*state.JSONRunStore"},
		{name: "unsupported", backend: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewRunStore(tt.backend, filepath.Join(t.TempDir(), "runs.db"))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported store backend")
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.Equal(t, tt.wantType, fmt.Sprintf("%T", store))
		})
	}
}

func ids(records []*core.RunRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.RunID
	}
	return out
}
