// Package state provides run history persistence backends.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/fsutil"
)

// JSONRunStore implements core.RunStore as one JSON file per run in a directory.
type JSONRunStore struct {
	mu  sync.RWMutex
	dir string
}

// runFileEnvelope wraps a record with a format version.
type runFileEnvelope struct {
	Version int             `json:"version"`
	Run     *core.RunRecord `json:"run"`
}

// NewJSONRunStore creates the store rooted at dir.
func NewJSONRunStore(dir string) (*JSONRunStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}
	return &JSONRunStore{dir: dir}, nil
}

func (s *JSONRunStore) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Save implements core.RunStore.
func (s *JSONRunStore) Save(ctx context.Context, record *core.RunRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	data, err := json.MarshalIndent(runFileEnvelope{Version: 1, Run: record}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", record.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.AtomicWrite(s.runPath(record.RunID), data); err != nil {
		return fmt.Errorf("writing run %s: %w", record.RunID, err)
	}
	return nil
}

// Get implements core.RunStore.
func (s *JSONRunStore) Get(ctx context.Context, runID string) (*core.RunRecord, error) {
	if !validRunID(runID) {
		return nil, core.ErrRunMissing(runID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(s.runPath(runID), runID)
}

func (s *JSONRunStore) load(path, runID string) (*core.RunRecord, error) {
	data, err := fsutil.ReadFileScoped(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrRunMissing(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	var env runFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	if env.Run == nil {
		return nil, fmt.Errorf("decoding run %s: empty envelope", runID)
	}
	return env.Run, nil
}

// List implements core.RunStore. Unreadable files are skipped.
func (s *JSONRunStore) List(ctx context.Context, filter core.RunFilter) ([]*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	var records []*core.RunRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.load(filepath.Join(s.dir, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.After(records[j].StartedAt)
		}
		return records[i].RunID < records[j].RunID
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Delete implements core.RunStore.
func (s *JSONRunStore) Delete(ctx context.Context, runID string) error {
	if !validRunID(runID) {
		return core.ErrRunMissing(runID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.runPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return core.ErrRunMissing(runID)
	}
	return err
}

// Close implements core.RunStore.
func (s *JSONRunStore) Close() error {
	return nil
}
