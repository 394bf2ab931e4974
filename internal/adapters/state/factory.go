package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// NewRunStore opens the backend named by backend at path. SQLite paths get a
// .db extension; the JSON backend treats path as a directory.
func NewRunStore(backend, path string) (core.RunStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		if filepath.Ext(path) != ".db" {
			path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
		}
		return NewSQLiteRunStore(path)
	case "json":
		return NewJSONRunStore(strings.TrimSuffix(path, filepath.Ext(path)))
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", backend)
	}
}
