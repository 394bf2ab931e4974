// Package tools provides the tool registry handed to the orchestrator, the
// built-in deterministic tools and caller-side decorators for retries and
// rate limiting.
package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// Registry maps node kinds to tools. It is safe for concurrent use and
// satisfies core.ToolLookup.
type Registry struct {
	tools map[string]core.Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]core.Tool),
	}
}

// Register adds a tool under kind. Registering a kind twice is an error.
func (r *Registry) Register(kind string, tool core.Tool) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("registering tool: empty kind")
	}
	if tool == nil {
		return fmt.Errorf("registering tool %q: nil tool", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[kind]; exists {
		return fmt.Errorf("tool %q already registered", kind)
	}
	r.tools[kind] = tool
	return nil
}

// Get returns the tool for kind or a TOOL_NOT_FOUND error.
func (r *Registry) Get(kind string) (core.Tool, error) {
	t, ok := r.Lookup(kind)
	if !ok {
		return nil, core.ErrMissingTool(kind)
	}
	return t, nil
}

// Lookup implements core.ToolLookup.
func (r *Registry) Lookup(kind string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[kind]
	return t, ok
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	_, ok := r.Lookup(kind)
	return ok
}

// Kinds returns registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.tools))
	for k := range r.tools {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Suggest returns up to max registered kinds that fuzzy-match kind, best
// match first.
func (r *Registry) Suggest(kind string, max int) []string {
	if kind == "" || max <= 0 {
		return nil
	}

	matches := fuzzy.Find(kind, r.Kinds())
	result := make([]string, 0, max)
	for _, match := range matches {
		if len(result) == max {
			break
		}
		result = append(result, match.Str)
	}
	return result
}

// Missing lists the kinds used by nodes that have no registered tool, in
// node declaration order without duplicates.
func (r *Registry) Missing(nodes []core.Node) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, n := range nodes {
		if seen[n.Kind] || r.Has(n.Kind) {
			continue
		}
		seen[n.Kind] = true
		missing = append(missing, n.Kind)
	}
	return missing
}
