package core

import (
	"context"
	"sort"
)

// ToolArgs is what a tool receives for one node invocation.
type ToolArgs struct {
	// Query is the node prompt after substitution. Prompt carries the same text
	// for tools that name it differently.
	Query  string
	Prompt string
	NodeID NodeID
	Kind   string
	Label  string
	// Args holds node-specific arguments from the graph description.
	Args map[string]any
	// Data is opaque caller context, forwarded untouched.
	Data any
}

// Tool performs the work of a node.
type Tool interface {
	Invoke(ctx context.Context, args ToolArgs) (string, error)
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc func(ctx context.Context, args ToolArgs) (string, error)

// Invoke calls f.
func (f ToolFunc) Invoke(ctx context.Context, args ToolArgs) (string, error) {
	return f(ctx, args)
}

// ToolLookup resolves a node kind to a tool. The orchestrator never builds one
// itself; the host application supplies it.
type ToolLookup interface {
	Lookup(kind string) (Tool, bool)
}

// ToolMap is the simplest ToolLookup: a plain kind to tool map.
type ToolMap map[string]Tool

// Lookup implements ToolLookup.
func (m ToolMap) Lookup(kind string) (Tool, bool) {
	t, ok := m[kind]
	return t, ok
}

// Kinds returns the registered kinds in sorted order.
func (m ToolMap) Kinds() []string {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
