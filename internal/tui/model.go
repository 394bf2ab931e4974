package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// NodeState is the display state of a node.
type NodeState int

const (
	NodePending NodeState = iota
	NodeRunning
	NodeDone
	NodeFailed
	NodeSkipped
)

// NodeView is the display state of one node.
type NodeView struct {
	ID        core.NodeID
	Kind      string
	Label     string
	State     NodeState
	ElapsedMS int64
	Error     string
}

// TraceMsg carries one lifecycle event from the orchestrator.
type TraceMsg struct {
	Level core.TraceLevel
	Event string
	Data  map[string]any
}

// DoneMsg signals the end of the run and stops the program.
type DoneMsg struct {
	Result *core.ExecutionResult
	Err    error
}

// Model renders the waves of one run while it executes.
type Model struct {
	goal    string
	waves   [][]core.NodeID
	nodes   map[core.NodeID]*NodeView
	settled int
	spinner spinner.Model
	bar     progress.Model
	state   core.RunState
	result  *core.ExecutionResult
	err     error
}

// NewModel creates a model for a planned run. nodes must hold every id in waves.
func NewModel(goal string, waves [][]core.NodeID, nodes map[core.NodeID]core.Node) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle

	views := make(map[core.NodeID]*NodeView, len(nodes))
	for _, wave := range waves {
		for _, id := range wave {
			n := nodes[id]
			views[id] = &NodeView{ID: id, Kind: n.Kind, Label: n.Label}
		}
	}

	return Model{
		goal:    goal,
		waves:   waves,
		nodes:   views,
		state:   core.RunStatePending,
		spinner: sp,
		bar: progress.New(
			progress.WithScaledGradient(string(ColorPrimary), string(ColorSecondary)),
			progress.WithWidth(40),
		),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TraceMsg:
		m.apply(msg)
		return m, nil

	case DoneMsg:
		m.result = msg.Result
		m.err = msg.Err
		m.state = core.RunStateFailed
		if msg.Err == nil && msg.Result != nil && msg.Result.Success {
			m.state = core.RunStateCompleted
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.Done() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(msg TraceMsg) {
	if msg.Event == core.EventRunStart {
		m.state = core.RunStateRunning
		return
	}

	id := core.NodeID(stringField(msg.Data, "nodeId"))
	node, ok := m.nodes[id]
	if !ok {
		return
	}

	switch msg.Event {
	case core.EventNodeStart:
		node.State = NodeRunning
	case core.EventNodeEnd:
		node.State = NodeDone
		node.ElapsedMS = int64Field(msg.Data, "elapsedMs")
		m.settled++
	case core.EventNodeError:
		node.State = NodeFailed
		node.ElapsedMS = int64Field(msg.Data, "elapsedMs")
		node.Error = stringField(msg.Data, "error")
		m.settled++
	case core.EventNodeSkip:
		node.State = NodeSkipped
		m.settled++
	}
}

// Node returns the display state of a node.
func (m Model) Node(id core.NodeID) (NodeView, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return *n, true
}

// State returns the run state as seen through trace events.
func (m Model) State() core.RunState {
	return m.state
}

// Done reports whether the run finished.
func (m Model) Done() bool {
	return m.state.IsTerminal()
}

// Progress returns the share of settled nodes in [0, 1].
func (m Model) Progress() float64 {
	if len(m.nodes) == 0 {
		return 1
	}
	return float64(m.settled) / float64(len(m.nodes))
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	var title string
	switch m.state {
	case core.RunStatePending:
		title = "Planned"
	case core.RunStateCompleted:
		title = "Completed"
	case core.RunStateFailed:
		title = "Failed"
	default:
		title = "Running"
	}
	if m.goal != "" {
		title += ": " + m.goal
	}
	b.WriteString(HeaderStyle.Render(title))
	b.WriteString("\n")

	for i, wave := range m.waves {
		b.WriteString(WaveStyle.Render(fmt.Sprintf("wave %d", i)))
		b.WriteString("\n")
		for _, id := range wave {
			b.WriteString("  ")
			b.WriteString(m.renderNode(m.nodes[id]))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.Progress()))
	b.WriteString(fmt.Sprintf(" %d/%d\n", m.settled, len(m.nodes)))
	return b.String()
}

func (m Model) renderNode(n *NodeView) string {
	name := string(n.ID)
	if n.Label != "" && n.Label != name {
		name += " (" + n.Label + ")"
	}
	line := fmt.Sprintf("%s %s", name, PendingStyle.Render(n.Kind))

	switch n.State {
	case NodeRunning:
		return m.spinner.View() + " " + RunningStyle.Render(line)
	case NodeDone:
		return CompletedStyle.Render("✓ "+line) + PendingStyle.Render(fmt.Sprintf(" %dms", n.ElapsedMS))
	case NodeFailed:
		return FailedStyle.Render("✗ "+line) + " " + n.Error
	case NodeSkipped:
		return SkippedStyle.Render("- " + line + " skipped")
	default:
		return PendingStyle.Render("· " + line)
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
