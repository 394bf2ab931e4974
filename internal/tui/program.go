package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramTrace is a trace sink that forwards events to a bubbletea program.
type ProgramTrace struct {
	sender Sender
}

// NewProgramTrace creates a sink sending to s.
func NewProgramTrace(s Sender) *ProgramTrace {
	return &ProgramTrace{sender: s}
}

func (p *ProgramTrace) Info(event string, data map[string]any) {
	p.sender.Send(TraceMsg{Level: core.TraceInfo, Event: event, Data: data})
}

func (p *ProgramTrace) Warn(event string, data map[string]any) {
	p.sender.Send(TraceMsg{Level: core.TraceWarn, Event: event, Data: data})
}

func (p *ProgramTrace) Error(event string, data map[string]any) {
	p.sender.Send(TraceMsg{Level: core.TraceError, Event: event, Data: data})
}

// RunFunc executes a run, reporting lifecycle events to sink.
type RunFunc func(sink core.TraceSink) (*core.ExecutionResult, error)

// RunWithProgress renders model to out while run executes and returns what
// run returned. Rendering problems never change the outcome of the run.
func RunWithProgress(ctx context.Context, out io.Writer, model Model, run RunFunc) (*core.ExecutionResult, error) {
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	type outcome struct {
		result *core.ExecutionResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := run(NewProgramTrace(p))
		done <- outcome{result: result, err: err}
		p.Send(DoneMsg{Result: result, Err: err})
	}()

	_, _ = p.Run()
	o := <-done
	return o.result, o.err
}
