package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/clip"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/fsutil"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/service"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <spec-file>",
	Short: "Execute a task spec",
	Long: `Execute a task described by a YAML or JSON spec file.

A spec either names a single tool call:

  goal: summarize the release notes
  type: answer

or a graph whose nodes run wave by wave:

  goal: research Go
  input:
    topic: Go
  graph:
    nodes:
      - {id: A, kind: answer, prompt: "facts about {{topic}}"}
      - {id: B, kind: upper, prompt: "{{channel:A.last}}"}
    edges:
      - {from: A, to: B}

The result of the output node is printed on stdout. The run is recorded in
the run history unless --no-store is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runJSON        bool
	runOutput      string
	runCopy        bool
	runRender      bool
	runWatch       bool
	runInputs      []string
	runOutputNode  string
	runMaxParallel int
	runNoStore     bool
	runProgress    bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full execution result as JSON")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Also write the result to this file")
	runCmd.Flags().BoolVar(&runCopy, "copy", false, "Copy the result to the clipboard")
	runCmd.Flags().BoolVar(&runRender, "render", false, "Render the result as markdown")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Re-run whenever the spec file changes")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Set a prompt input (key=value, repeatable)")
	runCmd.Flags().StringVar(&runOutputNode, "output-node", "", "Node whose output becomes the result")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Max nodes running at once per wave (0 uses config)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not record the run in the history")
	runCmd.Flags().BoolVar(&runProgress, "progress", false, "Show live wave progress on stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	deps, err := InitDeps(cmd, runMaxParallel)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	path := args[0]
	if runWatch {
		return watchSpec(ctx, path, deps.Logger, func() error {
			_, err := executeSpec(ctx, cmd, deps, path)
			return err
		})
	}

	_, err = executeSpec(ctx, cmd, deps, path)
	return err
}

// executeSpec loads, runs and reports one spec file. A run whose nodes failed
// is still recorded and reported before the error is returned.
func executeSpec(ctx context.Context, cmd *cobra.Command, deps *Deps, path string) (*core.ExecutionResult, error) {
	spec, err := loadSpec(path, runInputs, runOutputNode, deps.Config.Orchestrator.DefaultKind)
	if err != nil {
		return nil, err
	}
	task, err := spec.Resolve()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	memory := service.NewMemoryTrace()
	sinks := service.MultiTrace{memory}
	if strings.EqualFold(deps.Config.Log.Level, "debug") {
		sinks = append(sinks, service.NewLogTrace(deps.Logger))
	}
	if ft := service.NewTraceSink(deps.TraceConfig(), deps.Logger); ft != nil {
		// StartRun failures disable the trace and are already logged.
		_ = ft.StartRun(runID, task.TaskGoal())
		defer ft.EndRun()
		sinks = append(sinks, ft)
	}

	runCtx, cancel := deps.RunContext(ctx)
	defer cancel()

	orchestrate := func(sink core.TraceSink) (*core.ExecutionResult, error) {
		return deps.Orchestrator.Orchestrate(runCtx, service.Request{
			RunID: runID,
			Task:  task,
			Tools: deps.Registry,
			Trace: append(sinks, sink),
		})
	}

	var result *core.ExecutionResult
	if runProgress && !quiet {
		plan, _, err := deps.Orchestrator.Plan(task)
		if err != nil {
			return nil, err
		}
		model := tui.NewModel(task.TaskGoal(), plan.Order, plan.Nodes)
		result, err = tui.RunWithProgress(runCtx, cmd.ErrOrStderr(), model, orchestrate)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = orchestrate(service.NopTrace{})
		if err != nil {
			return nil, err
		}
	}

	if !runNoStore {
		recordRun(ctx, deps, core.NewRunRecord(result, task.TaskGoal(), &spec, memory.Events()))
	}

	if err := reportResult(cmd, result); err != nil {
		return result, err
	}
	if !result.Success {
		return result, fmt.Errorf("run %s failed: %s", result.RunID, result.Error)
	}
	return result, nil
}

// recordRun saves a run to the history. Storage problems are logged, never
// turned into a failed run.
func recordRun(ctx context.Context, deps *Deps, record *core.RunRecord) {
	store, err := deps.OpenStore()
	if err != nil {
		deps.Logger.Warn("run not recorded", "run_id", record.RunID, "error", err)
		return
	}
	defer store.Close()

	if err := store.Save(ctx, record); err != nil {
		deps.Logger.Warn("run not recorded", "run_id", record.RunID, "error", err)
	}
}

func reportResult(cmd *cobra.Command, result *core.ExecutionResult) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if runJSON {
		if err := outputJSON(out, result); err != nil {
			return err
		}
	} else if result.Success {
		text := result.Result
		if runRender {
			rendered, err := renderMarkdown(text)
			if err != nil {
				return err
			}
			text = rendered
		}
		fmt.Fprintln(out, text)
	}

	if !quiet {
		printRunStatus(errOut, result)
	}

	if !result.Success {
		return nil
	}
	if runOutput != "" {
		if err := fsutil.AtomicWrite(runOutput, []byte(result.Result)); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	if runCopy {
		res, err := clip.New().Copy(result.Result)
		if err != nil {
			return err
		}
		if !quiet {
			printCopyResult(errOut, res)
		}
	}
	return nil
}

func printRunStatus(w io.Writer, result *core.ExecutionResult) {
	sum := result.Summary
	summary := dimStyle().Render(fmt.Sprintf("(%d waves, %d nodes, %s)",
		sum.Waves, sum.Nodes, formatDuration(result.Duration())))

	if result.Success {
		fmt.Fprintf(w, "%s run %s %s\n", successStyle().Render("✓"), result.RunID, summary)
		return
	}

	fmt.Fprintf(w, "%s run %s failed %s\n", errorStyle().Render("✗"), result.RunID, summary)
	for _, id := range result.FailedNodes() {
		fmt.Fprintf(w, "  %s %s\n", errorStyle().Render(string(id)), result.Metrics[id].Error)
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "  %s\n", warnStyle().Render(fmt.Sprintf("%d node(s) skipped", sum.Skipped)))
	}
}

func printCopyResult(w io.Writer, res clip.Result) {
	switch res.Method {
	case clip.MethodFile:
		fmt.Fprintf(w, "%s result saved to %s\n", warnStyle().Render("!"), res.FilePath)
	default:
		fmt.Fprintf(w, "%s result copied (%s)\n", successStyle().Render("✓"), res.Method)
	}
}
