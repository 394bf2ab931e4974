package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var (
	runsLimit int
	runsState string
	runsJSON  bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)

	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Limit number of runs in list output")
	runsListCmd.Flags().StringVar(&runsState, "state", "", "Only list runs in this state (completed, failed)")
	runsListCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	runsShowCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
}

// withStore opens the run store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store core.RunStore) error) error {
	deps, err := InitDeps(cmd, 0)
	if err != nil {
		return err
	}
	defer deps.Close()
	store, err := deps.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, store)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	state := core.RunState(strings.ToLower(strings.TrimSpace(runsState)))
	switch state {
	case "", core.RunStateCompleted, core.RunStateFailed:
	default:
		return fmt.Errorf("invalid state %q (valid: completed, failed)", runsState)
	}

	return withStore(cmd, func(ctx context.Context, store core.RunStore) error {
		records, err := store.List(ctx, core.RunFilter{Limit: runsLimit, State: state})
		if err != nil {
			return err
		}
		if runsJSON {
			if records == nil {
				records = []*core.RunRecord{}
			}
			return outputJSON(cmd.OutOrStdout(), records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
			return nil
		}
		return renderRunList(cmd.OutOrStdout(), records)
	})
}

func renderRunList(out io.Writer, records []*core.RunRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATE\tSTARTED\tDURATION\tGOAL")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RunID,
			r.State,
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(time.Duration(r.DurationMS())*time.Millisecond),
			truncate(r.Goal, 50),
		)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store core.RunStore) error {
		record, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if runsJSON {
			return outputJSON(cmd.OutOrStdout(), record)
		}
		return renderRunDetail(cmd.OutOrStdout(), record)
	})
}

func renderRunDetail(out io.Writer, r *core.RunRecord) error {
	state := successStyle().Render(string(r.State))
	if !r.Success {
		state = errorStyle().Render(string(r.State))
	}

	fmt.Fprintln(out, headerStyle().Render("Run "+r.RunID))
	fmt.Fprintf(out, "  goal:     %s\n", r.Goal)
	fmt.Fprintf(out, "  state:    %s\n", state)
	fmt.Fprintf(out, "  started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "  duration: %s\n", formatDuration(time.Duration(r.DurationMS())*time.Millisecond))
	if r.OutputNode != "" {
		fmt.Fprintf(out, "  output:   %s\n", r.OutputNode)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", r.Error)
	}
	if sum := r.Summary; sum.Nodes > 0 {
		fmt.Fprintf(out, "  nodes:    %d ok, %d failed, %d skipped of %d in %d waves\n",
			sum.Succeeded, sum.Failed, sum.Skipped, sum.Nodes, sum.Waves)
	}

	if len(r.Metrics) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NODE\tKIND\tWAVE\tSTATUS\tDURATION")
		for _, id := range nodeOrder(r) {
			m := r.Metrics[id]
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%dms\n", id, m.Kind, m.Wave, m.Status, m.DurationMS)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(r.Kinds) > 0 {
		fmt.Fprintln(out)
		kinds := make([]string, 0, len(r.Kinds))
		for k := range r.Kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tCALLS\tERRORS\tTOTAL\tAVG")
		for _, k := range kinds {
			km := r.Kinds[k]
			fmt.Fprintf(w, "%s\t%d\t%d\t%dms\t%dms\n", k, km.Invocations, km.Errors, km.TotalMS, km.AvgMS)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if r.Success {
		fmt.Fprintln(out)
		fmt.Fprintln(out, r.Result)
	}
	return nil
}

// nodeOrder lists metric ids in wave order, then any leftovers sorted.
func nodeOrder(r *core.RunRecord) []core.NodeID {
	seen := make(map[core.NodeID]bool, len(r.Metrics))
	var ids []core.NodeID
	for _, wave := range r.Waves {
		for _, id := range wave {
			if _, ok := r.Metrics[id]; ok && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	var rest []core.NodeID
	for id := range r.Metrics {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(ids, rest...)
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, store core.RunStore) error {
		if err := store.Delete(ctx, args[0]); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", successStyle().Render("✓"), args[0])
		}
		return nil
	})
}
