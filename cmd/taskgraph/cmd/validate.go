package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate <spec-file>",
	Short: "Check a task spec without running it",
	Long: `Parse a spec file, build its graph and print the execution plan.

Fails on structural problems (unknown node references, cycles, duplicate
ids) and on node types that no registered tool handles. Channel references
to nodes that are not ancestors are reported as warnings: they resolve to
an empty string at run time.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the report as JSON")
}

// ValidationReport describes the plan of a spec and its problems.
type ValidationReport struct {
	Valid        bool                `json:"valid"`
	Goal         string              `json:"goal"`
	Waves        [][]core.NodeID     `json:"waves"`
	OutputNode   core.NodeID         `json:"output_node"`
	MissingTools []MissingTool       `json:"missing_tools,omitempty"`
	DanglingRefs map[string][]string `json:"dangling_refs,omitempty"`
}

// MissingTool is a node type no registered tool handles.
type MissingTool struct {
	Kind        string   `json:"kind"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	deps, err := InitDeps(cmd, 0)
	if err != nil {
		return err
	}
	defer deps.Close()

	spec, err := loadSpec(args[0], nil, "", deps.Config.Orchestrator.DefaultKind)
	if err != nil {
		return err
	}
	task, err := spec.Resolve()
	if err != nil {
		return err
	}
	plan, output, err := deps.Orchestrator.Plan(task)
	if err != nil {
		return err
	}

	report := ValidationReport{
		Goal:       task.TaskGoal(),
		Waves:      plan.Order,
		OutputNode: output,
	}
	for _, kind := range deps.Registry.Missing(task.AsGraph().Graph.Nodes) {
		report.MissingTools = append(report.MissingTools, MissingTool{
			Kind:        kind,
			Suggestions: deps.Registry.Suggest(kind, 3),
		})
	}
	if dangling := plan.DanglingReferences(); len(dangling) > 0 {
		report.DanglingRefs = make(map[string][]string, len(dangling))
		for id, refs := range dangling {
			report.DanglingRefs[string(id)] = idStrings(refs)
		}
	}
	report.Valid = len(report.MissingTools) == 0

	if validateJSON {
		if err := outputJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printValidationReport(cmd.OutOrStdout(), report)
	}

	if !report.Valid {
		return fmt.Errorf("%d node type(s) have no tool", len(report.MissingTools))
	}
	return nil
}

func printValidationReport(w io.Writer, r ValidationReport) {
	fmt.Fprintln(w, headerStyle().Render("Plan"))
	if r.Goal != "" {
		fmt.Fprintf(w, "  goal:   %s\n", r.Goal)
	}
	fmt.Fprintf(w, "  output: %s\n", r.OutputNode)
	for i, wave := range r.Waves {
		fmt.Fprintf(w, "  wave %d: %s\n", i, strings.Join(idStrings(wave), ", "))
	}

	for _, m := range r.MissingTools {
		line := fmt.Sprintf("no tool for type %q", m.Kind)
		if len(m.Suggestions) > 0 {
			line += fmt.Sprintf(" (did you mean %s?)", strings.Join(m.Suggestions, ", "))
		}
		fmt.Fprintf(w, "%s %s\n", errorStyle().Render("✗"), line)
	}

	nodes := make([]string, 0, len(r.DanglingRefs))
	for id := range r.DanglingRefs {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	for _, id := range nodes {
		fmt.Fprintf(w, "%s node %s reads %s, which is not upstream\n",
			warnStyle().Render("!"), id, strings.Join(r.DanglingRefs[id], ", "))
	}

	if r.Valid {
		fmt.Fprintf(w, "%s spec is valid\n", successStyle().Render("✓"))
	}
}

func idStrings(ids []core.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
