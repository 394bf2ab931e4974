package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/config"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/fsutil"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write .taskgraph.yaml with every setting at its default value into the
current directory and create the .taskgraph state directory.`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".taskgraph.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	if err := fsutil.AtomicWrite(configPath, []byte(config.DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cwd, ".taskgraph"), 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle().Render("created"), configPath)
	}
	return nil
}
