package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const diamondYAML = `goal: research T
input:
  topic: T
graph:
  nodes:
    - {id: A, kind: answer, prompt: "A on {{topic}}"}
    - {id: B, kind: answer, prompt: "B sees {{channel:A.last}}"}
    - {id: C, kind: answer, prompt: "C sees {{channel:A.last}}"}
    - {id: D, kind: answer, prompt: "Combine {{channel:B.last}} + {{channel:C.last}}"}
  edges:
    - {from: A, to: B}
    - {from: A, to: C}
    - {from: B, to: D}
    - {from: C, to: D}
`

const diamondResult = "OUT:Combine OUT:B sees OUT:A on T + OUT:C sees OUT:A on T"

// testEnv is a scratch directory with a config file pointing every path
// into it.
type testEnv struct {
	dir    string
	config string
}

func newTestEnv(t *testing.T, extraConfig string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := "log:\n  level: error\n  format: json\n" +
		"store:\n  backend: sqlite\n  path: " + filepath.Join(dir, "runs.db") + "\n" +
		extraConfig
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &testEnv{dir: dir, config: path}
}

func (e *testEnv) writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the root command with --config pointing at the env.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeCommand(t, context.Background(), append([]string{"--config", e.config}, args...)...)
}

func executeCommand(t *testing.T, ctx context.Context, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetCommandState()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// resetCommandState restores flag defaults and viper between invocations;
// both are package globals shared by every test.
func resetCommandState() {
	resetFlags(rootCmd)
	viper.Reset()
	bindFlags()
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
