package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/api"
	"github.com/hugo-lorenzo-mato/taskgraph/internal/diagnostics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the taskgraph HTTP API.

Examples:
  # Start with the configured address (default 127.0.0.1:8080)
  taskgraph serve

  # Listen on all interfaces and allow a browser frontend
  taskgraph serve --addr 0.0.0.0:3000 --cors-origin http://localhost:5173`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr        string
	serveCORSOrigins []string
	serveMaxParallel int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().StringSliceVar(&serveCORSOrigins, "cors-origin", nil, "Allowed CORS origin (repeatable, overrides config)")
	serveCmd.Flags().IntVar(&serveMaxParallel, "max-parallel", 0, "Max nodes running at once per wave (0 uses config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	deps, err := InitDeps(cmd, serveMaxParallel)
	if err != nil {
		return err
	}
	defer deps.Close()

	store, err := deps.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	addr := deps.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	origins := deps.Config.Server.CORSOrigins
	if len(serveCORSOrigins) > 0 {
		origins = serveCORSOrigins
	}

	server := api.NewServer(deps.Orchestrator, deps.Registry, store,
		api.WithLogger(deps.Logger),
		api.WithCORSOrigins(origins),
		api.WithTraceConfig(deps.TraceConfig()),
		api.WithDefaultKind(deps.Config.Orchestrator.DefaultKind),
		api.WithSystemCollector(diagnostics.NewCollector(storeDir(deps.Config.Store.Path))),
	)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	return server.ListenAndServe(ctx, addr)
}

// storeDir returns the nearest existing directory of the store path, so disk
// usage is reported for the filesystem holding the history.
func storeDir(path string) string {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
