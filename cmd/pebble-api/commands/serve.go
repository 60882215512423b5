package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-api/cmd/pebble-api/output"
	"github.com/marshallshelly/pebble-api/cmd/pebble-api/tui"
	"github.com/marshallshelly/pebble-api/pkg/logging"
	"github.com/marshallshelly/pebble-api/pkg/server"
)

var (
	// Serve flags
	listenAddr string
	monitor    bool
)

// serveCmd starts the API server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Connect the configured datasources and serve the generated API.

Examples:
  pebble-api serve -c api.yaml                # Serve until SIGINT/SIGTERM
  pebble-api serve --addr 0.0.0.0:9000        # Override the listen address
  pebble-api serve --tui                      # Start, stop and watch the server interactively`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides server_config host and port)")
	serveCmd.Flags().BoolVar(&monitor, "tui", false, "Run the interactive monitor")
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	buf := logging.NewBuffer(200)
	log, err := newLogger(cfg, buf, monitor)
	if err != nil {
		return err
	}
	defer log.Close()

	mgr := server.NewManager(cfg, server.ManagerOptions{
		Addr:   listenAddr,
		State:  server.NewState(buf),
		Logger: log,
	})

	if monitor {
		return tui.RunMonitor(mgr)
	}

	if !jsonOutput {
		output.Info("Serving %d entities, press Ctrl+C to stop", len(cfg.Entities))
	}
	return mgr.Run(ctx)
}
