package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-api/cmd/pebble-api/output"
	"github.com/marshallshelly/pebble-api/pkg/api/handlers"
	"github.com/marshallshelly/pebble-api/pkg/api/router"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/logging"
)

// routesCmd lists the generated endpoints
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the generated endpoints",
	Long: `List every endpoint key the router would register, per entity.
No datasource is contacted.

Examples:
  pebble-api routes -c api.json
  pebble-api routes --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoutes()
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

// offlineRouter builds a router over in-memory datasources.
func offlineRouter(cfg *config.Config) *router.Router {
	mem := datasource.NewMemory[datasource.Record](cfg.Entities)
	sources := make(map[string]handlers.DataSource, len(cfg.Entities))
	for _, e := range cfg.Entities {
		sources[e.Name] = mem.Duplicate()
	}
	return router.New(cfg, sources, router.Options{Logger: logging.Discard()})
}

func runRoutes() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt := offlineRouter(cfg)

	if jsonOutput {
		out := make(map[string][]string)
		for _, e := range rt.Entities() {
			out[e] = rt.Endpoints(e)
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	prefix := strings.Trim(cfg.APIPrefix, "/")
	if prefix != "" {
		output.Muted("Requests may be prefixed with /%s", prefix)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tMETHOD\tPATH")
	for _, e := range rt.Entities() {
		for _, key := range rt.Endpoints(e) {
			method, path, _ := strings.Cut(key, ":")
			_, _ = fmt.Fprintf(w, "%s\t%s\t/%s\n", e, method, path)
		}
	}
	return w.Flush()
}
