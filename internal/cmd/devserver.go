package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/devserver"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
	"github.com/hummingbird-labs/hummingbird/internal/shutdown"
)

var (
	devAddr      string
	devCatalog   string
	devAccessLog string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local Hummingbird backend",
	Long: `Run a local backend that serves the log stream and the
recommendation endpoint for any session identifier.

Each stream connection receives the connection_established handshake,
periodic pings, and a scripted series of progress log entries. The
recommendations come from the embedded catalog or from --catalog,
which is reloaded whenever the file changes.

Endpoints:
  GET /ws/logs/{sessionID}          log stream (WebSocket)
  GET /api/v1/products/{sessionID}  recommendations
  GET /health                       liveness
  GET /metrics                      Prometheus metrics

Example:
  hummingbird devserver --addr 127.0.0.1:8000 --catalog ./catalog.yaml`,
	Args: cobra.NoArgs,
	RunE: runDevServer,
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().StringVar(&devAddr, "addr", "", "Listen address (default: devserver.addr)")
	devserverCmd.Flags().StringVar(&devCatalog, "catalog", "", "Catalog YAML file (default: devserver.catalog or the embedded catalog)")
	devserverCmd.Flags().StringVar(&devAccessLog, "access-log", "", "Request log file (default: devserver.access_log)")
}

func runDevServer(cmd *cobra.Command, args []string) error {
	devCfg := cfg.DevServer
	if devAddr != "" {
		devCfg.Addr = devAddr
	}
	if devCatalog != "" {
		devCfg.Catalog = devCatalog
	}
	if devAccessLog != "" {
		devCfg.AccessLog = devAccessLog
	}

	reg := newRegistry()

	srv, err := devserver.New(devCfg, devserver.WithMetrics(metrics.New(reg), reg))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", devCfg.Addr)
	if err != nil {
		srv.Close()
		return fmt.Errorf("listen on %s: %w", devCfg.Addr, err)
	}

	sm := shutdown.New(cmd.Context())
	sm.AddCleanup(func(string) { srv.Close() })
	sm.Start()
	defer sm.Shutdown("devserver stopped")

	fmt.Fprintf(cmd.OutOrStdout(), "🐦 Hummingbird dev backend listening on http://%s\n", ln.Addr())
	fmt.Fprintf(cmd.OutOrStdout(), "   Set HUMMINGBIRD_API_HOST=%s to point clients at it.\n", ln.Addr())

	return srv.Serve(sm.Context(), ln)
}
