package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
	"github.com/hummingbird-labs/hummingbird/internal/shutdown"
)

// metricsAddr is shared by the commands that accept --metrics-addr.
var metricsAddr string

func addMetricsFlag(c *cobra.Command) {
	c.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve stream and fetch metrics on this address at /metrics (e.g. 127.0.0.1:9464)")
}

// newRegistry returns a registry with the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// metricsServer exposes a registry over HTTP.
type metricsServer struct {
	ln  net.Listener
	srv *http.Server
}

func newMetricsServer(addr string, g prometheus.Gatherer) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &metricsServer{
		ln:  ln,
		srv: &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
	}, nil
}

func (m *metricsServer) Addr() net.Addr {
	return m.ln.Addr()
}

func (m *metricsServer) serve() {
	if err := m.srv.Serve(m.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Get().Warn("Metrics server stopped", "error", err)
	}
}

func (m *metricsServer) Close() error {
	return m.srv.Close()
}

// startClientMetrics serves the client instruments on --metrics-addr until sm
// shuts down. Without an address it returns nil, which disables
// instrumentation.
func startClientMetrics(status io.Writer, sm *shutdown.Manager) (*metrics.Metrics, error) {
	if metricsAddr == "" {
		return nil, nil
	}
	reg := newRegistry()
	m := metrics.New(reg)

	srv, err := newMetricsServer(metricsAddr, reg)
	if err != nil {
		return nil, err
	}
	go srv.serve()
	sm.AddCleanup(func(string) { srv.Close() })

	fmt.Fprintf(status, "📈 Metrics on http://%s/metrics\n", srv.Addr())
	return m, nil
}
