// Package metrics defines the Prometheus instruments shared by the stream
// client, the recommendation fetch, and the development backend.
//
// All helper methods are safe to call on a nil *Metrics, so components can
// be constructed without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FramesReceived      *prometheus.CounterVec
	DecodeErrors        prometheus.Counter
	PongsSent           prometheus.Counter
	LogEntriesAppended  prometheus.Counter
	ConnectFailures     prometheus.Counter
	ReconnectsScheduled prometheus.Counter
	StateTransitions    *prometheus.CounterVec
	ProductFetches      *prometheus.CounterVec
	ProductFetchSeconds prometheus.Histogram

	DevServerConnections prometheus.Gauge
	DevServerFramesSent  *prometheus.CounterVec
	DevServerRateLimited prometheus.Counter
}

// New registers all instruments with reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hummingbird_stream_frames_received_total",
			Help: "Inbound stream frames by classification",
		}, []string{"kind"}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_stream_decode_errors_total",
			Help: "Inbound frames discarded because they could not be decoded",
		}),
		PongsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_stream_pongs_sent_total",
			Help: "Keepalive replies sent in answer to ping frames",
		}),
		LogEntriesAppended: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_stream_log_entries_total",
			Help: "Log entries appended to the session log sequence",
		}),
		ConnectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_stream_connect_failures_total",
			Help: "Connection attempts that failed or timed out",
		}),
		ReconnectsScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_stream_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after an unexpected close",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hummingbird_stream_state_transitions_total",
			Help: "Connection state transitions by target state",
		}, []string{"state"}),
		ProductFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hummingbird_product_fetches_total",
			Help: "Recommendation fetches by result",
		}, []string{"result"}),
		ProductFetchSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hummingbird_product_fetch_duration_seconds",
			Help:    "Time taken by recommendation fetches",
			Buckets: prometheus.DefBuckets,
		}),
		DevServerConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "hummingbird_devserver_stream_connections",
			Help: "Open log stream connections on the development backend",
		}),
		DevServerFramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hummingbird_devserver_frames_sent_total",
			Help: "Frames written by the development backend by kind",
		}, []string{"kind"}),
		DevServerRateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "hummingbird_devserver_rate_limited_total",
			Help: "Requests rejected by the development backend rate limiter",
		}),
	}
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) PongSent() {
	if m == nil {
		return
	}
	m.PongsSent.Inc()
}

func (m *Metrics) LogEntryAppended() {
	if m == nil {
		return
	}
	m.LogEntriesAppended.Inc()
}

func (m *Metrics) ConnectFailed() {
	if m == nil {
		return
	}
	m.ConnectFailures.Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.ReconnectsScheduled.Inc()
}

func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// ProductFetch records one recommendation fetch; result is "ok" or "error".
func (m *Metrics) ProductFetch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProductFetches.WithLabelValues(result).Inc()
	m.ProductFetchSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) DevServerConnOpened() {
	if m == nil {
		return
	}
	m.DevServerConnections.Inc()
}

func (m *Metrics) DevServerConnClosed() {
	if m == nil {
		return
	}
	m.DevServerConnections.Dec()
}

func (m *Metrics) DevServerFrameSent(kind string) {
	if m == nil {
		return
	}
	m.DevServerFramesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) DevServerRateLimit() {
	if m == nil {
		return
	}
	m.DevServerRateLimited.Inc()
}
