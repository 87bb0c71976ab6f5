package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FrameReceived("log")
	m.FrameReceived("log")
	m.FrameReceived("ping")
	m.PongSent()
	m.ReconnectScheduled()
	m.ProductFetch("error", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.FramesReceived.WithLabelValues("log")); got != 2 {
		t.Errorf("log frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FramesReceived.WithLabelValues("ping")); got != 1 {
		t.Errorf("ping frames = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PongsSent); got != 1 {
		t.Errorf("pongs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReconnectsScheduled); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ProductFetches.WithLabelValues("error")); got != 1 {
		t.Errorf("error fetches = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.FrameReceived("log")
	m.DecodeError()
	m.PongSent()
	m.LogEntryAppended()
	m.ConnectFailed()
	m.ReconnectScheduled()
	m.StateChanged("connected")
	m.ProductFetch("ok", time.Second)
	m.DevServerConnOpened()
	m.DevServerConnClosed()
	m.DevServerFrameSent("log")
	m.DevServerRateLimit()
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
