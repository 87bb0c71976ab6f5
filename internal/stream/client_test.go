package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// testBackend is an httptest server that counts stream connection attempts
// and hands upgraded connections to handle.
type testBackend struct {
	*httptest.Server
	dials  atomic.Int32
	reject atomic.Bool

	mu    sync.Mutex
	paths []string

	handle func(conn *websocket.Conn, n int32)
}

func newTestBackend(t *testing.T, handle func(conn *websocket.Conn, n int32)) *testBackend {
	t.Helper()
	b := &testBackend{handle: handle}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := b.dials.Add(1)
		b.mu.Lock()
		b.paths = append(b.paths, r.URL.Path)
		b.mu.Unlock()

		if b.reject.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if b.handle != nil {
			b.handle(conn, n)
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *testBackend) StreamURL(sessionID string) string {
	return "ws" + strings.TrimPrefix(b.URL, "http") + "/ws/logs/" + sessionID
}

func (b *testBackend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.paths...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func fastBackoff() Backoff {
	return Backoff{Base: time.Millisecond, MaxAttempts: 5}
}

func TestClient_PingThenLog(t *testing.T) {
	replies := make(chan string, 4)
	backend := newTestBackend(t, func(conn *websocket.Conn, _ int32) {
		writeText(t, conn, `{"type":"connection_established"}`)
		writeText(t, conn, `{"type":"ping"}`)
		writeText(t, conn, `{"timestamp":"2024-01-01T00:00:00Z","level":"INFO","message":"hello"}`)
		_, data, err := conn.ReadMessage()
		if err == nil {
			replies <- string(data)
		}
	})

	var ready atomic.Int32
	c := New(backend,
		WithLogger(logging.Discard()),
		WithBackoff(fastBackoff()),
		WithCallbacks(Callbacks{
			OnReady: func(id string) {
				if id == "abc123" {
					ready.Add(1)
				}
			},
		}),
	)
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case got := <-replies:
		if got != AckToken {
			t.Errorf("server received %q, want %q", got, AckToken)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply to ping")
	}

	waitFor(t, "log entry", func() bool { return len(c.Logs()) == 1 })
	want := []LogEntry{{Timestamp: "2024-01-01T00:00:00Z", Level: LevelInfo, Message: "hello"}}
	if diff := cmp.Diff(want, c.Logs()); diff != "" {
		t.Errorf("logs mismatch (-want +got):\n%s", diff)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %v, want connected", c.State())
	}
	if ready.Load() != 1 {
		t.Errorf("OnReady called %d times, want 1", ready.Load())
	}
	if got := backend.Paths(); len(got) != 1 || got[0] != "/ws/logs/abc123" {
		t.Errorf("paths = %v", got)
	}
}

func TestClient_Metrics(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, _ int32) {
		writeText(t, conn, `{"type":"connection_established"}`)
		writeText(t, conn, `{"type":"ping"}`)
		writeText(t, conn, `{"timestamp":"2024-01-01T00:00:00Z","level":"INFO","message":"hello"}`)
		writeText(t, conn, `{not json`)
	})

	m := metrics.New(prometheus.NewRegistry())
	c := New(backend,
		WithLogger(logging.Discard()),
		WithBackoff(fastBackoff()),
		WithMetrics(m),
	)
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "decode error", func() bool { return testutil.ToFloat64(m.DecodeErrors) == 1 })

	counters := map[string]prometheus.Collector{
		"handshake frames": m.FramesReceived.WithLabelValues("handshake"),
		"ping frames":      m.FramesReceived.WithLabelValues("ping"),
		"log frames":       m.FramesReceived.WithLabelValues("log"),
		"pongs":            m.PongsSent,
		"log entries":      m.LogEntriesAppended,
		"connecting":       m.StateTransitions.WithLabelValues("connecting"),
		"connected":        m.StateTransitions.WithLabelValues("connected"),
	}
	for name, coll := range counters {
		if got := testutil.ToFloat64(coll); got != 1 {
			t.Errorf("%s = %v, want 1", name, got)
		}
	}
	if got := testutil.ToFloat64(m.ConnectFailures); got != 0 {
		t.Errorf("connect failures = %v, want 0", got)
	}
}

func TestClient_MetricsOnFailure(t *testing.T) {
	backend := newTestBackend(t, nil)
	backend.reject.Store(true)

	m := metrics.New(prometheus.NewRegistry())
	c := New(backend,
		WithLogger(logging.Discard()),
		WithBackoff(fastBackoff()),
		WithMetrics(m),
	)
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failed state", func() bool { return c.State() == StateFailed })

	if got := testutil.ToFloat64(m.ConnectFailures); got != 5 {
		t.Errorf("connect failures = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.ReconnectsScheduled); got != 4 {
		t.Errorf("reconnects scheduled = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.StateTransitions.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed transitions = %v, want 1", got)
	}
}

func TestClient_FailsAfterMaxAttempts(t *testing.T) {
	backend := newTestBackend(t, nil)
	backend.reject.Store(true)

	var (
		mu        sync.Mutex
		scheduled []int
	)
	c := New(backend,
		WithLogger(logging.Discard()),
		WithBackoff(fastBackoff()),
		WithCallbacks(Callbacks{
			OnReconnectScheduled: func(_ string, attempt int, _ time.Duration) {
				mu.Lock()
				scheduled = append(scheduled, attempt)
				mu.Unlock()
			},
		}),
	)
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client never gave up")
	}

	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
	if got := backend.dials.Load(); got != 5 {
		t.Errorf("dials = %d, want 5", got)
	}
	if c.Attempts() != 5 {
		t.Errorf("Attempts() = %d, want 5", c.Attempts())
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{1, 2, 3, 4}, scheduled); diff != "" {
		t.Errorf("scheduled retries mismatch (-want +got):\n%s", diff)
	}

	// No automatic action follows.
	time.Sleep(50 * time.Millisecond)
	if got := backend.dials.Load(); got != 5 {
		t.Errorf("dials after Failed = %d, want 5", got)
	}
}

func TestClient_StartAfterFailedRearms(t *testing.T) {
	backend := newTestBackend(t, nil)
	backend.reject.Store(true)

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	<-c.Done()

	backend.reject.Store(false)
	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	if c.Attempts() != 0 {
		t.Errorf("Attempts() = %d, want 0 after reconnect", c.Attempts())
	}
}

func TestClient_ReconnectResetsCounter(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, n int32) {
		writeText(t, conn, `{"timestamp":"t","level":"INFO","message":"from connection"}`)
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.Close()
		}
	})

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "second connection", func() bool {
		return backend.dials.Load() == 2 && c.State() == StateConnected
	})
	waitFor(t, "both entries", func() bool { return len(c.Logs()) == 2 })
	if c.Attempts() != 0 {
		t.Errorf("Attempts() = %d, want 0 after successful reconnect", c.Attempts())
	}
}

func TestClient_CloseCancelsPendingRetry(t *testing.T) {
	backend := newTestBackend(t, nil)
	backend.reject.Store(true)

	reconnecting := make(chan struct{}, 1)
	c := New(backend,
		WithLogger(logging.Discard()),
		WithBackoff(Backoff{Base: time.Hour, MaxAttempts: 5}),
		WithCallbacks(Callbacks{
			OnStateChange: func(_ string, s State) {
				if s == StateReconnecting {
					select {
					case reconnecting <- struct{}{}:
					default:
					}
				}
			},
		}),
	)

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reconnecting:
	case <-time.After(5 * time.Second):
		t.Fatal("retry was never scheduled")
	}

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on pending retry")
	}

	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
	if got := backend.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

// urlFunc adapts a function to URLResolver.
type urlFunc func(string) string

func (f urlFunc) StreamURL(id string) string { return f(id) }

func TestClient_CloseWhileConnecting(t *testing.T) {
	url := stallingListener(t)

	c := New(urlFunc(func(string) string { return url }),
		WithLogger(logging.Discard()),
		WithConnectTimeout(10*time.Second),
	)
	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if c.State() != StateConnecting {
		t.Fatalf("State() = %v, want connecting", c.State())
	}

	start := time.Now()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %v while connecting", elapsed)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestClient_SwitchSessionWhileConnecting(t *testing.T) {
	stalled := stallingListener(t)
	backend := newTestBackend(t, nil)

	resolver := urlFunc(func(id string) string {
		if id == "stalled" {
			return stalled
		}
		return backend.StreamURL(id)
	})
	c := New(resolver,
		WithLogger(logging.Discard()),
		WithConnectTimeout(10*time.Second),
	)
	defer c.Close()

	if err := c.Start(context.Background(), "stalled"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := c.SwitchSession(context.Background(), "next"); err != nil {
		t.Fatalf("SwitchSession() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("SwitchSession took %v while connecting", elapsed)
	}
	waitFor(t, "connected to next session", func() bool { return c.State() == StateConnected })
}

func TestClient_CloseKeepsLogs(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, _ int32) {
		writeText(t, conn, `{"timestamp":"t","level":"WARN","message":"kept"}`)
	})

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "log entry", func() bool { return len(c.Logs()) == 1 })

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if len(c.Logs()) != 1 {
		t.Errorf("Close discarded the log sequence")
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestClient_MalformedFrameKeepsConnection(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, _ int32) {
		writeText(t, conn, `{"timestamp":`)
		writeText(t, conn, `not json at all`)
		writeText(t, conn, `{"timestamp":"t","level":"ERROR","message":"after garbage"}`)
	})

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	defer c.Close()

	if err := c.Start(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "log entry", func() bool { return len(c.Logs()) == 1 })

	if c.Logs()[0].Message != "after garbage" {
		t.Errorf("unexpected entry %+v", c.Logs()[0])
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %v, want connected", c.State())
	}
	if got := backend.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (malformed frames must not drop the connection)", got)
	}
}

func TestClient_SwitchSession(t *testing.T) {
	backend := newTestBackend(t, func(conn *websocket.Conn, _ int32) {
		writeText(t, conn, `{"timestamp":"t","level":"INFO","message":"m"}`)
	})

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	defer c.Close()

	if err := c.Start(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first session log", func() bool { return len(c.Logs()) == 1 })

	if err := c.SwitchSession(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	if c.SessionID() != "second" {
		t.Errorf("SessionID() = %q", c.SessionID())
	}
	waitFor(t, "second session log", func() bool {
		return c.State() == StateConnected && len(c.Logs()) == 1
	})

	want := []string{"/ws/logs/first", "/ws/logs/second"}
	if diff := cmp.Diff(want, backend.Paths()); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_StartSameSessionIsNoop(t *testing.T) {
	backend := newTestBackend(t, nil)

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })
	if err := c.Start(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := backend.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestClient_StartRequiresSession(t *testing.T) {
	c := New(nil, WithLogger(logging.Discard()))
	if err := c.Start(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("Start(\"\") error = %v, want ErrNoSession", err)
	}
	if err := c.SwitchSession(context.Background(), ""); !errors.Is(err, ErrNoSession) {
		t.Errorf("SwitchSession(\"\") error = %v, want ErrNoSession", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() should be closed for a client that never started")
	}
}

func TestClient_ContextCancelStopsLoop(t *testing.T) {
	backend := newTestBackend(t, nil)

	c := New(backend, WithLogger(logging.Discard()), WithBackoff(fastBackoff()))
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx, "abc123"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return c.State() == StateConnected })

	cancel()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not exit on cancellation")
	}
	if got := backend.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1 (cancellation is not an unexpected close)", got)
	}
	c.Close()
}
