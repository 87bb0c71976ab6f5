package stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

type recordingReply struct {
	sent []string
	err  error
}

func (r *recordingReply) send(text string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

func newTestRouter(t *testing.T, store LogStore) (*Router, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	return NewRouter(RouterConfig{
		Store:   store,
		Logger:  logging.Discard(),
		Metrics: m,
	}), m
}

func TestRouter_PingRepliesOnce(t *testing.T) {
	store := NewMemoryLogStore()
	router, m := newTestRouter(t, store)
	reply := &recordingReply{}

	kind, err := router.Route([]byte(`{"type":"ping"}`), reply.send)
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if kind != FramePing {
		t.Errorf("kind = %v, want ping", kind)
	}
	if diff := cmp.Diff([]string{AckToken}, reply.sent); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
	if store.Len() != 0 {
		t.Errorf("ping must not append, store has %d entries", store.Len())
	}
	if got := testutil.ToFloat64(m.PongsSent); got != 1 {
		t.Errorf("PongsSent = %v, want 1", got)
	}
}

func TestRouter_PingReplyFailure(t *testing.T) {
	router, _ := newTestRouter(t, NewMemoryLogStore())
	boom := errors.New("broken pipe")
	reply := &recordingReply{err: boom}

	_, err := router.Route([]byte(`{"type":"ping"}`), reply.send)
	if !errors.Is(err, boom) {
		t.Errorf("Route() error = %v, want wrapped %v", err, boom)
	}
}

func TestRouter_AppendsInArrivalOrder(t *testing.T) {
	store := NewMemoryLogStore()
	router, m := newTestRouter(t, store)

	var want []LogEntry
	for i := 0; i < 5; i++ {
		e := LogEntry{
			Timestamp: fmt.Sprintf("2024-01-01T00:00:0%dZ", i),
			Level:     LevelInfo,
			Message:   fmt.Sprintf("step %d", i),
		}
		want = append(want, e)
		raw := fmt.Sprintf(`{"timestamp":%q,"level":%q,"message":%q}`, e.Timestamp, e.Level, e.Message)
		if _, err := router.Route([]byte(raw), nil); err != nil {
			t.Fatalf("Route() error: %v", err)
		}
	}

	if diff := cmp.Diff(want, store.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(m.LogEntriesAppended); got != 5 {
		t.Errorf("LogEntriesAppended = %v, want 5", got)
	}
}

func TestRouter_MalformedIsDiscarded(t *testing.T) {
	store := NewMemoryLogStore()
	router, m := newTestRouter(t, store)
	reply := &recordingReply{}

	kind, err := router.Route([]byte(`{"timestamp":`), reply.send)
	if err != nil {
		t.Fatalf("malformed frame must not surface an error, got %v", err)
	}
	if kind != FrameUnknown {
		t.Errorf("kind = %v, want unknown", kind)
	}
	if store.Len() != 0 || len(reply.sent) != 0 {
		t.Error("malformed frame must have no effect")
	}
	if got := testutil.ToFloat64(m.DecodeErrors); got != 1 {
		t.Errorf("DecodeErrors = %v, want 1", got)
	}
}

func TestRouter_HandshakeAndAckHaveNoSideEffects(t *testing.T) {
	store := NewMemoryLogStore()
	ready := 0
	var logged []LogEntry
	router := NewRouter(RouterConfig{
		Store:   store,
		Logger:  logging.Discard(),
		OnReady: func() { ready++ },
		OnLog:   func(e LogEntry) { logged = append(logged, e) },
	})
	reply := &recordingReply{}

	for _, raw := range []string{`{"type":"connection_established"}`, "pong", `{"type":"unknown"}`} {
		if _, err := router.Route([]byte(raw), reply.send); err != nil {
			t.Fatalf("Route(%s) error: %v", raw, err)
		}
	}

	if ready != 1 {
		t.Errorf("OnReady called %d times, want 1", ready)
	}
	if store.Len() != 0 || len(reply.sent) != 0 || len(logged) != 0 {
		t.Errorf("unexpected side effects: store=%d replies=%v logged=%v", store.Len(), reply.sent, logged)
	}
}

func TestRouter_OnLogAfterAppend(t *testing.T) {
	store := NewMemoryLogStore()
	var lenAtCallback int
	router := NewRouter(RouterConfig{
		Store:  store,
		Logger: logging.Discard(),
		OnLog:  func(LogEntry) { lenAtCallback = store.Len() },
	})

	if _, err := router.Route([]byte(`{"timestamp":"t","level":"ERROR","message":"m"}`), nil); err != nil {
		t.Fatal(err)
	}
	if lenAtCallback != 1 {
		t.Errorf("store length seen by OnLog = %d, want 1", lenAtCallback)
	}
}

func TestPreview(t *testing.T) {
	long := make([]byte, maxPreview+50)
	for i := range long {
		long[i] = 'x'
	}
	if got := preview(long); len(got) != maxPreview+3 {
		t.Errorf("preview length = %d, want %d", len(got), maxPreview+3)
	}
	if got := preview([]byte("short")); got != "short" {
		t.Errorf("preview = %q", got)
	}
}
