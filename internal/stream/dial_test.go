package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// stallingListener accepts TCP connections but never answers the handshake.
func stallingListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	return "ws://" + ln.Addr().String() + "/ws/logs/x"
}

func TestDial_Timeout(t *testing.T) {
	url := stallingListener(t)

	start := time.Now()
	_, err := Dial(context.Background(), nil, url, 50*time.Millisecond)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Dial() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dial took %v, expected to give up near the timeout", elapsed)
	}
}

func TestDial_CancelWhileHandshaking(t *testing.T) {
	url := stallingListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := Dial(ctx, nil, url, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Dial() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrConnectTimeout) {
		t.Errorf("cancellation reported as connect timeout: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Dial took %v after cancellation", elapsed)
	}
}

func TestDial_DoesNotModifyDialer(t *testing.T) {
	backend := newTestBackend(t, nil)

	dialer := &websocket.Dialer{HandshakeTimeout: time.Second}
	conn, err := Dial(context.Background(), dialer, backend.StreamURL("abc"), time.Second)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if dialer.NetDialContext != nil || dialer.NetDial != nil {
		t.Error("Dial installed a net dialer on the caller's Dialer")
	}
	// The connection must stay usable after the dial context is released.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(AckToken)); err != nil {
		t.Errorf("write after dial: %v", err)
	}
}

func TestDial_RejectedUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), nil, "ws"+strings.TrimPrefix(srv.URL, "http"), time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error %q should carry the status code", err)
	}
}
