package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectTimeout is returned when a connection is not open within the connect timeout.
var ErrConnectTimeout = errors.New("connect timeout")

// Dial opens a WebSocket connection to url. It returns only once the
// connection is open, or fails with ErrConnectTimeout after timeout, or with
// the wrapped transport error.
func Dial(ctx context.Context, dialer *websocket.Dialer, url string, timeout time.Duration) (*websocket.Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d, release := cancelableDialer(dialer)
	conn, resp, err := d.DialContext(dialCtx, url, nil)
	if !release() && err == nil {
		// The handshake won the race against cancellation, but the
		// underlying connection has already been closed.
		conn.Close()
		err = dialCtx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial %s: %w", url, ctx.Err())
		}
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("dial %s: %w after %s", url, ErrConnectTimeout, timeout)
		}
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// cancelableDialer returns a copy of dialer whose network connections are
// closed as soon as the dial context is done, so a stalled upgrade handshake
// ends on cancellation instead of waiting for the deadline. release detaches
// the connections from the context once the handshake has returned; it
// reports false when a connection was already closed by cancellation.
func cancelableDialer(dialer *websocket.Dialer) (*websocket.Dialer, func() bool) {
	d := *dialer
	netDial := d.NetDialContext
	if netDial == nil {
		if d.NetDial != nil {
			legacy := d.NetDial
			netDial = func(_ context.Context, network, addr string) (net.Conn, error) {
				return legacy(network, addr)
			}
		} else {
			var nd net.Dialer
			netDial = nd.DialContext
		}
	}

	var (
		mu    sync.Mutex
		stops []func() bool
	)
	d.NetDial = nil
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := netDial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() {
			conn.Close()
		})
		mu.Lock()
		stops = append(stops, stop)
		mu.Unlock()
		return conn, nil
	}

	release := func() bool {
		mu.Lock()
		defer mu.Unlock()
		ok := true
		for _, stop := range stops {
			if !stop() {
				ok = false
			}
		}
		stops = nil
		return ok
	}
	return &d, release
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
