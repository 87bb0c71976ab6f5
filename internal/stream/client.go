package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

// writeWait bounds a single write (the pong reply).
const writeWait = 10 * time.Second

// ErrNoSession is returned by Start when the session identifier is empty.
var ErrNoSession = errors.New("no session identifier")

// URLResolver builds the stream URL for a session.
// *endpoint.Resolver satisfies it.
type URLResolver interface {
	StreamURL(sessionID string) string
}

// Callbacks receive stream events. All callbacks are optional.
type Callbacks struct {
	// OnStateChange is called after every state transition.
	OnStateChange func(sessionID string, state State)

	// OnLog is called after an entry has been appended to the store.
	OnLog func(sessionID string, entry LogEntry)

	// OnReady is called when the server acknowledges the connection.
	OnReady func(sessionID string)

	// OnReconnectScheduled is called when a retry is scheduled.
	// attempt is the retry number (1-based) and delay the wait before it.
	OnReconnectScheduled func(sessionID string, attempt int, delay time.Duration)
}

// Client maintains the log stream of one session at a time.
// It is safe for concurrent use.
type Client struct {
	resolver       URLResolver
	dialer         *websocket.Dialer
	connectTimeout time.Duration
	backoff        Backoff
	store          LogStore
	callbacks      Callbacks
	logger         *slog.Logger
	metrics        *metrics.Metrics

	// lifecycle serialises Start, SwitchSession and Close.
	lifecycle sync.Mutex

	mu        sync.Mutex
	sessionID string
	state     State
	attempts  int
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger. Default is logging.Stream().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithStore injects the LogStore the session sequence is written to.
func WithStore(s LogStore) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithCallbacks sets the event callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) {
		c.callbacks = cb
	}
}

// WithBackoff sets the reconnection policy.
func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// WithConnectTimeout sets the per-attempt connect timeout. Default is 5s.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithDialer sets a custom WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// New creates a stream client. Call Start to connect.
func New(resolver URLResolver, opts ...Option) *Client {
	c := &Client{
		resolver:       resolver,
		dialer:         websocket.DefaultDialer,
		connectTimeout: DefaultConnectTimeout,
		backoff:        DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryLogStore()
	}
	if c.logger == nil {
		c.logger = logging.Stream()
	}
	return c
}

// Start connects the stream for sessionID. Starting the session that is
// already running is a no-op; starting a different session behaves like
// SwitchSession. A Failed or closed client is re-armed.
func (c *Client) Start(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	running := c.cancel != nil && !isClosed(c.done)
	same := c.sessionID == sessionID
	c.mu.Unlock()

	if running && same {
		return nil
	}
	c.stop()
	c.launch(ctx, sessionID)
	return nil
}

// SwitchSession tears down the current session (pending retry timer, live
// connection, log sequence, retry counter) and starts sessionID.
func (c *Client) SwitchSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stop()
	c.launch(ctx, sessionID)
	return nil
}

// Close cancels any pending reconnect, closes the live connection, and waits
// for the run loop to exit. It is idempotent. The log sequence stays readable.
func (c *Client) Close() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stop()

	c.mu.Lock()
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.attempts = 0
	sessionID := c.sessionID
	c.mu.Unlock()

	if changed {
		c.notifyState(sessionID, StateDisconnected)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current retry counter.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// SessionID returns the session the client was last started with.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Logs returns a copy of the session's log sequence.
func (c *Client) Logs() []LogEntry {
	return c.store.Entries()
}

// Done returns a channel closed when the current run loop exits, either
// because the client reached StateFailed or because it was stopped.
// It returns a closed channel if the client was never started.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// launch starts a fresh run loop. Callers hold c.lifecycle and have stopped
// any previous loop.
func (c *Client) launch(ctx context.Context, sessionID string) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.sessionID != sessionID {
		c.store.Reset()
	}
	c.sessionID = sessionID
	c.attempts = 0
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, sessionID, done)
}

// stop cancels the current run loop and waits for it. Callers hold c.lifecycle.
func (c *Client) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run is the reconnection controller. It owns the connection and the retry
// timer for one session; it exits on cancellation or on reaching StateFailed.
func (c *Client) run(ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)

	logger := logging.WithSession(c.logger, sessionID)
	url := c.resolver.StreamURL(sessionID)
	logger.Debug("Resolved stream URL", "url", url)

	router := NewRouter(RouterConfig{
		Store:   c.store,
		Logger:  logger,
		Metrics: c.metrics,
		OnReady: func() {
			if c.callbacks.OnReady != nil {
				c.callbacks.OnReady(sessionID)
			}
		},
		OnLog: func(e LogEntry) {
			if c.callbacks.OnLog != nil {
				c.callbacks.OnLog(sessionID, e)
			}
		},
	})

	var timer retryTimer
	defer timer.Cancel()

	for {
		c.setState(ctx, sessionID, StateConnecting)

		conn, err := Dial(ctx, c.dialer, url, c.connectTimeout)
		if err == nil {
			c.mu.Lock()
			c.attempts = 0
			c.mu.Unlock()
			c.setState(ctx, sessionID, StateConnected)
			logger.Info("Stream connected")

			err = c.serve(ctx, conn, router)
		} else {
			c.metrics.ConnectFailed()
		}

		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		attempt, delay, ok := c.backoff.next(c.attempts)
		c.attempts = attempt
		c.mu.Unlock()

		if !ok {
			logger.Error("Stream retries exhausted", "attempts", attempt, "error", err)
			c.setState(ctx, sessionID, StateFailed)
			return
		}

		logger.Warn("Stream closed unexpectedly, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay)
		c.setState(ctx, sessionID, StateReconnecting)
		c.metrics.ReconnectScheduled()
		if c.callbacks.OnReconnectScheduled != nil {
			c.callbacks.OnReconnectScheduled(sessionID, attempt, delay)
		}

		select {
		case <-timer.Schedule(delay):
			timer.Cancel()
		case <-ctx.Done():
			return
		}
	}
}

// serve reads frames until the connection fails or ctx is cancelled.
// The connection is always closed on return.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, router *Router) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	reply := func(text string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, []byte(text))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if _, err := router.Route(data, reply); err != nil {
			return err
		}
	}
}

// setState records a transition unless ctx has been cancelled, so a stopped
// loop never overwrites the state set by Close or a newer session.
func (c *Client) setState(ctx context.Context, sessionID string, s State) {
	c.mu.Lock()
	if ctx.Err() != nil || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.notifyState(sessionID, s)
}

func (c *Client) notifyState(sessionID string, s State) {
	c.metrics.StateChanged(s.String())
	if c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(sessionID, s)
	}
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
