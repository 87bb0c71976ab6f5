// Package shutdown coordinates process teardown for the hummingbird commands.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
)

// Func runs during shutdown. It receives the reason shutdown was triggered.
type Func func(reason string)

// Manager runs registered cleanups exactly once, either on an explicit
// Shutdown call or on SIGINT/SIGTERM. Its Context is cancelled as soon as
// shutdown starts so long-running operations (log streams, the dev server)
// unwind before the cleanups run.
//
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
	reason   string
	cleanups []Func

	ctx    context.Context
	cancel context.CancelFunc
	sigs   chan os.Signal
}

// New creates a manager whose Context derives from parent.
// Signal handling does not begin until Start is called.
func New(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// AddCleanup registers fn. Cleanups run in registration order.
func (m *Manager) AddCleanup(fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, fn)
}

// Start listens for SIGINT and SIGTERM and triggers Shutdown on the first one.
// Calling Start more than once has no effect.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.sigs != nil {
		m.mu.Unlock()
		return
	}
	m.sigs = make(chan os.Signal, 1)
	sigs := m.sigs
	m.mu.Unlock()

	logger := logging.Shutdown()
	logger.Debug("Shutdown manager started, listening for signals")
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			logger.Info("Signal received, initiating shutdown", "signal", sig.String())
			m.Shutdown("signal:" + sig.String())
		case <-m.done:
		}
	}()
}

// Shutdown cancels the manager's Context and runs the cleanups. Only the
// first call does any work; every call blocks until teardown is complete.
func (m *Manager) Shutdown(reason string) {
	m.once.Do(func() {
		m.run(reason)
	})
	<-m.done
}

func (m *Manager) run(reason string) {
	logger := logging.Shutdown()
	logger.Info("Starting shutdown sequence", "reason", reason)

	m.mu.Lock()
	m.reason = reason
	cleanups := make([]Func, len(m.cleanups))
	copy(cleanups, m.cleanups)
	sigs := m.sigs
	m.mu.Unlock()

	if sigs != nil {
		signal.Stop(sigs)
	}
	m.cancel()

	for i, fn := range cleanups {
		logger.Debug("Running cleanup function", "index", i, "total", len(cleanups))
		fn(reason)
	}

	logger.Info("Shutdown sequence complete", "reason", reason)
	close(m.done)
}

// Done is closed once every cleanup has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Reason returns why shutdown was triggered, or "" before it has been.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}
