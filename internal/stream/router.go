package stream

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hummingbird-labs/hummingbird/internal/metrics"
)

// maxPreview bounds how much of an offending frame is logged.
const maxPreview = 200

// ReplyFunc sends a bare text frame back to the server.
type ReplyFunc func(text string) error

// Router acts on classified frames for one session connection.
// Route must be called from a single goroutine, in arrival order.
type Router struct {
	store   LogStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	onReady func()
	onLog   func(LogEntry)
}

// RouterConfig holds the collaborators of a Router. Store is required.
type RouterConfig struct {
	Store   LogStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// OnReady is called when the server acknowledges the connection.
	OnReady func()
	// OnLog is called after an entry has been appended to Store.
	OnLog func(LogEntry)
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:   cfg.Store,
		logger:  logger,
		metrics: cfg.Metrics,
		onReady: cfg.OnReady,
		onLog:   cfg.OnLog,
	}
}

// Route classifies raw and performs the matching action. Decoding problems
// are logged and swallowed; the only error returned is a failed ping reply,
// which means the connection is no longer usable.
func (r *Router) Route(raw []byte, reply ReplyFunc) (FrameKind, error) {
	frame, err := Classify(raw)
	if err != nil {
		r.metrics.DecodeError()
		r.logger.Warn("Discarding undecodable frame",
			"error", err,
			"size", len(raw),
			"preview", preview(raw))
		return FrameUnknown, nil
	}
	r.metrics.FrameReceived(frame.Kind.String())

	switch frame.Kind {
	case FrameAck:
		// Nothing to do.

	case FrameHandshake:
		r.logger.Debug("Stream connection acknowledged by server")
		if r.onReady != nil {
			r.onReady()
		}

	case FramePing:
		if reply == nil {
			return frame.Kind, errors.New("ping received but no reply channel")
		}
		if err := reply(AckToken); err != nil {
			return frame.Kind, fmt.Errorf("reply to ping: %w", err)
		}
		r.metrics.PongSent()

	case FrameLog:
		r.store.Append(frame.Entry)
		r.metrics.LogEntryAppended()
		if !frame.Entry.Level.Known() {
			r.logger.Debug("Log frame with unrecognised level", "level", frame.Entry.Level)
		}
		if r.onLog != nil {
			r.onLog(frame.Entry)
		}

	default:
		r.logger.Warn("Dropping unexpected frame", "preview", preview(raw))
	}

	return frame.Kind, nil
}

func preview(raw []byte) string {
	if len(raw) <= maxPreview {
		return string(raw)
	}
	return string(raw[:maxPreview]) + "..."
}
