package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

const (
	writeWait = 10 * time.Second
	// maxInboundSize bounds client frames; the client only ever sends "pong".
	maxInboundSize = 512
)

// controlFrame is the JSON shape of handshake and ping frames.
type controlFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	if !s.trackStream() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxInboundSize)

	s.metrics.DevServerConnOpened()
	defer s.metrics.DevServerConnClosed()

	logger := logging.WithSession(s.logger, sessionID)
	logger.Info("Log stream opened", "remote", clientIP(r))

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// The reader only watches for acks and for the client going away.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == stream.AckToken {
				logger.Debug("Received ack")
			} else {
				logger.Debug("Ignoring client frame", "size", len(data))
			}
		}
	}()

	err = s.pump(ctx, conn, sessionID)
	conn.Close()
	<-readerDone

	if err != nil {
		logger.Debug("Log stream write failed", "error", err)
	}
	logger.Info("Log stream closed")
}

// pump writes the handshake, periodic pings, and the simulated progress
// entries until ctx is cancelled or a write fails.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, sessionID string) error {
	write := func(kind string, v any) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			return fmt.Errorf("write %s: %w", kind, err)
		}
		s.metrics.DevServerFrameSent(kind)
		return nil
	}

	if err := write("handshake", controlFrame{
		Type:    "connection_established",
		Message: "Connected to log stream for session " + sessionID,
	}); err != nil {
		return err
	}

	pingInterval := s.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	sim := NewSimulator(s.cfg.LogIntervalMin, s.cfg.LogIntervalMax)
	next := time.NewTimer(0)
	defer next.Stop()
	nextC := next.C

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return nil

		case <-ping.C:
			if err := write("ping", controlFrame{Type: "ping"}); err != nil {
				return err
			}

		case <-nextC:
			entry, delay, ok := sim.Next()
			if !ok {
				nextC = nil
				continue
			}
			if err := write("log", entry); err != nil {
				return err
			}
			if sim.Remaining() == 0 {
				nextC = nil
				continue
			}
			next.Reset(delay)
		}
	}
}
