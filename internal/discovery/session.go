// Package discovery ties a pitch conversation to its log stream and its
// recommendation list. Ending the conversation starts both, keyed by the
// conversation's session identifier.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hummingbird-labs/hummingbird/internal/conversation"
	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/products"
	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

// ErrNotEnded is returned by Refresh before the conversation has ended.
var ErrNotEnded = errors.New("conversation has not ended")

// LogStreamer is the part of *stream.Client a Session drives.
type LogStreamer interface {
	Start(ctx context.Context, sessionID string) error
	Close() error
	State() stream.State
	Logs() []stream.LogEntry
}

// Recommender is the part of *products.Client a Session drives.
type Recommender interface {
	Fetch(ctx context.Context, sessionID string) []products.Item
}

// Session is one discovery run: conversation, then logs and recommendations.
type Session struct {
	conv        *conversation.Conversation
	streamer    LogStreamer
	recommender Recommender
	logger      *slog.Logger

	mu    sync.RWMutex
	items []products.Item
}

// NewSession creates a Session. logger may be nil.
func NewSession(conv *conversation.Conversation, streamer LogStreamer, recommender Recommender, logger *slog.Logger) *Session {
	if logger == nil {
		logger = logging.Conversation()
	}
	return &Session{
		conv:        conv,
		streamer:    streamer,
		recommender: recommender,
		logger:      logging.WithSession(logger, conv.ID()),
	}
}

// ID returns the session identifier shared by the stream and the fetch.
func (s *Session) ID() string {
	return s.conv.ID()
}

// Conversation returns the underlying conversation.
func (s *Session) Conversation() *conversation.Conversation {
	return s.conv
}

// End finishes the conversation, then starts the log stream and fetches the
// recommendations concurrently. The stream keeps running under ctx after End
// returns. Calling End again returns the current list without side effects.
func (s *Session) End(ctx context.Context) ([]products.Item, error) {
	if !s.conv.End() {
		return s.Products(), nil
	}

	id := s.conv.ID()
	var g errgroup.Group
	g.Go(func() error {
		if err := s.streamer.Start(ctx, id); err != nil {
			return fmt.Errorf("start log stream: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.setProducts(s.recommender.Fetch(ctx, id))
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to start discovery", "error", err)
		return s.Products(), err
	}

	items := s.Products()
	s.logger.Info("Discovery started", "products", len(items))
	return items, nil
}

// Refresh fetches the recommendations again and replaces the current list.
func (s *Session) Refresh(ctx context.Context) ([]products.Item, error) {
	if !s.conv.Ended() {
		return nil, ErrNotEnded
	}
	s.setProducts(s.recommender.Fetch(ctx, s.conv.ID()))
	return s.Products(), nil
}

// Products returns the current recommendation list.
func (s *Session) Products() []products.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]products.Item, len(s.items))
	copy(out, s.items)
	return out
}

// Logs returns the log sequence received so far.
func (s *Session) Logs() []stream.LogEntry {
	return s.streamer.Logs()
}

// StreamState returns the log stream connection state.
func (s *Session) StreamState() stream.State {
	return s.streamer.State()
}

// Close stops the log stream.
func (s *Session) Close() error {
	return s.streamer.Close()
}

func (s *Session) setProducts(items []products.Item) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}
