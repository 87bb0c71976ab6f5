package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hummingbird-labs/hummingbird/internal/logging"
)

// ErrEnded is returned when a message is added after End.
var ErrEnded = errors.New("conversation has ended")

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("empty message")

// Conversation is one pitch session. Its ID is the session identifier used
// for the log stream and the recommendation fetch.
type Conversation struct {
	id        string
	store     Store
	responder Responder
	logger    *slog.Logger

	mu    sync.Mutex
	ended bool
}

// Options configures a Conversation. Zero values select the defaults.
type Options struct {
	// ID overrides the generated session identifier.
	ID        string
	Store     Store
	Responder Responder
	Logger    *slog.Logger
}

// New starts a conversation and seeds the store with the greeting when it is empty.
func New(opts Options) (*Conversation, error) {
	c := &Conversation{
		id:        opts.ID,
		store:     opts.Store,
		responder: opts.Responder,
		logger:    opts.Logger,
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.responder == nil {
		c.responder = KeywordResponder{}
	}
	if c.logger == nil {
		c.logger = logging.Conversation()
	}
	c.logger = logging.WithSession(c.logger, c.id)

	existing, err := c.store.Messages()
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if len(existing) == 0 {
		if err := c.store.Append(NewMessage(SenderBot, Greeting)); err != nil {
			return nil, fmt.Errorf("seed conversation: %w", err)
		}
	}
	return c, nil
}

// ID returns the session identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Say records a user message and the bot reply, returning both.
func (c *Conversation) Say(text string) (Message, Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return Message{}, Message{}, ErrEnded
	}

	user := NewMessage(SenderUser, text)
	if err := c.store.Append(user); err != nil {
		return Message{}, Message{}, fmt.Errorf("record user message: %w", err)
	}
	bot := NewMessage(SenderBot, c.responder.Respond(text))
	if err := c.store.Append(bot); err != nil {
		return user, Message{}, fmt.Errorf("record bot message: %w", err)
	}

	c.logger.Debug("Conversation turn recorded", "user_len", len(text))
	return user, bot, nil
}

// Messages returns the conversation in order.
func (c *Conversation) Messages() ([]Message, error) {
	return c.store.Messages()
}

// End marks the conversation finished. It reports whether this call ended
// it, so the end-of-conversation work runs once.
func (c *Conversation) End() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return false
	}
	c.ended = true
	c.logger.Info("Conversation ended")
	return true
}

// Ended reports whether End has been called.
func (c *Conversation) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}
