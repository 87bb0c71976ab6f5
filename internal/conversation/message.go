// Package conversation holds the pitch conversation that precedes a
// recommendation: the message list, the scripted bot replies, and the
// transcript export.
package conversation

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Greeting is the bot message every conversation starts with.
const Greeting = "Hey, tell me about your product!"

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one line of the conversation.
type Message struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// NewMessage creates a message with a fresh identifier.
func NewMessage(sender Sender, text string) Message {
	return Message{ID: uuid.NewString(), Text: text, Sender: sender}
}

// Store defines the message list a Conversation writes to.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a message at the end of the list.
	Append(msg Message) error

	// Messages returns the list in insertion order.
	Messages() ([]Message, error)
}

// MemoryStore is the default in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("append message: empty id")
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Messages() ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}
