package conversation

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/hummingbird-labs/hummingbird/internal/fileutil"
)

// storedConversation is the on-disk shape of a FileStore.
type storedConversation struct {
	Messages []Message `json:"messages"`
}

// FileStore is a Store persisted as a JSON file. Every Append rewrites the
// file atomically, so a crash never leaves a truncated conversation.
type FileStore struct {
	path string

	mu       sync.RWMutex
	messages []Message
}

// NewFileStore opens the conversation stored at path. A missing file is an
// empty conversation; it is created on the first Append.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	var stored storedConversation
	err := fileutil.ReadJSON(path, &stored)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open conversation: %w", err)
	default:
		s.messages = stored.Messages
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Append(msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("append message: empty id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(s.messages[:len(s.messages):len(s.messages)], msg)
	if err := fileutil.WriteJSONAtomic(s.path, storedConversation{Messages: next}, 0600); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	s.messages = next
	return nil
}

func (s *FileStore) Messages() ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}
