package stream

import "sync"

// LogStore receives the ordered, append-only log sequence of a session.
// Implementations must be safe for concurrent use.
type LogStore interface {
	// Append adds entry at the end of the sequence.
	Append(entry LogEntry)
	// Entries returns a copy of the sequence in insertion order.
	Entries() []LogEntry
	// Len returns the sequence length.
	Len() int
	// Reset discards the sequence. It is only called when the session changes.
	Reset()
}

// MemoryLogStore is the default in-memory LogStore.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewMemoryLogStore creates an empty store.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) Append(entry LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *MemoryLogStore) Entries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemoryLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryLogStore) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
