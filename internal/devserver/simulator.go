package devserver

import (
	"math/rand"
	"time"

	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

// ProgressMessages are emitted, in order, as INFO log frames on every stream.
var ProgressMessages = []string{
	"Getting the best tools for the job...",
	"Refining your fine idea...",
	"Analyzing market trends...",
	"Generating innovative solutions...",
	"Crafting unique value propositions...",
	"Designing user-friendly interfaces...",
	"Optimizing for market fit...",
	"Finalizing product details...",
}

// Simulator produces the progress log sequence of one stream.
// The first entry is due immediately; each later one after a random
// interval in [Min, Max].
type Simulator struct {
	Min, Max time.Duration
	Messages []string
	Now      func() time.Time

	next int
}

// NewSimulator creates a simulator over ProgressMessages.
func NewSimulator(lo, hi time.Duration) *Simulator {
	return &Simulator{Min: lo, Max: hi, Messages: ProgressMessages, Now: time.Now}
}

// Next returns the next entry and the delay before the one after it.
// ok is false once every message has been produced.
func (s *Simulator) Next() (entry stream.LogEntry, delay time.Duration, ok bool) {
	if s.next >= len(s.Messages) {
		return stream.LogEntry{}, 0, false
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	entry = stream.LogEntry{
		Timestamp: now().UTC().Format(time.RFC3339Nano),
		Level:     stream.LevelInfo,
		Message:   s.Messages[s.next],
	}
	s.next++
	return entry, s.interval(), true
}

// Remaining returns how many entries are left.
func (s *Simulator) Remaining() int {
	return len(s.Messages) - s.next
}

func (s *Simulator) interval() time.Duration {
	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + time.Duration(rand.Int63n(int64(s.Max-s.Min+1)))
}
