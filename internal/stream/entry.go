package stream

import "strings"

// Level is the severity carried by a log frame.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Known reports whether l is one of INFO, WARN or ERROR (case-insensitive).
func (l Level) Known() bool {
	switch Level(strings.ToUpper(string(l))) {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// LogEntry is one server-side log line delivered over the stream.
type LogEntry struct {
	// Timestamp is an ISO-8601 string as sent by the server.
	Timestamp string `json:"timestamp"`
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	// Type is an optional control tag some servers attach to log frames.
	Type string `json:"type,omitempty"`
}
