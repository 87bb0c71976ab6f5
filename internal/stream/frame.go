package stream

import (
	"bytes"
	"encoding/json"
	"errors"
)

// AckToken is the bare text acknowledgment exchanged with the server.
const AckToken = "pong"

// Control frame type markers.
const (
	typeConnectionEstablished = "connection_established"
	typePing                  = "ping"
)

// ErrMalformedFrame is returned by Classify for frames that are not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameKind is the closed set of inbound frame classifications.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameAck
	FrameHandshake
	FramePing
	FrameLog
)

func (k FrameKind) String() string {
	switch k {
	case FrameAck:
		return "ack"
	case FrameHandshake:
		return "handshake"
	case FramePing:
		return "ping"
	case FrameLog:
		return "log"
	default:
		return "unknown"
	}
}

// Frame is a classified inbound frame. Entry is only set for FrameLog.
type Frame struct {
	Kind  FrameKind
	Entry LogEntry
}

// Classify decodes raw into a Frame. The checks run in priority order:
// bare ack token, handshake marker, ping marker, complete log frame.
// Valid JSON that matches none of them is FrameUnknown; invalid JSON
// yields ErrMalformedFrame.
func Classify(raw []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == AckToken {
		return Frame{Kind: FrameAck}, nil
	}

	if !json.Valid(trimmed) {
		return Frame{}, ErrMalformedFrame
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		// Valid JSON but not an object (array, number, string...).
		return Frame{Kind: FrameUnknown}, nil
	}

	msgType := stringField(fields, "type")
	switch msgType {
	case typeConnectionEstablished:
		return Frame{Kind: FrameHandshake}, nil
	case typePing:
		return Frame{Kind: FramePing}, nil
	}

	entry := LogEntry{
		Timestamp: stringField(fields, "timestamp"),
		Level:     Level(stringField(fields, "level")),
		Message:   stringField(fields, "message"),
		Type:      msgType,
	}
	if entry.Timestamp == "" || entry.Level == "" || entry.Message == "" {
		return Frame{Kind: FrameUnknown}, nil
	}
	return Frame{Kind: FrameLog, Entry: entry}, nil
}

// stringField returns fields[key] when it holds a JSON string, else "".
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
