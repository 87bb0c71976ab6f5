package devserver

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AccessLogConfig holds configuration for the request log.
type AccessLogConfig struct {
	// Path is the file path for the access log.
	// Empty string disables access logging.
	Path string

	// MaxSizeMB is the maximum size of the log file in megabytes before rotation.
	// Default: 10MB
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	// Default: 1
	MaxBackups int
}

// DefaultAccessLogConfig returns the default access log configuration.
func DefaultAccessLogConfig() AccessLogConfig {
	return AccessLogConfig{
		MaxSizeMB:  10,
		MaxBackups: 1,
	}
}

// AccessLogger writes one line per request to a rotated file. A nil
// *AccessLogger is valid and logs nothing.
type AccessLogger struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

// NewAccessLogger returns nil when cfg.Path is empty.
func NewAccessLogger(cfg AccessLogConfig) *AccessLogger {
	if cfg.Path == "" {
		return nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups < 0 {
		maxBackups = 1
	}

	return &AccessLogger{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize, // megabytes
			MaxBackups: maxBackups,
		},
	}
}

// Close closes the underlying file.
func (a *AccessLogger) Close() error {
	if a == nil || a.writer == nil {
		return nil
	}
	return a.writer.Close()
}

// AccessEntry is a single access log line.
type AccessEntry struct {
	Timestamp    time.Time
	ClientIP     string
	Method       string
	Path         string
	SessionID    string
	StatusCode   int
	BytesWritten int
	Duration     time.Duration
	UserAgent    string
	// Event classifies the request: stream, ok, rate_limited or error.
	Event string
}

// Write appends entry to the log.
// Format: timestamp ip "method path" status bytes duration_ms "user-agent" event [session=id]
func (a *AccessLogger) Write(entry AccessEntry) {
	if a == nil || a.writer == nil {
		return
	}

	line := fmt.Sprintf("%s %s \"%s %s\" %d %d %dms \"%s\" %s",
		entry.Timestamp.Format(time.RFC3339),
		entry.ClientIP,
		entry.Method,
		entry.Path,
		entry.StatusCode,
		entry.BytesWritten,
		entry.Duration.Milliseconds(),
		escapeQuotes(entry.UserAgent),
		entry.Event,
	)
	if entry.SessionID != "" {
		line += " session=" + entry.SessionID
	}
	line += "\n"

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = io.WriteString(a.writer, line)
}

// Middleware logs every request once the handler returns. Stream requests
// are logged when the stream ends.
func (a *AccessLogger) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 && isUpgrade(r) {
			// The upgrader writes the 101 on the hijacked connection.
			status = http.StatusSwitchingProtocols
		} else if status == 0 {
			status = http.StatusOK
		}

		a.Write(AccessEntry{
			Timestamp:    start,
			ClientIP:     clientIP(r),
			Method:       r.Method,
			Path:         r.URL.Path,
			SessionID:    chi.URLParam(r, "sessionID"),
			StatusCode:   status,
			BytesWritten: ww.BytesWritten(),
			Duration:     time.Since(start),
			UserAgent:    r.UserAgent(),
			Event:        accessEvent(status),
		})
	})
}

func accessEvent(status int) string {
	switch {
	case status == http.StatusSwitchingProtocols:
		return "stream"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 400:
		return "error"
	default:
		return "ok"
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// escapeQuotes escapes quotes in a string for log safety.
func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
