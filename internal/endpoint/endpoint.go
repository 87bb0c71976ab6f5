// Package endpoint derives the backend URLs for a session from configuration.
//
// Both the log stream and the recommendation endpoint share one host and
// one security decision: secure schemes are used when the host matches a
// known production pattern or when the page origin itself is https.
package endpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/hummingbird-labs/hummingbird/internal/config"
)

// ErrNoHost is returned when neither a host override nor a page origin is available.
var ErrNoHost = errors.New("no backend host configured")

// Resolver builds session-scoped URLs. It is immutable and safe for concurrent use.
type Resolver struct {
	host   string
	secure bool
}

// New creates a Resolver from the API configuration.
// A missing host override degrades to the page origin's host with a warning.
func New(cfg config.APIConfig, logger *slog.Logger) (*Resolver, error) {
	var pageScheme, pageHost string
	if cfg.PageOrigin != "" {
		u, err := url.Parse(cfg.PageOrigin)
		if err != nil {
			return nil, fmt.Errorf("parse page origin: %w", err)
		}
		pageScheme, pageHost = strings.ToLower(u.Scheme), u.Host
	}

	host, hostScheme := splitScheme(strings.TrimSpace(cfg.Host))
	if host == "" {
		if pageHost == "" {
			return nil, ErrNoHost
		}
		if logger != nil {
			logger.Warn("API host not configured, falling back to page host", "host", pageHost)
		}
		host = pageHost
	}

	secure := pageScheme == "https" ||
		hostScheme == "https" || hostScheme == "wss" ||
		MatchesProduction(host, cfg.ProductionHosts)

	r := &Resolver{host: host, secure: secure}
	if logger != nil {
		logger.Debug("Resolved backend endpoint", "host", host, "secure", secure)
	}
	return r, nil
}

// Host returns the backend host[:port].
func (r *Resolver) Host() string {
	return r.host
}

// Secure reports whether wss/https are used.
func (r *Resolver) Secure() bool {
	return r.secure
}

// StreamURL returns the log stream URL for a session.
func (r *Resolver) StreamURL(sessionID string) string {
	scheme := "ws"
	if r.secure {
		scheme = "wss"
	}
	return scheme + "://" + r.host + "/ws/logs/" + url.PathEscape(sessionID)
}

// ProductsURL returns the recommendation endpoint URL for a session.
func (r *Resolver) ProductsURL(sessionID string) string {
	scheme := "http"
	if r.secure {
		scheme = "https"
	}
	return scheme + "://" + r.host + "/api/v1/products/" + url.PathEscape(sessionID)
}

// MatchesProduction reports whether host (optionally with a port) matches any
// of the glob patterns, e.g. "*.up.railway.app".
func MatchesProduction(host string, patterns []string) bool {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.ToLower(hostname)

	for _, p := range patterns {
		if ok, err := path.Match(strings.ToLower(p), hostname); err == nil && ok {
			return true
		}
	}
	return false
}

// splitScheme accepts either "host[:port]" or "scheme://host[:port][/...]".
func splitScheme(raw string) (host, scheme string) {
	if raw == "" {
		return "", ""
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	return u.Host, strings.ToLower(u.Scheme)
}
