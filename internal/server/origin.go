// Package server normalizes and validates HTTP origins for WebSocket
// requests to enforce the configured access control.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Printf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}

		allowed[normalizedOrigin] = struct{}{}
	}

	return allowed, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

// originChecker builds the CheckOrigin callback for the upgrader. Requests
// without an Origin header are accepted: terminal clients and other
// non-browser callers never send one. Browser requests must match the
// configured allow-list.
func originChecker(cfg Config) func(r *http.Request) bool {
	allowed, allowAll := normalizeOrigins(cfg.AllowedOrigins)

	return func(r *http.Request) bool {
		originHeader := r.Header.Get("Origin")
		if originHeader == "" {
			return true
		}

		if allowAll {
			return true
		}

		normalizedOrigin, ok := normalizeOrigin(originHeader)
		if ok {
			if _, exists := allowed[normalizedOrigin]; exists {
				return true
			}
		}

		log.Printf("Blocked WebSocket connection from disallowed origin: %q", originHeader)
		return false
	}
}
