// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the chat relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection fixed-window
// message rate limiting.
type RateLimitConfig struct {
	Window      time.Duration
	MaxMessages int
}

// Config holds the relay configuration. It is an explicit value handed to
// the hub and handlers; the package keeps no ambient configuration state.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	MaxPlaintextLen int
	MaxEncryptedLen int
	RateLimit       RateLimitConfig
	PingInterval    time.Duration
	PongTimeout     time.Duration
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":8765",
		AllowedOrigins:  []string{"*"},
		MaxPlaintextLen: 4096,
		MaxEncryptedLen: 8 * 4096,
		RateLimit: RateLimitConfig{
			Window:      2 * time.Second,
			MaxMessages: 10,
		},
		PingInterval: 20 * time.Second,
		PongTimeout:  10 * time.Second,
	}
}

// NewConfigFromEnv creates a Config from environment variables, falling
// back to default values for anything unset or unparsable.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if v := os.Getenv("MAX_PLAINTEXT_LEN"); v != "" {
		cfg.MaxPlaintextLen = parseIntValue(v, cfg.MaxPlaintextLen)
		cfg.MaxEncryptedLen = 8 * cfg.MaxPlaintextLen
	}
	if v := os.Getenv("MAX_ENCRYPTED_LEN"); v != "" {
		cfg.MaxEncryptedLen = parseIntValue(v, cfg.MaxEncryptedLen)
	}
	if v := os.Getenv("RATE_WINDOW_SECONDS"); v != "" {
		cfg.RateLimit.Window = parseSeconds(v, cfg.RateLimit.Window)
	}
	if v := os.Getenv("RATE_MAX_MSGS"); v != "" {
		cfg.RateLimit.MaxMessages = parseIntValue(v, cfg.RateLimit.MaxMessages)
	}
	if v := os.Getenv("PING_INTERVAL_SECONDS"); v != "" {
		cfg.PingInterval = parseSeconds(v, cfg.PingInterval)
	}
	if v := os.Getenv("PONG_TIMEOUT_SECONDS"); v != "" {
		cfg.PongTimeout = parseSeconds(v, cfg.PongTimeout)
	}

	return &cfg
}

// sanitized returns a copy of cfg with every zero or negative setting
// replaced by its default, so a partially filled Config is always safe.
func (cfg Config) sanitized() Config {
	def := defaultConfig()

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MaxPlaintextLen <= 0 {
		cfg.MaxPlaintextLen = def.MaxPlaintextLen
	}
	if cfg.MaxEncryptedLen <= 0 {
		cfg.MaxEncryptedLen = 8 * cfg.MaxPlaintextLen
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.RateLimit.MaxMessages <= 0 {
		cfg.RateLimit.MaxMessages = def.RateLimit.MaxMessages
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}

	return cfg
}

// readLimit is the transport-level cap on a single inbound frame: the
// largest allowed ciphertext plus slack for the JSON envelope around it.
func (cfg Config) readLimit() int64 {
	return int64(cfg.MaxEncryptedLen) + 1024
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
