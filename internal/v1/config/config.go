package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Listen
	Port           string
	AllowedOrigins []string

	// Room model
	MaxParticipants int
	RoomIdleTimeout time.Duration
	SweepInterval   time.Duration

	// Transport keepalive
	PingInterval time.Duration
	PongTimeout  time.Duration

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	// Cross-instance bus
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Rate limits (format "N-P", e.g. "100-M" = 100 per minute)
	RateLimitWsIP string

	// Tracing
	OtelEnabled       bool
	OtelCollectorAddr string
}

// Defaults for the room and transport knobs.
const (
	DefaultPort            = "3001"
	DefaultMaxParticipants = 50
	DefaultIdleMinutes     = 60
	DefaultSweepMinutes    = 5
	DefaultPingSeconds     = 25
	DefaultPongSeconds     = 60
)

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error if any variable is present but invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// PORT (defaults to 3001)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// ALLOWED_ORIGINS (CSV, defaults to the local frontend)
	cfg.AllowedOrigins = parseOrigins(os.Getenv("ALLOWED_ORIGINS"), []string{"http://localhost:3000"})

	// Room knobs
	var err error
	cfg.MaxParticipants, err = intEnv("MAX_PARTICIPANTS_PER_ROOM", DefaultMaxParticipants)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.MaxParticipants < 1 {
		errs = append(errs, fmt.Sprintf("MAX_PARTICIPANTS_PER_ROOM must be at least 1 (got %d)", cfg.MaxParticipants))
	}

	idleMinutes, err := intEnv("ROOM_IDLE_TIMEOUT_MINUTES", DefaultIdleMinutes)
	if err != nil {
		errs = append(errs, err.Error())
	} else if idleMinutes < 1 {
		errs = append(errs, fmt.Sprintf("ROOM_IDLE_TIMEOUT_MINUTES must be at least 1 (got %d)", idleMinutes))
	}
	cfg.RoomIdleTimeout = time.Duration(idleMinutes) * time.Minute

	sweepMinutes, err := intEnv("SWEEP_INTERVAL_MINUTES", DefaultSweepMinutes)
	if err != nil {
		errs = append(errs, err.Error())
	} else if sweepMinutes < 1 {
		errs = append(errs, fmt.Sprintf("SWEEP_INTERVAL_MINUTES must be at least 1 (got %d)", sweepMinutes))
	}
	cfg.SweepInterval = time.Duration(sweepMinutes) * time.Minute

	// Keepalive: the ping interval must leave room for a pong before the
	// read deadline expires.
	pingSeconds, err := intEnv("PING_INTERVAL_SECONDS", DefaultPingSeconds)
	if err != nil {
		errs = append(errs, err.Error())
	}
	pongSeconds, err := intEnv("PONG_TIMEOUT_SECONDS", DefaultPongSeconds)
	if err != nil {
		errs = append(errs, err.Error())
	}
	if pingSeconds < 1 || pongSeconds < 1 {
		errs = append(errs, "PING_INTERVAL_SECONDS and PONG_TIMEOUT_SECONDS must be at least 1")
	} else if pingSeconds >= pongSeconds {
		errs = append(errs, fmt.Sprintf("PING_INTERVAL_SECONDS (%d) must be smaller than PONG_TIMEOUT_SECONDS (%d)", pingSeconds, pongSeconds))
	}
	cfg.PingInterval = time.Duration(pingSeconds) * time.Second
	cfg.PongTimeout = time.Duration(pongSeconds) * time.Second

	// GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// Conditional: REDIS_ADDR (used only when REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollectorAddr == "" {
			errs = append(errs, "OTEL_COLLECTOR_ADDR is required when OTEL_ENABLED=true")
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// IsDevelopment reports whether the hub runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// parseOrigins splits a CSV origin list, trimming entries and dropping empties.
func parseOrigins(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return fallback
	}
	return origins
}

// intEnv parses an integer environment variable with a default.
func intEnv(key string, defaultValue int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got '%s')", key, raw)
	}
	return v, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

// getEnvOrDefault returns the value of the environment variable or a default value if unset or empty
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
