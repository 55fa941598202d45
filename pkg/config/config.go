package config

import (
	"os"
	"strings"
)

// Config holds process-level configuration for the simulator binaries.
type Config struct {
	LogLevel     string
	EventStore   string // "memory", "sqlite" or "postgres"
	DatabaseURL  string
	PolicyFile   string
	OTelEnabled  bool
	OTLPEndpoint string
	RedisAddr    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	eventStore := strings.ToLower(os.Getenv("EVENT_STORE"))
	if eventStore == "" {
		eventStore = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		switch eventStore {
		case "postgres":
			dbURL = "postgres://dao@localhost:5432/dao?sslmode=disable"
		default:
			dbURL = "file:data/events.db?_pragma=busy_timeout(5000)"
		}
	}

	otlp := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlp == "" {
		otlp = "localhost:4317"
	}

	return &Config{
		LogLevel:     strings.ToUpper(logLevel),
		EventStore:   eventStore,
		DatabaseURL:  dbURL,
		PolicyFile:   os.Getenv("POLICY_FILE"),
		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint: otlp,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
	}
}

// SQLDriver maps the configured event store to a database/sql driver name.
// It returns "" for the in-memory store.
func (c *Config) SQLDriver() string {
	switch c.EventStore {
	case "sqlite":
		return "sqlite"
	case "postgres":
		return "postgres"
	default:
		return ""
	}
}
