package trigger

import (
	"log/slog"
	"os"
	"time"
)

// Config holds the settings a Host is built from. Construct via
// DefaultConfig and override with Options.
type Config struct {
	APIKey       string
	Endpoint     string
	LogLevel     slog.Level
	ID           string
	TriggerTTL   time.Duration
	WorkflowID   string
	WorkflowName string
}

// DefaultConfig returns the base configuration, with APIKey and Endpoint
// falling back to TRIGGER_API_KEY/TRIGGER_WSS_URL when set in the
// process environment.
func DefaultConfig() Config {
	cfg := Config{
		Endpoint: "wss://wss.trigger.dev/ws",
		LogLevel: slog.LevelInfo,
	}
	if v := os.Getenv("TRIGGER_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TRIGGER_WSS_URL"); v != "" {
		cfg.Endpoint = v
	}
	return cfg
}
