package config

import (
	"os"
	"strconv"
	"time"

	"github.com/webrana/smtpcore/internal/smtp"
)

// Config holds all host-process configuration: the SMTP engine's
// parameters and the logger's.
type Config struct {
	SMTP    smtp.Config
	Logging LoggingConfig
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string // Log level: debug, info, warn, error (default: info)
	Format    string // Log format: json, text (default: json)
	Output    string // Log output: stdout, stderr, or file path (default: stdout)
	AddSource bool   // Add source file and line number to log entries (default: false)
}

// Load reads configuration from environment variables, falling back to
// smtp.DefaultConfig's values where no SMTP_* variable is set.
func Load() *Config {
	defaults := smtp.DefaultConfig(getEnv("SMTP_DOMAIN", "localhost"))

	return &Config{
		SMTP: smtp.Config{
			Domain:                  defaults.Domain,
			ListenHost:              getEnv("SMTP_LISTEN_HOST", defaults.ListenHost),
			ListenPort:              getIntEnv("SMTP_LISTEN_PORT", defaults.ListenPort),
			MaxConnections:          getIntEnv("SMTP_MAX_CONNECTIONS", defaults.MaxConnections),
			MaxConnectionsPerIP:     getIntEnv("SMTP_MAX_CONNECTIONS_PER_IP", defaults.MaxConnectionsPerIP),
			MaxMessageSize:          getInt64Env("SMTP_MAX_MESSAGE_SIZE", defaults.MaxMessageSize),
			MaxRecipientsPerMessage: getIntEnv("SMTP_MAX_RECIPIENTS", defaults.MaxRecipientsPerMessage),
			IdleTimeout:             getDurationSecondsEnv("SMTP_IDLE_TIMEOUT_SECONDS", defaults.IdleTimeout),
			DataTimeout:             getDurationSecondsEnv("SMTP_DATA_TIMEOUT_SECONDS", defaults.DataTimeout),
			CommandTimeout:          getDurationSecondsEnv("SMTP_COMMAND_TIMEOUT_SECONDS", defaults.CommandTimeout),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			Output:    getEnv("LOG_OUTPUT", "stdout"),
			AddSource: getBoolEnv("LOG_ADD_SOURCE", false),
		},
	}
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationSecondsEnv returns a duration, read as whole seconds, from
// environment variable or default.
func getDurationSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getIntEnv returns int from environment variable or default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getInt64Env returns int64 from environment variable or default.
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBoolEnv returns bool from environment variable or default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
