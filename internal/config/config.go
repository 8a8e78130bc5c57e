package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	DataBackend  string
	SQLiteDBPath string

	// Extraction endpoint
	GeminiBaseURL  string
	GeminiModel    string
	GeminiAPIKeys  []string
	ExtractBackoff time.Duration

	// Notices
	NoticeVisibility time.Duration

	// AMQP (optional event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/voiceledger.db"),

		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiAPIKeys:  getEnvList("GEMINI_API_KEYS"),
		ExtractBackoff: getEnvDuration("EXTRACT_BACKOFF", 1500*time.Millisecond),

		NoticeVisibility: getEnvDuration("NOTICE_VISIBILITY", 4*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "voiceledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	switch c.DataBackend {
	case "memory", "sqlite":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// The extraction client needs at least one pooled credential.
	if len(c.GeminiAPIKeys) == 0 {
		errors = append(errors, "GEMINI_API_KEYS must list at least one key (comma-separated)")
	}
	for i, k := range c.GeminiAPIKeys {
		if strings.TrimSpace(k) == "" {
			errors = append(errors, fmt.Sprintf("GEMINI_API_KEYS entry %d is empty", i))
		}
	}
	if u, err := url.Parse(c.GeminiBaseURL); err != nil || u.Scheme == "" {
		errors = append(errors, fmt.Sprintf("invalid Gemini base URL '%s'", c.GeminiBaseURL))
	}
	if c.GeminiModel == "" {
		errors = append(errors, "Gemini model cannot be empty")
	}
	if c.ExtractBackoff < 0 || c.ExtractBackoff > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extract backoff %v: must be between 0 and 1 minute", c.ExtractBackoff))
	}

	if c.NoticeVisibility < time.Second || c.NoticeVisibility > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid notice visibility %v: must be between 1 second and 1 minute", c.NoticeVisibility))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
