package offq

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration.
type Config struct {
	// Backend
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Token          string        `yaml:"token"`
	TokenRefresh   string        `yaml:"token_refresh_path"`

	// Control API
	ListenAddr string `yaml:"listen_addr"`

	// Storage ("sqlite", "postgres" or "memory")
	Store       string `yaml:"store"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
	QueueKey    string `yaml:"queue_key"`
	MaxQueueLen int    `yaml:"max_queue_len"`

	// NATS (optional)
	NATSURL             string `yaml:"nats_url"`
	ConnectivitySubject string `yaml:"connectivity_subject"`
	PublishEvents       bool   `yaml:"publish_events"`
	Source              string `yaml:"source"`

	// Reachability probing (0 disables)
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbePath     string        `yaml:"probe_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	host, _ := os.Hostname()
	return Config{
		RequestTimeout:      30 * time.Second,
		ListenAddr:          "127.0.0.1:8787",
		Store:               "sqlite",
		SQLitePath:          defaultSQLitePath(),
		QueueKey:            DefaultQueueKey,
		ConnectivitySubject: SubjectConnectivity,
		Source:              host,
		ProbePath:           "/health",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

func defaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return dir + string(os.PathSeparator) + "offq" + string(os.PathSeparator) + "queue.db"
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// (if non-empty) and environment variables, in that order of precedence.
// The result is not validated; commands that need a complete configuration
// call Validate.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.BaseURL = envOr("OFFQ_BASE_URL", cfg.BaseURL)
	cfg.RequestTimeout = envDuration("OFFQ_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.Token = envOr("OFFQ_TOKEN", cfg.Token)
	cfg.TokenRefresh = envOr("OFFQ_TOKEN_REFRESH_PATH", cfg.TokenRefresh)
	cfg.ListenAddr = envOr("OFFQ_LISTEN_ADDR", cfg.ListenAddr)
	cfg.Store = envOr("OFFQ_STORE", cfg.Store)
	cfg.SQLitePath = envOr("OFFQ_SQLITE_PATH", cfg.SQLitePath)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.QueueKey = envOr("OFFQ_QUEUE_KEY", cfg.QueueKey)
	cfg.MaxQueueLen = envInt("OFFQ_MAX_QUEUE_LEN", cfg.MaxQueueLen)
	cfg.NATSURL = envOr("NATS_URL", cfg.NATSURL)
	cfg.ConnectivitySubject = envOr("OFFQ_CONNECTIVITY_SUBJECT", cfg.ConnectivitySubject)
	cfg.PublishEvents = envBool("OFFQ_EVENTS", cfg.PublishEvents)
	cfg.Source = envOr("OFFQ_SOURCE", cfg.Source)
	cfg.ProbeInterval = envDuration("OFFQ_PROBE_INTERVAL", cfg.ProbeInterval)
	cfg.ProbePath = envOr("OFFQ_PROBE_PATH", cfg.ProbePath)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)

	return &cfg, nil
}

// Validate checks required settings and combinations.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("OFFQ_BASE_URL is required")
	}
	switch c.Store {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("OFFQ_SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store %q: must be sqlite, postgres or memory", c.Store)
	}
	if c.PublishEvents && c.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when OFFQ_EVENTS is enabled")
	}
	if c.MaxQueueLen < 0 {
		return fmt.Errorf("OFFQ_MAX_QUEUE_LEN must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
