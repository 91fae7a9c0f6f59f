package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	MediaServer MediaServerConfig
	Tracker     TrackerConfig
	History     HistoryConfig
	Notify      NotifyConfig
}

// ServerConfig holds HTTP server settings for the operational API.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig holds API key and JWT settings for the operational API.
type AuthConfig struct {
	APIKey      string
	JWTSecret   string
	ExpireHours int
}

// MediaServerConfig holds connection settings for the remote media server.
type MediaServerConfig struct {
	URL            string // base URL, e.g. http://media.local:32400
	Token          string
	RequestTimeout int  // seconds, per snapshot fetch
	UseWebSocket   bool // subscribe to push state updates in addition to polling
}

// TrackerConfig tunes the reconciliation loop.
type TrackerConfig struct {
	PollIntervalSec   int
	GraceMissedPolls  int     // consecutive absent snapshots tolerated before a session is declared ended
	WatchedPercent    float64 // view offset / duration ratio that marks a play as watched
	BufferDebounceSec int     // window during which repeated buffering flaps emit one event
	QueueTicks        bool    // queue a trigger arriving mid-tick instead of dropping it
	EventBuffer       int     // per-consumer event channel capacity
	ShutdownGraceSec  int
}

// HistoryConfig tunes history persistence.
type HistoryConfig struct {
	MinWatchedSeconds int // sessions below this never create a history row; 0 disables the policy
	WriteTimeoutSec   int
	MaxAttempts       int
	RetryBackoffSec   int
}

// NotifyConfig tunes trigger evaluation and dispatch.
type NotifyConfig struct {
	AgentsFile         string // YAML file listing agent configs
	DedupWindowSec     int
	MaxAttempts        int
	BackoffBaseSec     int
	MaxInFlight        int
	DeliveryTimeoutSec int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8181"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/playsignal?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "playsignal"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			APIKey:      getEnv("API_KEY", ""),
			JWTSecret:   getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		MediaServer: MediaServerConfig{
			URL:            getEnv("MEDIA_SERVER_URL", "http://localhost:32400"),
			Token:          getEnv("MEDIA_SERVER_TOKEN", ""),
			RequestTimeout: getEnvInt("MEDIA_SERVER_TIMEOUT_SEC", 10),
			UseWebSocket:   getEnvBool("MEDIA_SERVER_WEBSOCKET", false),
		},
		Tracker: TrackerConfig{
			PollIntervalSec:   getEnvInt("POLL_INTERVAL_SEC", 10),
			GraceMissedPolls:  getEnvInt("GRACE_MISSED_POLLS", 3),
			WatchedPercent:    getEnvFloat("WATCHED_PERCENT", 0.85),
			BufferDebounceSec: getEnvInt("BUFFER_DEBOUNCE_SEC", 30),
			QueueTicks:        getEnvBool("QUEUE_TICKS", true),
			EventBuffer:       getEnvInt("EVENT_BUFFER", 256),
			ShutdownGraceSec:  getEnvInt("SHUTDOWN_GRACE_SEC", 10),
		},
		History: HistoryConfig{
			MinWatchedSeconds: getEnvInt("HISTORY_MIN_WATCHED_SEC", 0),
			WriteTimeoutSec:   getEnvInt("HISTORY_WRITE_TIMEOUT_SEC", 5),
			MaxAttempts:       getEnvInt("HISTORY_MAX_ATTEMPTS", 3),
			RetryBackoffSec:   getEnvInt("HISTORY_RETRY_BACKOFF_SEC", 2),
		},
		Notify: NotifyConfig{
			AgentsFile:         getEnv("AGENTS_CONFIG", "agents.yaml"),
			DedupWindowSec:     getEnvInt("NOTIFY_DEDUP_WINDOW_SEC", 60),
			MaxAttempts:        getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
			BackoffBaseSec:     getEnvInt("NOTIFY_BACKOFF_BASE_SEC", 2),
			MaxInFlight:        getEnvInt("NOTIFY_MAX_INFLIGHT", 16),
			DeliveryTimeoutSec: getEnvInt("NOTIFY_DELIVERY_TIMEOUT_SEC", 15),
		},
	}

	if cfg.Tracker.GraceMissedPolls < 1 {
		return nil, fmt.Errorf("GRACE_MISSED_POLLS must be >= 1")
	}
	if cfg.Tracker.WatchedPercent <= 0 || cfg.Tracker.WatchedPercent > 1 {
		return nil, fmt.Errorf("WATCHED_PERCENT must be in (0, 1]")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
