// Package config loads whiteboard settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"whiteboard/internal/codec"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Redis  RedisConfig
	Sync   SyncConfig
	Limits LimitsConfig
	Log    LogConfig
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type StoreConfig struct {
	Backend      string
	FieldCeiling int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig tunes the board reconciler.
type SyncConfig struct {
	WriteInterval time.Duration
	EchoWindow    time.Duration
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	MaxAttempts   int
	PollInterval  time.Duration
}

// LimitsConfig bounds what a feed connection may do.
type LimitsConfig struct {
	MaxMessageSize    int
	MaxObjects        int
	MessagesPerSecond float64
	Burst             int
	MaxRooms          int
	// RoomIdle is how long an empty room keeps its store subscription.
	RoomIdle time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads envFile (if non-empty and present) and then the process
// environment. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("LISTEN_ADDR", ":8080"),
			AllowedOrigins: getList("ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			FieldCeiling: getInt("FIELD_CEILING", codec.DefaultCeiling),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Sync: DefaultSync(),
		Limits: LimitsConfig{
			MaxMessageSize:    getInt("MAX_MESSAGE_SIZE", 2<<20),
			MaxObjects:        getInt("MAX_OBJECTS", 5000),
			MessagesPerSecond: getFloat("MESSAGES_PER_SECOND", 30),
			Burst:             getInt("BURST", 10),
			MaxRooms:          getInt("MAX_ROOMS", 1000),
			RoomIdle:          getDuration("ROOM_IDLE_TIMEOUT", time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	cfg.Sync.WriteInterval = getDuration("WRITE_INTERVAL", cfg.Sync.WriteInterval)
	cfg.Sync.EchoWindow = getDuration("ECHO_WINDOW", cfg.Sync.EchoWindow)
	cfg.Sync.BackoffBase = getDuration("BACKOFF_BASE", cfg.Sync.BackoffBase)
	cfg.Sync.BackoffMax = getDuration("BACKOFF_MAX", cfg.Sync.BackoffMax)
	cfg.Sync.MaxAttempts = getInt("MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
	cfg.Sync.PollInterval = getDuration("POLL_INTERVAL", cfg.Sync.PollInterval)

	return cfg, cfg.Validate()
}

// DefaultSync returns the reconciler defaults.
func DefaultSync() SyncConfig {
	return SyncConfig{
		WriteInterval: 50 * time.Millisecond,
		EchoWindow:    100 * time.Millisecond,
		BackoffBase:   500 * time.Millisecond,
		BackoffMax:    10 * time.Second,
		MaxAttempts:   5,
		PollInterval:  5 * time.Second,
	}
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.FieldCeiling <= 0 {
		return errors.New("FIELD_CEILING must be positive")
	}

	durations := map[string]time.Duration{
		"WRITE_INTERVAL": c.Sync.WriteInterval,
		"ECHO_WINDOW":    c.Sync.EchoWindow,
		"BACKOFF_BASE":   c.Sync.BackoffBase,
		"BACKOFF_MAX":    c.Sync.BackoffMax,
		"POLL_INTERVAL":  c.Sync.PollInterval,

		"ROOM_IDLE_TIMEOUT": c.Limits.RoomIdle,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Sync.BackoffMax < c.Sync.BackoffBase {
		return errors.New("BACKOFF_MAX must not be below BACKOFF_BASE")
	}
	if c.Sync.MaxAttempts <= 0 {
		return errors.New("MAX_ATTEMPTS must be positive")
	}
	if c.Limits.MaxMessageSize <= 0 || c.Limits.MaxObjects <= 0 {
		return errors.New("MAX_MESSAGE_SIZE and MAX_OBJECTS must be positive")
	}
	if c.Limits.MessagesPerSecond <= 0 || c.Limits.Burst <= 0 {
		return errors.New("MESSAGES_PER_SECOND and BURST must be positive")
	}
	if c.Limits.MaxRooms <= 0 {
		return errors.New("MAX_ROOMS must be positive")
	}
	return nil
}

// getEnv returns the variable or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDuration accepts Go durations ("250ms") or bare integers as seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getList splits a comma-separated variable, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
