// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrBotTokenRequired is returned when BOT_TOKEN is not set.
	ErrBotTokenRequired = errors.New("config: BOT_TOKEN is required")
	// ErrAdminIDRequired is returned when ADMIN_ID is not set.
	ErrAdminIDRequired = errors.New("config: ADMIN_ID is required")
)

// User store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Config holds all configuration for the application.
type Config struct {
	// Telegram settings
	BotToken string `env:"BOT_TOKEN, required" json:"-"` // Masked in JSON
	AdminID  int64  `env:"ADMIN_ID, required" json:"admin_id"`

	// HTTP health endpoint; 0 disables it
	Port int `env:"HTTP_PORT, default=8080" json:"port" validate:"min=0,max=65535"`

	// Storage settings
	TempDir        string        `env:"TEMP_DIR, default=/tmp/screenshot-bot" json:"temp_dir" validate:"required"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES, default=20971520" json:"max_upload_bytes" validate:"min=0"` // 0 disables the limit
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL, default=10m" json:"sweep_interval"`
	SweepMaxAge    time.Duration `env:"SWEEP_MAX_AGE, default=6h" json:"sweep_max_age"`

	// Processing settings
	FFmpegPath          string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath         string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	FFmpegTimeout       time.Duration `env:"FFMPEG_TIMEOUT, default=2m" json:"ffmpeg_timeout"`
	MaxConcurrentFrames int           `env:"MAX_CONCURRENT_FRAMES, default=1" json:"max_concurrent_frames" validate:"min=1,max=20"`

	// Broadcast settings
	BroadcastDelay time.Duration `env:"BROADCAST_DELAY, default=100ms" json:"broadcast_delay"`

	// User store settings
	UserStore             string `env:"USER_STORE, default=memory" json:"user_store" validate:"oneof=memory postgres dynamodb"`
	PostgresDSN           string `env:"POSTGRES_DSN" json:"-"` // Masked in JSON
	DynamoDBUsersTable    string `env:"DYNAMODB_USERS_TABLE, default=users" json:"dynamodb_users_table"`
	DynamoDBCountersTable string `env:"DYNAMODB_COUNTERS_TABLE, default=counters" json:"dynamodb_counters_table"`
	DynamoDBEndpoint      string `env:"DYNAMODB_ENDPOINT" json:"dynamodb_endpoint,omitempty"`
	AWSRegion             string `env:"AWS_REGION" json:"aws_region,omitempty"`

	// Optional Redis counter
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// HTTPEnabled returns true if the health endpoint should be served.
func (c *Config) HTTPEnabled() bool {
	return c.Port > 0
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "BOT_TOKEN") {
			return nil, ErrBotTokenRequired
		}
		if strings.Contains(err.Error(), "ADMIN_ID") {
			return nil, ErrAdminIDRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return ErrBotTokenRequired
	}
	if c.AdminID == 0 {
		return ErrAdminIDRequired
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.UserStore == StorePostgres && c.PostgresDSN == "" {
		return fmt.Errorf("config: POSTGRES_DSN is required when USER_STORE=%s", StorePostgres)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{AdminID: %d, Port: %d, TempDir: %s, MaxConcurrentFrames: %d, UserStore: %s, RedisAddr: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.AdminID,
		c.Port,
		c.TempDir,
		c.MaxConcurrentFrames,
		c.UserStore,
		c.RedisAddr,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
