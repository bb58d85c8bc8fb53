package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Mongo configuration
	Mongo MongoConfig

	// Redis configuration (optional; messenger degrades without it)
	Redis RedisConfig

	// Guild configuration
	Guild GuildConfig

	// Observability configuration
	Observability ObservabilityConfig

	// PositionsFile is the path to the declared-positions YAML file
	PositionsFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// MongoConfig holds document store configuration
type MongoConfig struct {
	URI      string
	Database string

	// FeedMode selects how caches track the store: "streaming" (change
	// streams, needs a replica set) or "polling"
	FeedMode string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// GuildConfig holds the guild topology and sync schedule
type GuildConfig struct {
	// HostGuildID is the guild whose membership is authoritative
	HostGuildID string

	// ClientUserID is the user id this deployment's platform client acts as
	ClientUserID string

	// SyncGuildIDs are the secondary guilds rank roles are mirrored to
	SyncGuildIDs []string

	// SyncSchedule is the cron expression for the periodic full sync
	SyncSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GUILDKEEPER_HOST", "0.0.0.0"),
			Port:            getEnv("GUILDKEEPER_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GUILDKEEPER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GUILDKEEPER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GUILDKEEPER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GUILDKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Mongo: MongoConfig{
			URI:      getEnv("GUILDKEEPER_MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("GUILDKEEPER_MONGO_DATABASE", "guildkeeper"),
			FeedMode: getEnv("GUILDKEEPER_FEED_MODE", "streaming"),
		},
		Redis: RedisConfig{
			URL:      getEnv("GUILDKEEPER_REDIS_URL", ""),
			Password: getEnv("GUILDKEEPER_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GUILDKEEPER_REDIS_DB", 0),
		},
		Guild: GuildConfig{
			HostGuildID:  getEnv("GUILDKEEPER_HOST_GUILD_ID", ""),
			ClientUserID: getEnv("GUILDKEEPER_CLIENT_USER_ID", "guildkeeper"),
			SyncGuildIDs: splitList(getEnv("GUILDKEEPER_SYNC_GUILD_IDS", "")),
			SyncSchedule: getEnv("GUILDKEEPER_SYNC_SCHEDULE", "@every 20m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("GUILDKEEPER_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("GUILDKEEPER_METRICS_ENABLED", true),
		},
		PositionsFile: getEnv("GUILDKEEPER_POSITIONS_FILE", "positions.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo URI is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database is required")
	}
	if c.Mongo.FeedMode != "streaming" && c.Mongo.FeedMode != "polling" {
		return fmt.Errorf("feed mode must be streaming or polling, got %q", c.Mongo.FeedMode)
	}
	if c.Guild.HostGuildID == "" {
		return fmt.Errorf("host guild id is required")
	}
	if c.Guild.SyncSchedule == "" {
		return fmt.Errorf("sync schedule is required")
	}
	if c.PositionsFile == "" {
		return fmt.Errorf("positions file is required")
	}
	return nil
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
