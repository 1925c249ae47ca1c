package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port      string          `yaml:"port" validate:"required"`
	DBPath    string          `yaml:"db_path" validate:"required"`
	JWTSecret string          `yaml:"jwt_secret" validate:"required"`
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
}

// RateLimitConfig controls per-client request limiting
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst" validate:"gt=0"`
}

// QueueConfig controls the background regeneration machinery
type QueueConfig struct {
	InvalidationInterval time.Duration `yaml:"invalidation_interval" validate:"gt=0"`
	HighPriorityInterval time.Duration `yaml:"high_priority_interval" validate:"gt=0"`
	LowPriorityInterval  time.Duration `yaml:"low_priority_interval" validate:"gt=0"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
	RetryDelay           time.Duration `yaml:"retry_delay" validate:"gte=0"`
	MaxRetries           int           `yaml:"max_retries" validate:"gte=1"`
	MaxInvalidationRetry int           `yaml:"max_invalidation_retries" validate:"gte=1"`
	MaxBatchSize         int           `yaml:"max_batch_size" validate:"gte=1"`
	TaskBatchSize        int           `yaml:"task_batch_size" validate:"gte=1"`
	Retention            time.Duration `yaml:"retention" validate:"gt=0"`
	DeletionStrategy     string        `yaml:"favorite_deletion_strategy" validate:"oneof=KEEP_NAME REVERT_TO_GEOCODING"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:      ":8080",
		DBPath:    "./data/timeline.db",
		JWTSecret: "your-secret-key-change-in-production",
		LogLevel:  "info",
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Queue: QueueConfig{
			InvalidationInterval: 5 * time.Second,
			HighPriorityInterval: 10 * time.Second,
			LowPriorityInterval:  time.Minute,
			CleanupInterval:      time.Hour,
			RetryDelay:           5 * time.Minute,
			MaxRetries:           3,
			MaxInvalidationRetry: 3,
			MaxBatchSize:         20,
			TaskBatchSize:        10,
			Retention:            7 * 24 * time.Hour,
			DeletionStrategy:     "KEEP_NAME",
		},
	}
}

var validate = validator.New()

// Load reads configuration from an optional YAML file named by
// TIMELINE_CONFIG, then from environment variables, and validates it
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TIMELINE_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = i
		}
	}
	if v := os.Getenv("REGEN_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.RetryDelay = d
		}
	}
	if v := os.Getenv("REGEN_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxRetries = i
		}
	}
	if v := os.Getenv("REGEN_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.Retention = d
		}
	}
	if v := os.Getenv("INVALIDATION_MAX_BATCH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxBatchSize = i
		}
	}
	if v := os.Getenv("FAVORITE_DELETION_STRATEGY"); v != "" {
		cfg.Queue.DeletionStrategy = v
	}
}
