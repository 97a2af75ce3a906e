package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type GatewayConfig struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RetryConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID      string
	ListenAddr     string
	SessionPasskey string
	QueueCapacity  int

	Gateway GatewayConfig
	Redis   RedisConfig
	Retry   RetryConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SESSION_PASSKEY"); val != "" {
		logger.Debug("Overriding config value", "key", "SESSION_PASSKEY", "source", "env")
		cfg.SessionPasskey = val
	}
	if val := os.Getenv("QUEUE_CAPACITY"); val != "" {
		if capacity, err := strconv.Atoi(val); err == nil && capacity > 0 {
			logger.Debug("Overriding config value", "key", "QUEUE_CAPACITY", "source", "env")
			cfg.QueueCapacity = capacity
		}
	}

	// Gateway Overrides
	if val := os.Getenv("GATEWAY_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "GATEWAY_URL", "source", "env")
		cfg.Gateway.Endpoint = val
	}
	if val := os.Getenv("GATEWAY_SERVER_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "GATEWAY_SERVER_KEY", "source", "env")
		cfg.Gateway.ServerKey = val
	}
	if val := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			cfg.Gateway.Timeout = time.Duration(secs) * time.Second
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Retry Window Overrides
	if val := os.Getenv("RETRY_MIN_DELAY_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			cfg.Retry.MinDelay = time.Duration(secs) * time.Second
		}
	}
	if val := os.Getenv("RETRY_MAX_DELAY_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			cfg.Retry.MaxDelay = time.Duration(secs) * time.Second
		}
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.Gateway.ServerKey == "" {
		return nil, fmt.Errorf("gateway server key is required (set via YAML or GATEWAY_SERVER_KEY env var)")
	}
	if cfg.SessionPasskey == "" {
		return nil, fmt.Errorf("session passkey is required (set via YAML or SESSION_PASSKEY env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxDelay > 0 && cfg.Retry.MaxDelay <= cfg.Retry.MinDelay {
		return nil, fmt.Errorf("retry max delay must exceed min delay")
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
