package config

import (
	"log/slog"
	"time"
)

type YamlGatewayConfig struct {
	Endpoint       string `yaml:"endpoint"`
	ServerKey      string `yaml:"server_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlRetryConfig struct {
	MinDelaySeconds int `yaml:"min_delay_seconds"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
}

// YamlConfig is the structure that mirrors the raw local.yaml file.
type YamlConfig struct {
	ProjectID      string            `yaml:"project_id"`
	ListenAddr     string            `yaml:"listen_addr"`
	SessionPasskey string            `yaml:"session_passkey"`
	QueueCapacity  int               `yaml:"queue_capacity"`
	GatewayConfig  YamlGatewayConfig `yaml:"gateway"`
	RedisConfig    YamlRedisConfig   `yaml:"redis"`
	RetryConfig    YamlRetryConfig   `yaml:"retry"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		SessionPasskey: baseCfg.SessionPasskey,
		QueueCapacity:  baseCfg.QueueCapacity,
		Gateway: GatewayConfig{
			Endpoint:  baseCfg.GatewayConfig.Endpoint,
			ServerKey: baseCfg.GatewayConfig.ServerKey,
			Timeout:   time.Duration(baseCfg.GatewayConfig.TimeoutSeconds) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Retry: RetryConfig{
			MinDelay: time.Duration(baseCfg.RetryConfig.MinDelaySeconds) * time.Second,
			MaxDelay: time.Duration(baseCfg.RetryConfig.MaxDelaySeconds) * time.Second,
		},
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"gateway_endpoint", cfg.Gateway.Endpoint,
	)

	return cfg, nil
}
