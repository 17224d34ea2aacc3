package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"trackhub/internal/progress"
	"trackhub/pkg/config"
)

type TrackingConfig struct {
	// Weighting is "equal" (default) or "feature".
	Weighting string `yaml:"weighting"`
}

type OutboxConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
}

type WorkerConfig struct {
	Queue    string        `yaml:"queue"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
	RetryTTL time.Duration `yaml:"retry_ttl"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	JWT      config.JWTConfig    `yaml:"jwt"`
	Server   config.ServerConfig `yaml:"server"`
	OTel     config.OTelConfig   `yaml:"otel"`
	Tracking TrackingConfig      `yaml:"tracking"`
	Outbox   OutboxConfig        `yaml:"outbox"`
	Worker   WorkerConfig        `yaml:"worker"`
}

// Load 使用统一配置中心加载配置：base.yaml + <env>.yaml，环境变量优先级最高
func Load(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := defaults()
	if err := config.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOTelFromEnv(&cfg.OTel)
	overrideTrackingFromEnv(&cfg.Tracking)

	switch cfg.Tracking.Weighting {
	case "equal", "feature":
	default:
		return nil, fmt.Errorf("tracking.weighting must be equal or feature, got %q", cfg.Tracking.Weighting)
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return cfg, nil
}

// LoadFromEnv reads CONFIG_ENV and CONFIG_DIR.
func LoadFromEnv() (*Config, error) {
	return Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func defaults() *Config {
	return &Config{
		Server:   config.ServerConfig{Port: ":8080"},
		Tracking: TrackingConfig{Weighting: "equal"},
		Outbox: OutboxConfig{
			MaxRetries: 5,
			Interval:   time.Second,
			BatchSize:  100,
		},
		Worker: WorkerConfig{
			Queue:    "progress.recomputed.q",
			DedupTTL: time.Hour,
			RetryTTL: time.Hour,
		},
	}
}

func overrideTrackingFromEnv(cfg *TrackingConfig) {
	if w := os.Getenv("TRACKING_WEIGHTING"); w != "" {
		cfg.Weighting = w
	}
}

func (c *Config) Weighting() progress.Weighting {
	return progress.ParseWeighting(c.Tracking.Weighting)
}

// ServerAddr normalises "8080" to ":8080".
func (c *Config) ServerAddr() string {
	port := c.Server.Port
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}
