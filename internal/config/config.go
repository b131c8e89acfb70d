package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"

	PrunePolicyAny  = "any"
	PrunePolicyGone = "gone"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

type Config struct {
	Port           int      `envconfig:"PORT" default:"8080"`
	APIKey         string   `envconfig:"API_KEY"`
	VerboseLogging bool     `envconfig:"VERBOSE_LOGGING" default:"false"`
	LogFormat      string   `envconfig:"LOG_FORMAT" default:"text"`
	RateLimit      int      `envconfig:"RATE_LIMIT" default:"100"`
	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	StoragePath string `envconfig:"STORAGE_PATH" default:"./data/washbell.db"`
	RedisURL    string `envconfig:"REDIS_URL" default:"localhost:6379"`
	RedisKey    string `envconfig:"REDIS_KEY" default:"washbell:subscriptions"`

	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT" default:"mailto:admin@example.com"`

	PushTTL             int           `envconfig:"PUSH_TTL" default:"86400"`
	DeliveryTimeout     time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
	DeliveryConcurrency int           `envconfig:"DELIVERY_CONCURRENCY" default:"16"`
	PrunePolicy         string        `envconfig:"PRUNE_POLICY" default:"any"`

	IconPath     string `envconfig:"ICON_PATH" default:"/icons/icon-192x192.jpg"`
	MessagesFile string `envconfig:"MESSAGES_FILE"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.PrunePolicy = strings.ToLower(strings.TrimSpace(cfg.PrunePolicy))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverSQLite, StoreDriverRedis:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, sqlite or redis)", c.StoreDriver)
	}

	switch c.PrunePolicy {
	case PrunePolicyAny, PrunePolicyGone:
	default:
		return fmt.Errorf("unknown PRUNE_POLICY %q (want any or gone)", c.PrunePolicy)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want text or json)", c.LogFormat)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.DeliveryConcurrency <= 0 {
		return fmt.Errorf("DELIVERY_CONCURRENCY must be positive, got %d", c.DeliveryConcurrency)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive, got %s", c.DeliveryTimeout)
	}
	if c.StoreDriver == StoreDriverSQLite && c.StoragePath == "" {
		return fmt.Errorf("STORAGE_PATH is required for the sqlite store")
	}

	return nil
}

func (c *Config) IsVAPIDConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func (c *Config) IsAuthEnabled() bool {
	return c.APIKey != ""
}
