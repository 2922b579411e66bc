// Package config loads gateway configuration from a YAML file and
// environment variables (CONTENTGW_ prefix). Environment values override
// file values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	Retry    RetryConfig    `koanf:"retry"`
	Cache    CacheConfig    `koanf:"cache"`
	Services ServicesConfig `koanf:"services"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRequestSize int64         `koanf:"max_request_size"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
}

type CacheConfig struct {
	Capacity int `koanf:"capacity"`
}

// ServicesConfig holds base URLs for the generation collaborators.
type ServicesConfig struct {
	ComposerURL  string `koanf:"composer_url"`
	SEOURL       string `koanf:"seo_url"`
	SanitizerURL string `koanf:"sanitizer_url"`
	ProductsURL  string `koanf:"products_url"`
	ImagesURL    string `koanf:"images_url"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"server.port":             8080,
		"server.request_timeout":  "30s",
		"server.max_request_size": 1 << 20,
		"database.driver":         "sqlite",
		"database.dsn":            "./data/gateway.db",
		"redis.addr":              "localhost:6379",
		"retry.max_attempts":      3,
		"retry.base_delay":        "100ms",
		"cache.capacity":          500,
		"logging.level":           "info",
		"logging.format":          "json",
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	// CONTENTGW_SERVER_PORT -> server.port (only the first underscore splits
	// the section from the key; key names keep their underscores).
	if err := k.Load(env.Provider("CONTENTGW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CONTENTGW_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
