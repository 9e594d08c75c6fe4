// Package config loads the host configuration: built-in defaults, then an
// optional YAML file, then EXILON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// PathEnv names the YAML file to load.
	PathEnv   = "EXILON_CONFIG"
	EnvPrefix = "EXILON_"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Database    DatabaseConfig    `yaml:"database" envPrefix:"DATABASE_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	Plugins     PluginsConfig     `yaml:"plugins" envPrefix:"PLUGINS_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Marketplace MarketplaceConfig `yaml:"marketplace" envPrefix:"MARKETPLACE_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// HostVersion is checked against the requires field of plugin manifests.
	HostVersion    string  `yaml:"host_version" env:"HOST_VERSION"`
	FallbackLocale string  `yaml:"fallback_locale" env:"FALLBACK_LOCALE"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	TrustProxy     bool    `yaml:"trust_proxy" env:"TRUST_PROXY"`
}

type DatabaseConfig struct {
	// URL is optional. Without it plugin state comes from configuration only.
	URL            string `yaml:"url" env:"URL"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type PluginsConfig struct {
	Root    string        `yaml:"root" env:"ROOT"`
	Enabled []string      `yaml:"enabled" env:"ENABLED" envSeparator:","`
	ScanTTL time.Duration `yaml:"scan_ttl" env:"SCAN_TTL"`
	// Settings are per-plugin key/values handed to providers at boot.
	Settings map[string]map[string]string `yaml:"settings"`
}

type RedisConfig struct {
	// Addr is optional. Without it discovery results are not shared.
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type MarketplaceConfig struct {
	IndexURL string        `yaml:"index_url" env:"INDEX_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// File additionally writes logs to a rotated file.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
			HostVersion:     "1.0.0",
			FallbackLocale:  "en",
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Database: DatabaseConfig{MigrationsPath: "migrations"},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-in-prod",
			TokenTTL:  15 * time.Minute,
		},
		Plugins: PluginsConfig{
			Root:    "plugins",
			ScanTTL: 5 * time.Minute,
		},
		Marketplace: MarketplaceConfig{Timeout: 10 * time.Second},
		Log:         LogConfig{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 5},
	}
}

// Load reads the file named by EXILON_CONFIG, if any, and applies the
// environment on top.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit file. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Plugins.Root == "" {
		errs = append(errs, errors.New("plugins.root is empty"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is empty"))
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("server rate limit must be positive"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or console", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// PluginSettings returns the settings block of one plugin, never nil.
func (c *Config) PluginSettings(id string) map[string]string {
	if s, ok := c.Plugins.Settings[id]; ok && s != nil {
		return s
	}
	return map[string]string{}
}
