// Package config loads server configuration from defaults, an optional YAML
// file and VISITGUARD_* environment variables, in increasing precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/limiter"
)

// EnvPrefix is prepended to every environment override, e.g. VISITGUARD_SERVER_ADDR.
const EnvPrefix = "VISITGUARD"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	KMS      KMSConfig      `mapstructure:"kms"`
	Limits   limiter.Limits `mapstructure:"limits"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"` // empty disables /metrics
	TLSCert     string `mapstructure:"tls_cert"`
	TLSKey      string `mapstructure:"tls_key"`
	JWTKey      string `mapstructure:"jwt_key"`
	Reflection  bool   `mapstructure:"reflection"`
}

// DatabaseConfig selects the Postgres backend. An empty DSN keeps every
// store in memory.
type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// RedisConfig selects the Redis nonce store. An empty Addr keeps nonces in memory.
type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	NoncePrefix string `mapstructure:"nonce_prefix"`
}

// KMSConfig holds base64 key material for the local key service.
type KMSConfig struct {
	KeyID     string        `mapstructure:"key_id"`
	MasterKey string        `mapstructure:"master_key"`
	IndexSalt string        `mapstructure:"index_salt"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	FanOut            int           `mapstructure:"fan_out"`
	PerWebhookRPS     float64       `mapstructure:"per_webhook_rps"`
	NonceTTL          time.Duration `mapstructure:"nonce_ttl"`
	DeliveryRetention time.Duration `mapstructure:"delivery_retention"`
	JanitorInterval   time.Duration `mapstructure:"janitor_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.addr", ":8443")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.jwt_key", "")
	v.SetDefault("server.reflection", false)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.nonce_prefix", "visitguard:nonce:")

	v.SetDefault("kms.key_id", "local/default")
	v.SetDefault("kms.master_key", "")
	v.SetDefault("kms.index_salt", "")
	v.SetDefault("kms.timeout", 5*time.Second)

	d := limiter.DefaultLimits()
	v.SetDefault("limits.max_per_hour", d.MaxPerHour)
	v.SetDefault("limits.max_per_day", d.MaxPerDay)
	v.SetDefault("limits.max_per_visit", d.MaxPerVisit)

	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.user_agent", "visitguard-webhook/1")
	v.SetDefault("webhook.fan_out", 8)
	v.SetDefault("webhook.per_webhook_rps", 0.0)
	v.SetDefault("webhook.nonce_ttl", 24*time.Hour)
	v.SetDefault("webhook.delivery_retention", 30*24*time.Hour)
	v.SetDefault("webhook.janitor_interval", 10*time.Minute)
}

// Load reads configuration. path may be empty; a missing file is an error only
// when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("visitguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/visitguard")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.Server.JWTKey == "" {
		return fmt.Errorf("%w: server.jwt_key is required", errs.ErrValidation)
	}
	if _, err := c.KMS.Master(); err != nil {
		return err
	}
	if _, err := c.KMS.Salt(); err != nil {
		return err
	}
	if c.Webhook.NonceTTL <= 0 || c.Webhook.JanitorInterval <= 0 {
		return fmt.Errorf("%w: webhook.nonce_ttl and webhook.janitor_interval must be positive", errs.ErrValidation)
	}
	return nil
}

// Master decodes the 32-byte master key.
func (k KMSConfig) Master() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(k.MasterKey)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: kms.master_key must be 32 bytes of base64", errs.ErrValidation)
	}
	return b, nil
}

// Salt decodes the fixed blind index salt. Empty keeps a random salt per value.
func (k KMSConfig) Salt() ([]byte, error) {
	if k.IndexSalt == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(k.IndexSalt)
	if err != nil || len(b) < 16 {
		return nil, fmt.Errorf("%w: kms.index_salt must be at least 16 bytes of base64", errs.ErrValidation)
	}
	return b, nil
}
