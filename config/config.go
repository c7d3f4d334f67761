package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Doku       DokuConfig       `mapstructure:"doku"`
	Digiflazz  DigiflazzConfig  `mapstructure:"digiflazz"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// IdentityConfig configures verification of customer bearer tokens issued
// by the external identity provider (HS256 shared secret).
type IdentityConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type AdminConfig struct {
	KeyHash string `mapstructure:"key_hash"` // argon2id encoded hash of the admin API key
}

type EncryptionConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type DokuConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	ClientID         string        `mapstructure:"client_id"`
	SecretKey        string        `mapstructure:"secret_key"`
	NotificationPath string        `mapstructure:"notification_path"`
	CallbackURL      string        `mapstructure:"callback_url"`
	PaymentDueMins   int           `mapstructure:"payment_due_minutes"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxClockSkew     time.Duration `mapstructure:"max_clock_skew"` // 0 disables the check
}

type DigiflazzConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Username string        `mapstructure:"username"`
	APIKey   string        `mapstructure:"api_key"`
	Testing  bool          `mapstructure:"testing"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PollerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type ReconcilerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	MinAge    time.Duration `mapstructure:"min_age"`
	BatchSize int           `mapstructure:"batch_size"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from .env, file and environment variables.
// Environment variables override file values. Prefix: TOPUP_.
// Nested keys use underscore: TOPUP_DATABASE_HOST, TOPUP_DOKU_SECRET_KEY, etc.
func Load(path string) (*Config, error) {
	// .env is optional; values already present in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "topup_storefront")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("identity.secret", "")
	v.SetDefault("identity.issuer", "topup-identity")
	v.SetDefault("identity.expiry", "24h")
	v.SetDefault("admin.key_hash", "")
	v.SetDefault("encryption.key", "")
	v.SetDefault("doku.base_url", "https://api-sandbox.doku.com")
	v.SetDefault("doku.client_id", "")
	v.SetDefault("doku.secret_key", "")
	v.SetDefault("doku.notification_path", "/api/v1/payments/doku/notification")
	v.SetDefault("doku.callback_url", "")
	v.SetDefault("doku.payment_due_minutes", 60)
	v.SetDefault("doku.timeout", "15s")
	v.SetDefault("doku.max_clock_skew", "0s")
	v.SetDefault("digiflazz.base_url", "https://api.digiflazz.com")
	v.SetDefault("digiflazz.username", "")
	v.SetDefault("digiflazz.api_key", "")
	v.SetDefault("digiflazz.testing", false)
	v.SetDefault("digiflazz.timeout", "30s")
	v.SetDefault("poller.interval", "2s")
	v.SetDefault("poller.max_attempts", 10)
	v.SetDefault("poller.cache_ttl", "10m")
	v.SetDefault("reconciler.enabled", true)
	v.SetDefault("reconciler.interval", "1m")
	v.SetDefault("reconciler.min_age", "5m")
	v.SetDefault("reconciler.batch_size", 50)
	v.SetDefault("ratelimit.enabled", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// TOPUP_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TOPUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
