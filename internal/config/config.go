// Package config provides configuration management for PushGate.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	River     RiverConfig     `mapstructure:"river"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Security  SecurityConfig  `mapstructure:"security"`
	Push      PushConfig      `mapstructure:"push"`
	OneSignal OneSignalConfig `mapstructure:"onesignal"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSOrigins is the browser-origin allowlist. A literal "*" entry is
	// ignored unless UnsafeAllowAllOrigins is set.
	CORSOrigins           []string `mapstructure:"cors_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// A single pgxpool is shared by the store and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	DispatchPoolSize int `mapstructure:"dispatch_pool_size"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTExpiresIn  time.Duration `mapstructure:"jwt_expires_in"`
}

// PushConfig contains the VAPID web-push channel settings.
//
// PublicKey is the base64url-encoded application server key handed to
// browsers as push-subscription key material. Subscriber is the contact
// address the push service may use (webpush-go prepends mailto:).
type PushConfig struct {
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	Subscriber      string        `mapstructure:"subscriber"`
	WorkerScript    string        `mapstructure:"worker_script"`
	WorkerScope     string        `mapstructure:"worker_scope"`
	TTL             time.Duration `mapstructure:"ttl"`
}

// OneSignalConfig contains the OneSignal channel settings.
//
// AppID is required by the agent-side channel manager; its absence is a
// hard configuration error there, not at service boot (a deployment may
// run VAPID-only). RESTAPIKey is only needed server-side for dispatch.
type OneSignalConfig struct {
	AppID      string `mapstructure:"app_id"`
	RESTAPIKey string `mapstructure:"rest_api_key"`
	APIBaseURL string `mapstructure:"api_base_url"`

	// SDK readiness polling and the post-init settling delay used by the
	// agent-side channel manager.
	SDKPollInterval time.Duration `mapstructure:"sdk_poll_interval"`
	SDKPollAttempts int           `mapstructure:"sdk_poll_attempts"`
	InitSettleDelay time.Duration `mapstructure:"init_settle_delay"`
}

// RegistryConfig contains the agent-side registry client settings.
type RegistryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DispatchConfig contains notification dispatch settings.
type DispatchConfig struct {
	// RatePerMinute and Burst bound per-user delivery volume.
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	Burst         int     `mapstructure:"burst"`

	// SubscriptionRetention is how long an unseen subscription survives
	// before the periodic cleanup job prunes it.
	SubscriptionRetention time.Duration `mapstructure:"subscription_retention"`

	// TemplatesFile points at the message templates YAML.
	TemplatesFile string `mapstructure:"templates_file"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pushgate")

	// Maps nested config: onesignal.app_id becomes ONESIGNAL_APP_ID
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.JWTSigningKey == "" {
		return fmt.Errorf("security.jwt_signing_key must not be empty")
	}
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	if c.OneSignal.SDKPollAttempts <= 0 {
		return fmt.Errorf("onesignal.sdk_poll_attempts must be positive")
	}
	if c.Dispatch.RatePerMinute <= 0 {
		return fmt.Errorf("dispatch.rate_per_minute must be positive")
	}
	return nil
}

// ensureSecrets auto-generates missing secrets on first boot.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt signing key: %w", err)
		}
		c.Security.JWTSigningKey = secret
		logBootstrapWarn(
			"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pushgate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "pushgate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.dispatch_pool_size", 25)

	// Security
	v.SetDefault("security.jwt_issuer", "pushgate")
	v.SetDefault("security.jwt_expires_in", "24h")

	// Push (VAPID)
	v.SetDefault("push.worker_script", "/sw.js")
	v.SetDefault("push.worker_scope", "/")
	v.SetDefault("push.ttl", "24h")

	// OneSignal
	v.SetDefault("onesignal.api_base_url", "https://onesignal.com/api/v1")
	v.SetDefault("onesignal.sdk_poll_interval", "100ms")
	v.SetDefault("onesignal.sdk_poll_attempts", 50)
	v.SetDefault("onesignal.init_settle_delay", "1s")

	// Registry client
	v.SetDefault("registry.base_url", "http://localhost:8080")
	v.SetDefault("registry.timeout", "10s")

	// Dispatch
	v.SetDefault("dispatch.rate_per_minute", 1)
	v.SetDefault("dispatch.burst", 5)
	v.SetDefault("dispatch.subscription_retention", "4320h") // 180 days
	v.SetDefault("dispatch.templates_file", "templates.yaml")
}
