package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. HMS_DATABASE_HOST.
const EnvPrefix = "HMS"

type Config struct {
	Server       ServerConfig       `mapstructure:"server" envconfig:"server"`
	Database     DatabaseConfig     `mapstructure:"database" envconfig:"database"`
	Redis        RedisConfig        `mapstructure:"redis" envconfig:"redis"`
	Queue        QueueConfig        `mapstructure:"queue" envconfig:"queue"`
	Triage       TriageConfig       `mapstructure:"triage" envconfig:"triage"`
	Outbox       OutboxConfig       `mapstructure:"outbox" envconfig:"outbox"`
	Notification NotificationConfig `mapstructure:"notification" envconfig:"notification"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Audit        AuditConfig        `mapstructure:"audit" envconfig:"audit"`
	Logging      LoggingConfig      `mapstructure:"logging" envconfig:"logging"`
	CORS         CORSConfig         `mapstructure:"cors" envconfig:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" envconfig:"port"`
	Mode            string        `mapstructure:"mode" envconfig:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" envconfig:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" envconfig:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" envconfig:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"host"`
	Port            int           `mapstructure:"port" envconfig:"port"`
	User            string        `mapstructure:"user" envconfig:"user"`
	Password        string        `mapstructure:"password" envconfig:"password"`
	Name            string        `mapstructure:"name" envconfig:"name"`
	SSLMode         string        `mapstructure:"sslmode" envconfig:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"conn_max_lifetime"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"url"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"min_idle_conns"`
}

type QueueConfig struct {
	AverageConsultationMinutes float64       `mapstructure:"average_consultation_minutes" envconfig:"average_consultation_minutes"`
	HistoryWindow              int           `mapstructure:"history_window" envconfig:"history_window"`
	AverageCacheTTL            time.Duration `mapstructure:"average_cache_ttl" envconfig:"average_cache_ttl"`
	MaxNumberAttempts          int           `mapstructure:"max_number_attempts" envconfig:"max_number_attempts"`
	Timezone                   string        `mapstructure:"timezone" envconfig:"timezone"`
}

// Location resolves the timezone used for day boundaries of queue numbers.
func (c QueueConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type TriageConfig struct {
	ReassessmentPollInterval time.Duration `mapstructure:"reassessment_poll_interval" envconfig:"reassessment_poll_interval"`
	AlertDedupTTL            time.Duration `mapstructure:"alert_dedup_ttl" envconfig:"alert_dedup_ttl"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" envconfig:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval" envconfig:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts" envconfig:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"retry_delay"`
	Lease         time.Duration `mapstructure:"lease" envconfig:"lease"`
	RetentionDays int           `mapstructure:"retention_days" envconfig:"retention_days"`
}

type NotificationConfig struct {
	Enabled         bool     `mapstructure:"enabled" envconfig:"enabled"`
	SMTPHost        string   `mapstructure:"smtp_host" envconfig:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port" envconfig:"smtp_port"`
	Username        string   `mapstructure:"username" envconfig:"username"`
	Password        string   `mapstructure:"password" envconfig:"password"`
	From            string   `mapstructure:"from" envconfig:"from"`
	TriageDeskEmail []string `mapstructure:"triage_desk_email" envconfig:"triage_desk_email"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" envconfig:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"requests_per_second"`
	Burst             int     `mapstructure:"burst" envconfig:"burst"`
}

type AuditConfig struct {
	Enabled         bool          `mapstructure:"enabled" envconfig:"enabled"`
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"cleanup_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" envconfig:"level"`
	Format string `mapstructure:"format" envconfig:"format"`
}

// LoggerConfig maps the logging section onto pkg/logger. Format "console"
// switches to the human-readable writer.
func (c LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    strings.EqualFold(c.Format, "console"),
	}
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" envconfig:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods" envconfig:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers" envconfig:"allowed_headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "hospital")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("queue.average_consultation_minutes", 15)
	v.SetDefault("queue.history_window", 20)
	v.SetDefault("queue.average_cache_ttl", "5m")
	v.SetDefault("queue.max_number_attempts", 3)
	v.SetDefault("queue.timezone", "Local")

	v.SetDefault("triage.reassessment_poll_interval", "1m")
	v.SetDefault("triage.alert_dedup_ttl", "2h")

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "500ms")
	v.SetDefault("outbox.lease", "30s")
	v.SetDefault("outbox.retention_days", 7)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.smtp_port", 587)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.cleanup_interval", "24h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"})
}

// LoadConfig reads config.yaml from path, or from the usual search paths when
// path is empty, then applies HMS_* environment overrides. A missing file is
// only an error when path was given explicitly.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0:
		return fmt.Errorf("server.port must be positive")
	case c.Queue.MaxNumberAttempts <= 0:
		return fmt.Errorf("queue.max_number_attempts must be positive")
	case c.Queue.HistoryWindow <= 0:
		return fmt.Errorf("queue.history_window must be positive")
	case c.Outbox.BatchSize <= 0:
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if _, err := c.Queue.Location(); err != nil {
		return fmt.Errorf("queue.timezone: %w", err)
	}
	return nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		Lease:         c.Lease,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
