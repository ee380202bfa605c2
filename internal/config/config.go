package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // "file" or "postgres"
	DataDir    string `mapstructure:"data_dir"`
	Watch      bool   `mapstructure:"watch"`
	Initialize bool   `mapstructure:"initialize"` // create missing collections at startup
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Schema          string        `mapstructure:"schema"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.Schema,
	)
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// AuthConfig lists API keys accepted on write endpoints. Empty disables the check.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// AnalyticsConfig tunes the analytics engine's data sources and fallback policy
type AnalyticsConfig struct {
	IncludeStandaloneControls bool          `mapstructure:"include_standalone_controls"`
	GapPlaceholder            bool          `mapstructure:"gap_placeholder"`
	CacheTTL                  time.Duration `mapstructure:"cache_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "compliance-lab")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8000)
	v.SetDefault("server.grpc_port", 9000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.watch", true)
	v.SetDefault("storage.initialize", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "compliance")
	v.SetDefault("database.dbname", "compliance")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "compliance:")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject_prefix", "compliance.records")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-API-Key"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("auth.api_keys", []string{})

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 120)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.time_format", time.RFC3339)

	v.SetDefault("analytics.include_standalone_controls", true)
	v.SetDefault("analytics.gap_placeholder", true)
	v.SetDefault("analytics.cache_ttl", time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from file and environment variables.
// A missing config file is not an error when no explicit path was given.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/compliance-lab")
	}

	v.SetEnvPrefix("COMPLIANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads configuration with default path
func LoadDefault() (*Config, error) {
	return Load("")
}

// Validate checks settings that would otherwise fail late at startup
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the file backend")
		}
	case "postgres":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit.requests_per_minute must be positive")
	}
	return nil
}
