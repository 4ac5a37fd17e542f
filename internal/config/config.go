package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	OIDC      OIDCConfig      `mapstructure:"oidc"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port string    `mapstructure:"port"`
	TLS  TLSConfig `mapstructure:"tls"`
}

// TLSConfig holds TLS-specific configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// DBConfig holds database-specific configuration.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CacheConfig holds configuration for the local SQLite cache.
type CacheConfig struct {
	FilePath string        `mapstructure:"file_path"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// OIDCConfig holds OIDC client configuration for bearer-token verification.
type OIDCConfig struct {
	IssuerURL string `mapstructure:"issuer_url"`
	ClientID  string `mapstructure:"client_id"`
}

// RedisConfig holds connection settings for the search-index event channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// LifecycleConfig holds the durations driving the ad lifecycle engine.
// The featured/promoted/refresh windows are deployment policy, so they
// live here rather than in the engine.
type LifecycleConfig struct {
	FeaturedDuration time.Duration `mapstructure:"featured_duration"`
	PromotedDuration time.Duration `mapstructure:"promoted_duration"`
	RefreshDuration  time.Duration `mapstructure:"refresh_duration"`
	AdLifetime       time.Duration `mapstructure:"ad_lifetime"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	BulkParallelism  int           `mapstructure:"bulk_parallelism"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("db.dsn", "classifieds:classifieds@tcp(localhost:3306)/classifieds?parseTime=true")
	viper.SetDefault("cache.file_path", "cache.db")
	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.channel", "classifieds:index")
	viper.SetDefault("lifecycle.featured_duration", "168h")
	viper.SetDefault("lifecycle.promoted_duration", "72h")
	viper.SetDefault("lifecycle.refresh_duration", "24h")
	viper.SetDefault("lifecycle.ad_lifetime", "720h")
	viper.SetDefault("lifecycle.sweep_interval", "15m")
	viper.SetDefault("lifecycle.bulk_parallelism", 8)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	// Set up viper to read from config file
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/go-classifieds-app/")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		// Config file not found; proceed with defaults and env vars
	}

	// Set up viper to read from environment variables
	viper.SetEnvPrefix("CLS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unmarshal the config into the Config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
