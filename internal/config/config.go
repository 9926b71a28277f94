// Package config loads and validates the service configuration from a YAML
// file and environment variables.
package config

import (
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port" validate:"gt=0,lte=65535"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type UpstreamConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"required,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gt=0"`
}

type CacheConfig struct {
	MaxSize            int    `mapstructure:"max_size" validate:"gt=0"`
	TTLSeconds         int    `mapstructure:"ttl_seconds" validate:"gt=0"`
	NegativeTTLSeconds int    `mapstructure:"negative_ttl_seconds" validate:"gt=0"`
	KeyMode            string `mapstructure:"key_mode" validate:"oneof=hash plain both"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"gt=0"`
}

type RetryConfig struct {
	MaxAttempts     uint `mapstructure:"max_attempts" validate:"gt=0"`
	BaseDelayMillis int  `mapstructure:"base_delay_millis" validate:"gt=0"`
	MaxDelayMillis  int  `mapstructure:"max_delay_millis" validate:"gt=0"`
}

type BatchConfig struct {
	MaxWords    int `mapstructure:"max_words" validate:"gt=0"`
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
}

// DatabaseConfig configures the optional persistence of canonical upstream
// responses. Persistence is off while Host is empty.
type DatabaseConfig struct {
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds"`
}

// Enabled reports whether a database host has been configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/naverdict")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("upstream.base_url", "https://korean.dict.naver.com/api3")
	v.SetDefault("upstream.timeout_seconds", 30)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.negative_ttl_seconds", 300)
	v.SetDefault("cache.key_mode", "hash")
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_millis", 500)
	v.SetDefault("retry.max_delay_millis", 30000)
	v.SetDefault("batch.max_words", 10)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "naverdict")
	v.SetDefault("database.username", "user")

	// The upstream base URL may be overridden for testing against a stub.
	if err := v.BindEnv("upstream.base_url", "NAVER_BASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind NAVER_BASE_URL environment variable: %w", err)
	}

	// Bind the database password to an environment variable only, keeping it
	// out of config files.
	if err := v.BindEnv("database.password", "DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PASSWORD environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}
