// Package config loads service settings from defaults, an optional YAML file
// and CALLVIEW_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CALLVIEW_SERVER_PORT.
const EnvPrefix = "CALLVIEW"

// Config holds all settings.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	TraceServer TraceServerConfig `mapstructure:"trace_server"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Playground  PlaygroundConfig  `mapstructure:"playground"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AccessToken string `mapstructure:"access_token"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TraceServerConfig points at the server that resolves references.
type TraceServerConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	BearerToken string        `mapstructure:"bearer_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// CacheConfig bounds the resolved-reference and derived-chat caches. When
// RedisAddr is set resolved references are shared through Redis.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Capacity      int           `mapstructure:"capacity"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
	ServiceName  string `mapstructure:"service_name"`
}

type PlaygroundConfig struct {
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	GeminiBaseURL    string `mapstructure:"gemini_base_url"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"`
}

var defaults = map[string]any{
	"server.host":                   "127.0.0.1",
	"server.port":                   8000,
	"server.access_token":           "",
	"log.level":                     "info",
	"log.development":               false,
	"trace_server.url":              "",
	"trace_server.api_key":          "",
	"trace_server.bearer_token":     "",
	"trace_server.timeout":          30 * time.Second,
	"trace_server.batch_size":       100,
	"trace_server.max_retries":      2,
	"cache.ttl":                     60 * time.Minute,
	"cache.capacity":                10000,
	"cache.redis_addr":              "",
	"cache.redis_password":          "",
	"cache.redis_db":                0,
	"telemetry.otlp_endpoint":       "",
	"telemetry.insecure":            false,
	"telemetry.service_name":        AppName,
	"playground.openai_base_url":    "",
	"playground.openai_api_key":     "",
	"playground.anthropic_base_url": "",
	"playground.anthropic_api_key":  "",
	"playground.gemini_base_url":    "",
	"playground.gemini_api_key":     "",
}

// New returns a viper instance with defaults and environment binding set
// up. Every key has a default so AutomaticEnv sees it during Unmarshal.
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.TraceServer.URL = strings.TrimRight(strings.TrimSpace(cfg.TraceServer.URL), "/")
	cfg.Server.AccessToken = strings.TrimSpace(cfg.Server.AccessToken)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	if c.TraceServer.BatchSize <= 0 {
		errs = append(errs, errors.New("trace_server.batch_size must be positive"))
	}
	if c.TraceServer.MaxRetries < 0 {
		errs = append(errs, errors.New("trace_server.max_retries must not be negative"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.capacity must be positive"))
	}
	return errors.Join(errs...)
}
