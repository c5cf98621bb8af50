package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Cosmic     CosmicConfig     `mapstructure:"cosmic"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CosmicConfig addresses the remote content store. The keys are not
// validated here; the client rejects calls made without them.
type CosmicConfig struct {
	Backend    string        `mapstructure:"backend"`
	BaseURL    string        `mapstructure:"base_url"`
	BucketSlug string        `mapstructure:"bucket_slug"`
	ReadKey    string        `mapstructure:"read_key"`
	WriteKey   string        `mapstructure:"write_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Fixtures   string        `mapstructure:"fixtures"`
}

type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Type            string        `mapstructure:"type"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RateLimitConfig limits requests per client address. X-Forwarded-For is
// only honoured when the peer matches TrustedProxies (IPs or CIDRs).
type RateLimitConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
	Burst             int      `mapstructure:"burst"`
	TrustedProxies    []string `mapstructure:"trusted_proxies"`
}

type AssistantConfig struct {
	Provider   string         `mapstructure:"provider"`
	ReplyDelay time.Duration  `mapstructure:"reply_delay"`
	ReplyText  string         `mapstructure:"reply_text"`
	Endpoint   EndpointConfig `mapstructure:"endpoint"`
}

type EndpointConfig struct {
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// DefaultDemoReply is what the demo assistant answers with.
const DefaultDemoReply = "This is a demo response. In production, this would connect to your AI service API to generate intelligent responses based on the selected model and system prompt."

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("cosmic.backend", "remote")
	v.SetDefault("cosmic.base_url", "https://api.cosmicjs.com/v3")
	v.SetDefault("cosmic.timeout", 15*time.Second)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 60*time.Second)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "aipro:")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.trusted_proxies", []string{})

	v.SetDefault("assistant.provider", "demo")
	v.SetDefault("assistant.reply_delay", 1500*time.Millisecond)
	v.SetDefault("assistant.reply_text", DefaultDemoReply)
	v.SetDefault("assistant.endpoint.max_tokens", 1024)
	v.SetDefault("assistant.endpoint.temperature", 0.7)
	v.SetDefault("assistant.endpoint.max_retries", 3)
	v.SetDefault("assistant.endpoint.timeout", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})
	v.SetDefault("i18n.directory", "configs/i18n")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.BindEnv("cosmic.bucket_slug", "COSMIC_BUCKET_SLUG")
	v.BindEnv("cosmic.read_key", "COSMIC_READ_KEY")
	v.BindEnv("cosmic.write_key", "COSMIC_WRITE_KEY")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("cache.redis.password", "REDIS_PASSWORD")
	v.BindEnv("cache.redis.db", "REDIS_DB")
	v.BindEnv("assistant.endpoint.api_key", "ASSISTANT_API_KEY")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Cache.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	switch cfg.Cosmic.Backend {
	case "remote", "memory":
	default:
		return fmt.Errorf("unsupported cosmic backend: %s", cfg.Cosmic.Backend)
	}
	if cfg.Cache.Enabled {
		switch cfg.Cache.Type {
		case "memory", "redis":
		default:
			return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
		}
	}
	switch cfg.Assistant.Provider {
	case "demo":
	case "endpoint":
		if cfg.Assistant.Endpoint.BaseURL == "" || cfg.Assistant.Endpoint.Model == "" {
			return fmt.Errorf("assistant endpoint requires base_url and model")
		}
	default:
		return fmt.Errorf("unsupported assistant provider: %s", cfg.Assistant.Provider)
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit requests_per_minute must be positive")
	}
	for _, proxy := range cfg.RateLimit.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid trusted proxy: %s", proxy)
		}
	}
	return nil
}
