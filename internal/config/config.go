package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Quote        QuoteConfig        `yaml:"quote" mapstructure:"quote"`
	SES          SESConfig          `yaml:"ses" mapstructure:"ses"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Throttle     ThrottleConfig     `yaml:"throttle" mapstructure:"throttle"`
	Slybroadcast SlybroadcastConfig `yaml:"slybroadcast" mapstructure:"slybroadcast"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// QuoteConfig configures quote recalculation.
type QuoteConfig struct {
	MaxConcurrentRecalcs int `yaml:"max_concurrent_recalcs" mapstructure:"max_concurrent_recalcs"`
}

// SESConfig configures the email event webhook.
type SESConfig struct {
	VerifySignatures bool `yaml:"verify_signatures" mapstructure:"verify_signatures"`
	CertCacheSize    int  `yaml:"cert_cache_size" mapstructure:"cert_cache_size"`
}

// RedisConfig configures the shared Redis instance used for throttling.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ThrottleConfig configures keyed throttles.
type ThrottleConfig struct {
	// Backend is "redis" or "memory".
	Backend          string `yaml:"backend" mapstructure:"backend"`
	VoicemailSeconds int    `yaml:"voicemail_seconds" mapstructure:"voicemail_seconds"`
}

// SlybroadcastConfig holds voicemail-drop vendor settings.
type SlybroadcastConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	UID              string  `yaml:"uid" mapstructure:"uid"`
	Password         string  `yaml:"password" mapstructure:"password"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	DefaultCallerID  string  `yaml:"default_caller_id" mapstructure:"default_caller_id"`
	DefaultAudioFile string  `yaml:"default_audio_file" mapstructure:"default_audio_file"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PESTLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "pestline.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_secs", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("quote.max_concurrent_recalcs", 4)
	v.SetDefault("ses.verify_signatures", true)
	v.SetDefault("ses.cert_cache_size", 16)
	v.SetDefault("redis.url", "")
	v.SetDefault("throttle.backend", "memory")
	v.SetDefault("throttle.voicemail_seconds", 30)
	v.SetDefault("slybroadcast.enabled", false)
	v.SetDefault("slybroadcast.base_url", "https://www.mobile-sphere.com/gateway")
	v.SetDefault("slybroadcast.default_audio_file", "default_pest_control_message")
	v.SetDefault("slybroadcast.rate_limit_per_sec", 2.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields a command needs are present.
// Mode is one of "serve", "recalc", "migrate", "voicemail", "sizes" or
// "plans"; every mode needs a usable store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "recalc", "migrate", "voicemail", "sizes", "plans":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if mode == "recalc" || mode == "serve" {
		if c.Quote.MaxConcurrentRecalcs < 1 || c.Quote.MaxConcurrentRecalcs > 32 {
			problems = append(problems, "quote.max_concurrent_recalcs must be between 1 and 32")
		}
	}

	if mode == "serve" || mode == "voicemail" {
		switch c.Throttle.Backend {
		case "memory":
		case "redis":
			if c.Redis.URL == "" {
				problems = append(problems, "redis.url is required for the redis throttle backend")
			}
		default:
			problems = append(problems, "throttle.backend must be memory or redis")
		}
		if c.Slybroadcast.Enabled && (c.Slybroadcast.UID == "" || c.Slybroadcast.Password == "") {
			problems = append(problems, "slybroadcast.uid and slybroadcast.password are required when slybroadcast is enabled")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
