package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/access-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Server      ServerConfig                `yaml:"server" mapstructure:"server"`
	Log         LogConfig                   `yaml:"log" mapstructure:"log"`
	Store       StoreConfig                 `yaml:"store" mapstructure:"store"`
	Access      AccessConfig                `yaml:"access" mapstructure:"access"`
	Session     SessionConfig               `yaml:"session" mapstructure:"session"`
	Provider    ProviderConfig              `yaml:"provider" mapstructure:"provider"`
	TravelModes map[string]TravelModeConfig `yaml:"travel_modes" mapstructure:"travel_modes" validate:"dive"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// StoreConfig configures the PostGIS database holding population and
// facility data. An empty URL disables database-backed loading.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AccessConfig configures multi-criteria aggregation.
type AccessConfig struct {
	NormalizeWeights  bool   `yaml:"normalize_weights" mapstructure:"normalize_weights"`
	DefaultTravelMode string `yaml:"default_travel_mode" mapstructure:"default_travel_mode" validate:"required"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"gt=0"`
}

// ProviderConfig selects and tunes the reachability provider.
type ProviderConfig struct {
	Kind        string        `yaml:"kind" mapstructure:"kind" validate:"oneof=local remote"`
	URL         string        `yaml:"url" mapstructure:"url" validate:"required_if=Kind remote"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig tunes retries of remote provider calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig tunes the remote provider's circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// TravelModeConfig holds the straight-line speed of a travel mode.
type TravelModeConfig struct {
	SpeedMPS float64 `yaml:"speed_mps" mapstructure:"speed_mps" validate:"gt=0"`
}

// Backoff converts the retry settings. Unset values keep resilience defaults.
func (r RetryConfig) Backoff() resilience.Backoff {
	b := resilience.DefaultBackoff()
	if r.MaxAttempts > 0 {
		b.Attempts = r.MaxAttempts
	}
	if r.InitialBackoffMs > 0 {
		b.Initial = time.Duration(r.InitialBackoffMs) * time.Millisecond
	}
	if r.MaxBackoffMs > 0 {
		b.Max = time.Duration(r.MaxBackoffMs) * time.Millisecond
	}
	if r.Multiplier > 0 {
		b.Multiplier = r.Multiplier
	}
	if r.JitterFraction >= 0 {
		b.Jitter = r.JitterFraction
	}
	return b
}

// Breaker converts the circuit settings. Unset values keep resilience
// defaults.
func (c CircuitConfig) Breaker() resilience.BreakerConfig {
	b := resilience.DefaultBreakerConfig()
	if c.FailureThreshold > 0 {
		b.Threshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		b.Cooldown = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return b
}

// Speeds returns travel speeds in metres per second keyed by mode.
func (c *Config) Speeds() map[string]float64 {
	out := make(map[string]float64, len(c.TravelModes))
	for name, m := range c.TravelModes {
		out[name] = m.SpeedMPS
	}
	return out
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	if _, ok := c.TravelModes[c.Access.DefaultTravelMode]; !ok {
		return eris.Errorf("config: default travel mode %q has no speed", c.Access.DefaultTravelMode)
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.database_url", "")
	v.SetDefault("access.normalize_weights", false)
	v.SetDefault("access.default_travel_mode", "driving-car")
	v.SetDefault("session.idle_timeout", "24h")
	v.SetDefault("session.sweep_interval", "1h")
	v.SetDefault("provider.kind", "local")
	v.SetDefault("provider.url", "")
	v.SetDefault("provider.timeout_secs", 60)
	v.SetDefault("provider.rate_limit", 10)
	v.SetDefault("provider.retry.max_attempts", 3)
	v.SetDefault("provider.retry.initial_backoff_ms", 500)
	v.SetDefault("provider.retry.max_backoff_ms", 10000)
	v.SetDefault("provider.retry.multiplier", 2.0)
	v.SetDefault("provider.retry.jitter_fraction", 0.25)
	v.SetDefault("provider.circuit.failure_threshold", 5)
	v.SetDefault("provider.circuit.reset_timeout_secs", 30)
	v.SetDefault("travel_modes.driving-car.speed_mps", 13.9)
	v.SetDefault("travel_modes.walking-foot.speed_mps", 1.39)
	v.SetDefault("travel_modes.cycling-regular.speed_mps", 4.17)

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
