package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Concurrency limits shared by submission and post-processing.
const (
	DefaultConcurrency            = 3
	MinConcurrency                = 1
	MaxConcurrency                = 10
	DefaultMaxConsecutiveFailures = 10
	DefaultPostProcessConcurrency = 1
)

// File names inside a data directory.
const (
	ClaimsFile      = "claims.ndjson"
	TrackerFile     = "submitted.json"
	TrackerDBFile   = "submitted.db"
	ResultLogSubdir = "submission-logs"
)

var (
	ErrInvalidConcurrency = eris.New("concurrency must be between 1 and 10")
	ErrInvalidConfig      = eris.New("invalid configuration")
)

// Config holds the full application configuration.
type Config struct {
	Submit      SubmitConfig      `yaml:"submit" mapstructure:"submit"`
	PostProcess PostProcessConfig `yaml:"postprocess" mapstructure:"postprocess"`
	Tracker     TrackerConfig     `yaml:"tracker" mapstructure:"tracker"`
	Backend     BackendConfig     `yaml:"backend" mapstructure:"backend"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// SubmitConfig configures the submission worker pool and watchdog.
type SubmitConfig struct {
	Concurrency            int           `yaml:"concurrency" mapstructure:"concurrency"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	RatePerSecond          float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst                  int           `yaml:"burst" mapstructure:"burst"`
	Timeout                time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PostProcessConfig configures follow-up automation after submission.
type PostProcessConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	Command     string        `yaml:"command" mapstructure:"command"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TrackerConfig selects where submission state is persisted.
type TrackerConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	Path        string        `yaml:"path" mapstructure:"path"`
	RedisAddr   string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// BackendConfig holds intake API settings.
type BackendConfig struct {
	Driver            string        `yaml:"driver" mapstructure:"driver"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	SubmitPath        string        `yaml:"submit_path" mapstructure:"submit_path"`
	Token             string        `yaml:"token" mapstructure:"token"`
	Username          string        `yaml:"username" mapstructure:"username"`
	Password          string        `yaml:"password" mapstructure:"password"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy         string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DryRunFailureRate float64       `yaml:"dryrun_failure_rate" mapstructure:"dryrun_failure_rate"`
}

// OutputConfig configures where result logs are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("submit.concurrency", DefaultConcurrency)
	v.SetDefault("submit.max_consecutive_failures", DefaultMaxConsecutiveFailures)
	v.SetDefault("submit.rate_per_second", 0.0)
	v.SetDefault("submit.burst", 1)
	v.SetDefault("submit.timeout", 90*time.Second)
	v.SetDefault("postprocess.enabled", true)
	v.SetDefault("postprocess.concurrency", DefaultPostProcessConcurrency)
	v.SetDefault("postprocess.timeout", 10*time.Minute)
	v.SetDefault("tracker.driver", "file")
	v.SetDefault("tracker.redis_addr", "localhost:6379")
	v.SetDefault("tracker.redis_prefix", "pfml:submitted")
	v.SetDefault("tracker.cache_ttl", 30*time.Minute)
	v.SetDefault("backend.driver", "http")
	// Keys without a real default are still registered so Unmarshal sees
	// values that only come from the environment.
	for _, key := range []string{
		"backend.base_url", "backend.token", "backend.username", "backend.password",
		"backend.http_proxy", "backend.https_proxy",
		"postprocess.command", "tracker.path", "output.dir",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("backend.dryrun_failure_rate", 0.0)
	v.SetDefault("backend.submit_path", "/v1/applications/submit")
	v.SetDefault("backend.user_agent", "pfml-submit/0.3")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from v, which may already carry bound flags and a
// config file. Missing config files are not an error.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("PFML_SUBMIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// An explicitly named file must exist; search paths are optional.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.ConfigFileUsed() != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks values that must be rejected rather than clamped.
func (c *Config) Validate() error {
	if c.Submit.Concurrency < MinConcurrency || c.Submit.Concurrency > MaxConcurrency {
		return eris.Wrapf(ErrInvalidConcurrency, "submit.concurrency=%d", c.Submit.Concurrency)
	}
	if c.PostProcess.Concurrency < MinConcurrency || c.PostProcess.Concurrency > MaxConcurrency {
		return eris.Wrapf(ErrInvalidConcurrency, "postprocess.concurrency=%d", c.PostProcess.Concurrency)
	}
	if c.Submit.MaxConsecutiveFailures < 1 {
		return eris.Wrapf(ErrInvalidConfig, "submit.max_consecutive_failures must be at least 1, got %d", c.Submit.MaxConsecutiveFailures)
	}
	if c.Submit.RatePerSecond < 0 {
		return eris.Wrapf(ErrInvalidConfig, "submit.rate_per_second must not be negative, got %g", c.Submit.RatePerSecond)
	}
	switch c.Tracker.Driver {
	case "file", "sqlite", "redis":
	default:
		return eris.Wrapf(ErrInvalidConfig, "unknown tracker.driver %q (supported: file, sqlite, redis)", c.Tracker.Driver)
	}
	switch c.Backend.Driver {
	case "http":
		if c.Backend.BaseURL == "" {
			return eris.Wrap(ErrInvalidConfig, "backend.base_url is required for the http backend")
		}
	case "dryrun":
		if c.Backend.DryRunFailureRate < 0 || c.Backend.DryRunFailureRate > 1 {
			return eris.Wrapf(ErrInvalidConfig, "backend.dryrun_failure_rate must be within [0,1], got %g", c.Backend.DryRunFailureRate)
		}
	default:
		return eris.Wrapf(ErrInvalidConfig, "unknown backend.driver %q (supported: http, dryrun)", c.Backend.Driver)
	}
	return nil
}

// ResolvePaths fills in tracker and output locations relative to dataDir
// when they were not configured explicitly.
func (c *Config) ResolvePaths(dataDir string) {
	if c.Tracker.Path == "" {
		switch c.Tracker.Driver {
		case "sqlite":
			c.Tracker.Path = filepath.Join(dataDir, TrackerDBFile)
		case "file":
			c.Tracker.Path = filepath.Join(dataDir, TrackerFile)
		}
	}
	if c.Output.Dir == "" {
		c.Output.Dir = filepath.Join(dataDir, ResultLogSubdir)
	}
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
