package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestViper(t *testing.T, dir string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(t, t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, DefaultConcurrency, cfg.Submit.Concurrency)
	assert.Equal(t, DefaultMaxConsecutiveFailures, cfg.Submit.MaxConsecutiveFailures)
	assert.Equal(t, 90*time.Second, cfg.Submit.Timeout)
	assert.Equal(t, DefaultPostProcessConcurrency, cfg.PostProcess.Concurrency)
	assert.True(t, cfg.PostProcess.Enabled)
	assert.Equal(t, "file", cfg.Tracker.Driver)
	assert.Equal(t, "http", cfg.Backend.Driver)
	assert.Equal(t, "/v1/applications/submit", cfg.Backend.SubmitPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
submit:
  concurrency: 8
  max_consecutive_failures: 4
  timeout: 30s
tracker:
  driver: sqlite
backend:
  driver: dryrun
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(newTestViper(t, dir))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Submit.Concurrency)
	assert.Equal(t, 4, cfg.Submit.MaxConsecutiveFailures)
	assert.Equal(t, 30*time.Second, cfg.Submit.Timeout)
	assert.Equal(t, "sqlite", cfg.Tracker.Driver)
	assert.Equal(t, "dryrun", cfg.Backend.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, DefaultPostProcessConcurrency, cfg.PostProcess.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("submit:\n  concurrency: 2\n"), 0644))
	t.Setenv("PFML_SUBMIT_SUBMIT_CONCURRENCY", "6")

	cfg, err := Load(newTestViper(t, dir))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Submit.Concurrency)
}

func TestLoadCredentialsFromEnvOnly(t *testing.T) {
	t.Setenv("PFML_SUBMIT_BACKEND_TOKEN", "env-token")
	t.Setenv("PFML_SUBMIT_BACKEND_BASE_URL", "https://paidleave-api.example.gov/api")

	cfg, err := Load(newTestViper(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Backend.Token)
	assert.Equal(t, "https://paidleave-api.example.gov/api", cfg.Backend.BaseURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}

func validConfig() *Config {
	cfg := Default()
	cfg.Backend.Driver = "dryrun"
	return cfg
}

func TestValidate_Concurrency(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		wantErr     bool
	}{
		{"zero", 0, true},
		{"negative", -1, true},
		{"min", 1, false},
		{"default", DefaultConcurrency, false},
		{"max", 10, false},
		{"above max", 11, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Submit.Concurrency = tt.concurrency
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConcurrency))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_PostProcessConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.PostProcess.Concurrency = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConcurrency))
}

func TestValidate_Other(t *testing.T) {
	cfg := validConfig()
	cfg.Submit.MaxConsecutiveFailures = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = validConfig()
	cfg.Tracker.Driver = "postgres"
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = validConfig()
	cfg.Backend.Driver = "http"
	cfg.Backend.BaseURL = ""
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg = validConfig()
	cfg.Backend.DryRunFailureRate = 1.5
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}

func TestResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.ResolvePaths("/data/run1")
	assert.Equal(t, filepath.Join("/data/run1", TrackerFile), cfg.Tracker.Path)
	assert.Equal(t, filepath.Join("/data/run1", ResultLogSubdir), cfg.Output.Dir)

	cfg = Default()
	cfg.Tracker.Driver = "sqlite"
	cfg.ResolvePaths("/data/run1")
	assert.Equal(t, filepath.Join("/data/run1", TrackerDBFile), cfg.Tracker.Path)

	cfg = Default()
	cfg.Tracker.Path = "/elsewhere/state.json"
	cfg.Output.Dir = "/logs"
	cfg.ResolvePaths("/data/run1")
	assert.Equal(t, "/elsewhere/state.json", cfg.Tracker.Path)
	assert.Equal(t, "/logs", cfg.Output.Dir)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
