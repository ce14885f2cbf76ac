package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentRequests)
	assert.Equal(t, 500, cfg.Import.BatchSize)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.ClassifyModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.ExtractModel)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "Boston", cfg.Pipeline.City)
	assert.InDelta(t, 0.75, cfg.Pipeline.TriageThreshold, 0.001)
	assert.InDelta(t, 0.80, cfg.Pipeline.ValidationThreshold, 0.001)
	assert.InDelta(t, 0.75, cfg.Pipeline.ClassificationThreshold, 0.001)
	assert.InDelta(t, 0.70, cfg.Pipeline.OverallThreshold, 0.001)
	assert.False(t, cfg.Geocode.Enabled)
	assert.Equal(t, "Boston, MA", cfg.Geocode.DefaultCity)
}

func TestLoadFromYAML(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_requests: 10
pipeline:
  city: Somerville
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentRequests)
	assert.Equal(t, "Somerville", cfg.Pipeline.City)
	// Defaults still apply for unset values
	assert.Equal(t, 500, cfg.Import.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRIAGE_STORE_DRIVER", "postgres")
	t.Setenv("TRIAGE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("TRIAGE_SERVER_PORT", "3000")
	t.Setenv("TRIAGE_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Batch.MaxConcurrentRequests = 5
	cfg.Pipeline.TriageThreshold = 0.75
	cfg.Pipeline.ValidationThreshold = 0.80
	cfg.Pipeline.ClassificationThreshold = 0.75
	cfg.Pipeline.OverallThreshold = 0.70
	cfg.Server.Port = 8080
	cfg.Import.BatchSize = 500
	return cfg
}

func TestValidateTriage_KeyPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("triage"))
}

func TestValidateTriage_MissingKey(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("triage")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidatePersist_MissingDB(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	err := cfg.Validate("persist")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidatePersist_SQLiteAllowsEmptyURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("persist"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateImport(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/triage"
	assert.NoError(t, cfg.Validate("import"))

	cfg.Import.BatchSize = 0
	err := cfg.Validate("import")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "import.batch_size must be >= 1")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Pipeline.TriageThreshold = -0.1
	err := cfg.Validate("triage")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "triage_threshold")

	cfg.Pipeline.TriageThreshold = 1.1
	assert.Error(t, cfg.Validate("triage"))

	cfg.Pipeline.TriageThreshold = 0.75
	cfg.Pipeline.OverallThreshold = 2.0
	err = cfg.Validate("triage")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overall_threshold")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Batch.MaxConcurrentRequests = 0
	err := cfg.Validate("triage")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_requests must be between 1 and 50")

	cfg.Batch.MaxConcurrentRequests = 51
	assert.Error(t, cfg.Validate("triage"))

	cfg.Batch.MaxConcurrentRequests = 50
	assert.NoError(t, cfg.Validate("triage"))
}
