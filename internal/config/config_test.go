package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, content string) (*Config, error) {
	t.Helper()

	v := viper.New()
	Configure(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))

	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gemini-api", cfg.AI.Backend)
	assert.InDelta(t, 0.1, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.AI.Gemini.MaxRetries)
	assert.Equal(t, 200, cfg.AI.Gemini.MaxLogLength)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "job-preprocessor.db", cfg.Store.DSN)
	assert.Equal(t, int64(10000), cfg.Telemetry.Redis.MaxLen)

	_, ok := cfg.ModelFor(JobPreprocessing)
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	cfg, err := load(t, `
concurrency: 4
ai:
  temperature: 0.3
  models:
    job-preprocessing: gemini-2.5-flash
  gemini:
    api-key-file: /run/secrets/gemini
    max-retries: 5
store:
  driver: postgres
  dsn: postgres://localhost/jobs
inventory:
  file: inventory.yaml
telemetry:
  redis:
    addr: localhost:6379
`)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "/run/secrets/gemini", cfg.AI.Gemini.APIKeyFile)
	assert.Equal(t, 5, cfg.AI.Gemini.MaxRetries)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "inventory.yaml", cfg.Inventory.File)
	assert.Equal(t, "localhost:6379", cfg.Telemetry.Redis.Addr)
	assert.Equal(t, "job-preprocessor:activity", cfg.Telemetry.Redis.Stream)

	model, ok := cfg.ModelFor(JobPreprocessing)
	assert.True(t, ok)
	assert.Equal(t, "gemini-2.5-flash", model)

	_, ok = cfg.ModelFor("cover-letter")
	assert.False(t, ok)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JOBPRE_CONCURRENCY", "3")
	t.Setenv("JOBPRE_AI_GEMINI_MAX_RETRIES", "7")
	t.Setenv("JOBPRE_AI_MODELS_JOB_PREPROCESSING", "gemini-2.5-pro")

	cfg, err := load(t, "concurrency: 1\n")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 7, cfg.AI.Gemini.MaxRetries)

	model, ok := cfg.ModelFor(JobPreprocessing)
	assert.True(t, ok)
	assert.Equal(t, "gemini-2.5-pro", model)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"zero concurrency":      "concurrency: 0\n",
		"unknown backend":       "ai:\n  backend: openai\n",
		"unknown provider":      "ai:\n  provider: claude\n",
		"negative retries":      "ai:\n  gemini:\n    max-retries: -1\n",
		"temperature too high":  "ai:\n  temperature: 3\n",
		"unknown store driver":  "store:\n  driver: mysql\n",
		"empty dsn":             "store:\n  dsn: \"\"\n",
		"vertex without region": "ai:\n  backend: vertex-ai\n  gemini:\n    project: p\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, content)
			assert.Error(t, err)
		})
	}
}
