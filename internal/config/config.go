// Package config holds the typed application configuration read through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "JOBPRE"

	// JobPreprocessing is the job type key under ai.models.
	JobPreprocessing = "job-preprocessing"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Concurrency int             `mapstructure:"concurrency" validate:"gte=1"`
	AI          AIConfig        `mapstructure:"ai"`
	Store       StoreConfig     `mapstructure:"store"`
	Inventory   InventoryConfig `mapstructure:"inventory"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type AIConfig struct {
	Provider    string            `mapstructure:"provider" validate:"oneof=gemini"`
	Backend     string            `mapstructure:"backend" validate:"oneof=gemini-api vertex-ai"`
	Temperature float64           `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Models      map[string]string `mapstructure:"models"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Project      string `mapstructure:"project"`
	Location     string `mapstructure:"location"`
	MaxRetries   int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength int    `mapstructure:"max-log-length" validate:"gte=0"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type InventoryConfig struct {
	File string `mapstructure:"file"`
}

type TelemetryConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	// Addr is a host:port or redis:// URL. Empty disables the Redis sink.
	Addr   string `mapstructure:"addr"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max-len" validate:"gte=0"`
}

var defaults = map[string]any{
	"concurrency":                   2,
	"ai.provider":                   "gemini",
	"ai.backend":                    "gemini-api",
	"ai.temperature":                0.1,
	"ai.models." + JobPreprocessing: "",
	"ai.gemini.api-key":             "",
	"ai.gemini.api-key-file":        "",
	"ai.gemini.project":             "",
	"ai.gemini.location":            "",
	"ai.gemini.max-retries":         2,
	"ai.gemini.max-log-length":      200,
	"store.driver":                  DriverSQLite,
	"store.dsn":                     "job-preprocessor.db",
	"inventory.file":                "",
	"telemetry.redis.addr":          "",
	"telemetry.redis.stream":        "job-preprocessor:activity",
	"telemetry.redis.max-len":       10000,
}

// Configure registers defaults and binds JOBPRE_* environment variables, e.g.
// JOBPRE_AI_GEMINI_MAX_RETRIES for ai.gemini.max-retries.
func Configure(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.AI.Backend == "vertex-ai" && (c.AI.Gemini.Project == "" || c.AI.Gemini.Location == "") {
		return fmt.Errorf("invalid config: ai.gemini.project and ai.gemini.location are required for vertex-ai")
	}
	return nil
}

// ModelFor returns the model configured for jobType.
func (c *Config) ModelFor(jobType string) (string, bool) {
	model := strings.TrimSpace(c.AI.Models[jobType])
	return model, model != ""
}
