package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-preprocessor/internal/ai"
	"github.com/spigell/job-preprocessor/internal/ai/gemini"
	"github.com/spigell/job-preprocessor/internal/config"
	"github.com/spigell/job-preprocessor/internal/inventory"
	"github.com/spigell/job-preprocessor/internal/logger"
	"github.com/spigell/job-preprocessor/internal/secrets"
	"github.com/spigell/job-preprocessor/internal/store"
	"github.com/spigell/job-preprocessor/internal/telemetry"
)

// appContext bundles what every command needs.
type appContext struct {
	logger *zap.Logger
	config *config.Config
	store  store.Store
}

func setup(ctx context.Context) (*appContext, error) {
	log, err := logger.New(logger.Options{JSON: viper.GetBool("json"), Debug: viper.GetBool("debug")})
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	cfg, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	return &appContext{logger: log, config: cfg, store: st}, nil
}

func (a *appContext) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newCompleter builds the Gemini completer. A missing API key is not fatal: the
// completer stays nil and every job fails as service unavailable.
func (a *appContext) newCompleter(ctx context.Context) (ai.Completer, error) {
	cfg := a.config.AI
	backend, err := ai.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	opts := gemini.Options{
		Backend:      backend,
		Project:      cfg.Gemini.Project,
		Location:     cfg.Gemini.Location,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
		Logger:       a.logger,
	}

	if backend == ai.BackendGeminiAPI {
		key, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.Gemini.APIKeyFile,
			Value: cfg.Gemini.APIKey,
			Env:   []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		})
		if errors.Is(err, secrets.ErrNotConfigured) {
			a.logger.Warn("gemini api key is not configured, preprocessing jobs will fail",
				zap.String("hint", "set GEMINI_API_KEY or ai.gemini.api-key-file"),
			)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		opts.APIKey = key
	}

	generator, err := gemini.NewGenerator(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating gemini generator: %w", err)
	}
	return generator, nil
}

func (a *appContext) loadInventory() (*inventory.Document, inventory.Skills, error) {
	path := a.config.Inventory.File
	if path == "" {
		a.logger.Info("no inventory file configured, skill matching is disabled")
		return &inventory.Document{}, inventory.Static(nil), nil
	}

	doc, err := inventory.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return doc, inventory.File{Path: path}, nil
}

func (a *appContext) newSink() (telemetry.Sink, func()) {
	sinks := []telemetry.Sink{telemetry.NewLogSink(a.logger)}
	cleanup := func() {}

	redisCfg := a.config.Telemetry.Redis
	if redisCfg.Addr != "" {
		client, err := telemetry.NewRedisClient(redisCfg.Addr)
		if err != nil {
			a.logger.Warn("redis telemetry is disabled", zap.Error(err))
		} else {
			sinks = append(sinks, telemetry.NewRedisSink(client, telemetry.RedisOptions{
				Stream: redisCfg.Stream,
				MaxLen: redisCfg.MaxLen,
				Logger: a.logger,
			}))
			cleanup = func() { _ = client.Close() }
		}
	}

	return telemetry.Combine(sinks...), cleanup
}
