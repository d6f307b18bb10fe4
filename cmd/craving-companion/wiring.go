package main

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/CravingCompanion/internal/api"
	"github.com/BTreeMap/CravingCompanion/internal/config"
	"github.com/BTreeMap/CravingCompanion/internal/flow"
	"github.com/BTreeMap/CravingCompanion/internal/lockfile"
	"github.com/BTreeMap/CravingCompanion/internal/metrics"
	"github.com/BTreeMap/CravingCompanion/internal/policy"
	"github.com/BTreeMap/CravingCompanion/internal/provider"
	"github.com/BTreeMap/CravingCompanion/internal/script"
	"github.com/BTreeMap/CravingCompanion/internal/store"
)

// engine is everything a turn needs. The store is opened separately by serve.
type engine struct {
	scripts  *script.Store
	registry *provider.Registry
	orch     *flow.Orchestrator
	metrics  *metrics.Metrics
}

func newEngine(ctx context.Context, c config.Config) (*engine, error) {
	providers, err := buildProviders(ctx, c)
	if err != nil {
		return nil, err
	}

	e := &engine{
		scripts:  script.NewStore(c.ScriptPath),
		registry: provider.NewRegistry(providers...),
	}
	resolver := policy.NewResolver(c.PolicyConfig(), e.scripts)

	var orchOpts []flow.Option
	if c.MetricsEnabled {
		e.metrics = metrics.New()
		orchOpts = append(orchOpts, flow.WithRecorder(e.metrics))
	}
	e.orch = flow.NewOrchestrator(e.scripts, resolver, e.registry, orchOpts...)

	slog.Debug("newEngine: engine ready", "providers", e.registry.Keys(), "script_path", c.ScriptPath, "metrics", c.MetricsEnabled)
	return e, nil
}

// buildProviders constructs every known provider. Missing keys leave a provider
// registered but unconfigured.
func buildProviders(ctx context.Context, c config.Config) ([]provider.Provider, error) {
	openaiOpts := []provider.Option{
		provider.WithAPIKey(c.OpenAIAPIKey),
		provider.WithTimeout(c.GenerationTimeout),
	}
	if c.OpenAIBaseURL != "" {
		openaiOpts = append(openaiOpts, provider.WithBaseURL(c.OpenAIBaseURL))
	}
	if c.LLMProvider == provider.OpenAIName {
		openaiOpts = append(openaiOpts, provider.WithDefaultModel(c.LLMDefaultModel))
	}

	gemini, err := provider.NewGemini(ctx,
		provider.WithAPIKey(c.GeminiAPIKey),
		provider.WithDefaultModel(c.GeminiDefaultModel),
		provider.WithTimeout(c.GenerationTimeout),
	)
	if err != nil {
		return nil, err
	}
	return []provider.Provider{provider.NewOpenAI(openaiOpts...), gemini}, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(c config.Config) []store.Option {
	opts := []store.Option{store.WithMemorySize(c.MemoryStoreSize)}
	if c.SessionTTL > 0 {
		opts = append(opts, store.WithTTL(c.SessionTTL))
	}
	switch {
	case c.DatabaseURL != "":
		if store.DetectDSNType(c.DatabaseURL) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			opts = append(opts, store.WithPostgresDSN(c.DatabaseURL))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", c.DatabaseURL)
			opts = append(opts, store.WithSQLiteDSN(c.DatabaseURL))
		}
	case c.RedisAddr != "":
		slog.Debug("Redis address set, configuring Redis store", "redis_addr", c.RedisAddr, "redis_db", c.RedisDB)
		opts = append(opts, store.WithRedis(c.RedisAddr, c.RedisPassword, c.RedisDB))
	default:
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return opts
}

// openStore opens the configured backend. A SQLite database is locked for the life
// of the returned close func.
func openStore(c config.Config) (store.Store, func() error, error) {
	opts := buildStoreOptions(c)
	var o store.Opts
	for _, opt := range opts {
		opt(&o)
	}

	var lock *lockfile.Lock
	if o.Driver == "sqlite3" {
		var err error
		if lock, err = lockfile.Acquire(o.DSN); err != nil {
			return nil, nil, err
		}
	}

	st, err := store.New(opts...)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	closeFn := func() error {
		err := st.Close()
		if relErr := lock.Release(); err == nil {
			err = relErr
		}
		return err
	}
	return st, closeFn, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(c config.Config, e *engine) []api.Option {
	opts := []api.Option{
		api.WithAddr(c.Addr),
		api.WithCORSOrigin(c.CORSAllowedOrigin),
		api.WithDefaultProvider(c.LLMProvider),
	}
	if e.metrics != nil {
		opts = append(opts, api.WithMetrics(e.metrics))
	}
	return opts
}
