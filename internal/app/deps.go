package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"answer-router/internal/cache"
	"answer-router/internal/config"
	"answer-router/internal/engine"
	"answer-router/internal/history"
	"answer-router/internal/logger"
	"answer-router/internal/provider"
	"answer-router/internal/queue"
	"answer-router/internal/scoring"
	"answer-router/internal/store"
	"answer-router/internal/stream"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("missing api key")
)

const (
	openAISystemPrompt     = "You are a helpful AI assistant."
	perplexitySystemPrompt = "Be helpful and precise."
)

// Deps bundles the router's runtime dependencies.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Engine  *engine.Engine
	History *history.Store
	Cache   cache.Cache

	closers []func() error
}

// Close releases connections opened by Build.
func (d Deps) Close() error {
	return closeAll(d.closers)
}

// RecorderDeps bundles the recorder worker's runtime dependencies.
type RecorderDeps struct {
	Config config.Config
	Log    *slog.Logger
	Store  store.Store
	Queue  queue.Queue

	closers []func() error
}

func (d RecorderDeps) Close() error {
	return closeAll(d.closers)
}

// Build loads env, config, and wires the decision engine with its optional sink and cache.
func Build(ctx context.Context) (Deps, error) {
	if err := loadEnv(); err != nil {
		return Deps{}, err
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	return BuildWith(ctx, cfg, log)
}

// BuildWith wires the router from an already-loaded config.
func BuildWith(ctx context.Context, cfg config.Config, log *slog.Logger) (Deps, error) {
	adapters, err := BuildAdapters(ctx, cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize providers: %w", err)
	}
	scorer, err := BuildScorer(cfg)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize scorer: %w", err)
	}

	var closers []func() error
	sink, closeSink, err := buildSink(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize decision sink: %w", err)
	}
	if closeSink != nil {
		closers = append(closers, closeSink)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		_ = closeAll(closers)
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	closers = append(closers, c.Close)

	hist := history.NewStore(cfg.HistoryMaxRecords)
	eng := engine.New(engine.Options{
		Adapters: adapters,
		Scorer:   scorer,
		History:  hist,
		Emitter:  stream.NewEmitter(cfg.StreamTokenDelay),
		Sink:     sink,
		Timeout:  cfg.AdapterTimeout,
		Log:      log,
	})
	log.Info("engine ready", "providers", eng.Sources(), "sink", cfg.SinkProvider, "cache", cfg.CacheProvider)

	return Deps{
		Config:  cfg,
		Log:     log,
		Engine:  eng,
		History: hist,
		Cache:   c,
		closers: closers,
	}, nil
}

// BuildRecorder loads env, config, and the store and queue the recorder worker needs.
func BuildRecorder() (RecorderDeps, error) {
	if err := loadEnv(); err != nil {
		return RecorderDeps{}, err
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.DBURL == "" {
		return RecorderDeps{}, fmt.Errorf("DB_URL is required for the recorder")
	}
	if cfg.QueueURL == "" {
		return RecorderDeps{}, fmt.Errorf("QUEUE_URL is required for the recorder")
	}
	st, err := store.NewPostgres(cfg.DBURL)
	if err != nil {
		return RecorderDeps{}, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	nc, err := nats.Connect(cfg.QueueURL)
	if err != nil {
		_ = st.Close()
		return RecorderDeps{}, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("recorder dependencies ready")
	return RecorderDeps{
		Config:  cfg,
		Log:     log,
		Store:   st,
		Queue:   queue.NewNATS(log, nc),
		closers: []func() error{drainFunc(nc), st.Close},
	}, nil
}

// LoadConfig loads .env (when present) and the environment, for tools that wire pieces themselves.
func LoadConfig() (config.Config, error) {
	if err := loadEnv(); err != nil {
		return config.Config{}, err
	}
	return config.Load(), nil
}

// loadEnv reads .env when present. A missing file is not an error.
func loadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

// BuildAdapters constructs the adapters listed in PROVIDERS, in order.
func BuildAdapters(ctx context.Context, cfg config.Config, log *slog.Logger) ([]provider.Adapter, error) {
	seen := make(map[string]bool, len(cfg.Providers))
	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		if seen[name] {
			return nil, fmt.Errorf("provider %q listed twice", name)
		}
		seen[name] = true

		a, err := buildAdapter(ctx, name, cfg, log)
		if err != nil {
			return nil, err
		}
		log.Info("provider enabled", "provider", name)
		adapters = append(adapters, a)
	}
	return adapters, nil
}

func buildAdapter(ctx context.Context, name string, cfg config.Config, log *slog.Logger) (provider.Adapter, error) {
	switch name {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY for %s: %w", name, ErrMissingAPIKey)
		}
		return provider.NewOpenAICompatible(provider.OpenAIConfig{
			ID:          "openai",
			Name:        "OpenAI",
			APIKey:      cfg.OpenAIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.OpenAIModel,
			System:      openAISystemPrompt,
			Confidence:  0.95,
			MaxTokens:   cfg.MaxAnswerTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.AdapterTimeout,
		}, log)
	case "perplexity":
		if cfg.PerplexityKey == "" {
			return nil, fmt.Errorf("PERPLEXITY_API_KEY for %s: %w", name, ErrMissingAPIKey)
		}
		return provider.NewOpenAICompatible(provider.OpenAIConfig{
			ID:          "perplexity",
			Name:        "Perplexity",
			APIKey:      cfg.PerplexityKey,
			BaseURL:     cfg.PerplexityBaseURL,
			Model:       cfg.PerplexityModel,
			System:      perplexitySystemPrompt,
			Confidence:  0.9,
			MaxTokens:   cfg.MaxAnswerTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.AdapterTimeout,
		}, log)
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY for %s: %w", name, ErrMissingAPIKey)
		}
		return provider.NewGemini(ctx, provider.GeminiConfig{
			ID:          "gemini",
			APIKey:      cfg.GeminiKey,
			Model:       cfg.GeminiModel,
			System:      openAISystemPrompt,
			Confidence:  0.9,
			MaxTokens:   cfg.MaxAnswerTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.AdapterTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("%q (valid options: openai, perplexity, gemini): %w", name, ErrUnknownProvider)
	}
}

// BuildScorer uses the YAML bonus table at BONUS_TABLE_PATH, or the built-in table.
func BuildScorer(cfg config.Config) (*scoring.Scorer, error) {
	bonuses := scoring.DefaultBonusTable()
	if cfg.BonusTablePath != "" {
		t, err := scoring.LoadBonusTable(cfg.BonusTablePath)
		if err != nil {
			return nil, err
		}
		bonuses = t
	}
	return scoring.New(scoring.Weights{
		LengthWeight:    cfg.LengthWeight,
		LengthScale:     cfg.LengthScale,
		ConfidenceFloor: cfg.ConfidenceFloor,
	}, bonuses), nil
}

func buildSink(cfg config.Config, log *slog.Logger) (history.Sink, func() error, error) {
	switch cfg.SinkProvider {
	case "", "none":
		return nil, nil, nil
	case "postgres":
		if cfg.DBURL == "" {
			return nil, nil, fmt.Errorf("DB_URL is required when SINK_PROVIDER=postgres")
		}
		st, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("recording decisions to Postgres")
		return store.Sink(st), st.Close, nil
	case "nats":
		if cfg.QueueURL == "" {
			return nil, nil, fmt.Errorf("QUEUE_URL is required when SINK_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("publishing decisions to NATS")
		return queue.NewDecisionSink(queue.NewNATS(log, nc)), drainFunc(nc), nil
	default:
		return nil, nil, fmt.Errorf("invalid SINK_PROVIDER: %s (valid options: none, postgres, nats)", cfg.SinkProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "", "none":
		return cache.NewNoOpCache(), nil
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			// Serve uncached rather than fail startup.
			log.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr, "err", err)
			return cache.NewNoOpCache(), nil
		}
		log.Info("using Redis answer cache", "addr", cfg.RedisAddr)
		return c, nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: none, redis)", cfg.CacheProvider)
	}
}

// CacheTTL converts the configured seconds into a duration.
func CacheTTL(cfg config.Config) time.Duration {
	return time.Duration(cfg.CacheTTL) * time.Second
}

func drainFunc(nc *nats.Conn) func() error {
	return func() error {
		return nc.Drain()
	}
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
