package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the router, the recorder worker and the CLI.
type Config struct {
	// Server
	Port              int    `env:"PORT" envDefault:"8080"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"
	MaxQuestionLength int    `env:"MAX_QUESTION_LENGTH" envDefault:"2000"`

	// Providers queried on every request, in registry order.
	Providers []string `env:"PROVIDERS" envSeparator:"," envDefault:"openai,perplexity"`

	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"` // empty uses the SDK default

	PerplexityKey     string `env:"PERPLEXITY_API_KEY"`
	PerplexityModel   string `env:"PERPLEXITY_MODEL" envDefault:"sonar"`
	PerplexityBaseURL string `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`

	GeminiKey   string `env:"GEMINI_API_KEY"`
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	AdapterTimeout  time.Duration `env:"ADAPTER_TIMEOUT" envDefault:"30s"`
	MaxAnswerTokens int           `env:"MAX_ANSWER_TOKENS" envDefault:"1000"`
	Temperature     float64       `env:"TEMPERATURE" envDefault:"0.7"`

	// Scoring
	ConfidenceFloor float64 `env:"CONFIDENCE_FLOOR" envDefault:"0.5"`
	LengthWeight    float64 `env:"LENGTH_WEIGHT" envDefault:"0.1"`
	LengthScale     float64 `env:"LENGTH_SCALE" envDefault:"1000"`
	BonusTablePath  string  `env:"BONUS_TABLE_PATH"` // YAML; empty uses the built-in table

	// Streaming & history
	StreamTokenDelay  time.Duration `env:"STREAM_TOKEN_DELAY" envDefault:"50ms"`
	HistoryMaxRecords int           `env:"HISTORY_MAX_RECORDS" envDefault:"10000"` // 0 keeps everything
	StatsWindow       int           `env:"STATS_WINDOW" envDefault:"100"`

	// Decision sink
	SinkProvider string `env:"SINK_PROVIDER" envDefault:"none"` // "none", "postgres" or "nats"
	DBURL        string `env:"DB_URL"`
	QueueURL     string `env:"QUEUE_URL"`

	// Answer cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"none"` // "none" or "redis"
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"300"` // seconds
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
