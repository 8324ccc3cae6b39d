package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompatible calls any Chat Completions endpoint that speaks the OpenAI wire format.
// OpenAI itself and Perplexity are both served by it.
type OpenAICompatible struct {
	cfg    OpenAIConfig
	client *openai.Client
	log    *slog.Logger
}

// OpenAIConfig describes one OpenAI-compatible upstream.
type OpenAIConfig struct {
	ID          string // result source, e.g. "openai"
	Name        string // human name used in outage messages
	APIKey      string
	BaseURL     string // empty uses api.openai.com
	Model       string
	System      string
	Confidence  float64
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const (
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultSystemPrompt = "You are a helpful AI assistant."
)

// NewOpenAICompatible builds an adapter with a single-attempt SDK client.
func NewOpenAICompatible(cfg OpenAIConfig, log *slog.Logger) (*OpenAICompatible, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("adapter id required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.System == "" {
		cfg.System = defaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAICompatible{
		cfg:    cfg,
		client: &cli,
		log:    log.With("provider", cfg.ID),
	}, nil
}

func (c *OpenAICompatible) ID() string { return c.cfg.ID }

func (c *OpenAICompatible) Query(ctx context.Context, question string) Result {
	if c == nil || c.client == nil {
		return Unavailable("", "adapter not configured.")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.Model),
		Messages: buildMessages(c.cfg.System, question),
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = openai.Float(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(reqCtx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.log.Warn("upstream returned error status", "status", apiErr.StatusCode, "err", err)
			return Unavailable(c.cfg.ID, c.cfg.Name+" API error")
		}
		c.log.Warn("upstream request failed", "err", err)
		return c.unavailable()
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.log.Warn("upstream returned no content")
		return c.unavailable()
	}
	return NewResult(c.cfg.ID, resp.Choices[0].Message.Content, c.cfg.Confidence, map[string]any{
		"model":      c.cfg.Model,
		"tokens":     resp.Usage.TotalTokens,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (c *OpenAICompatible) unavailable() Result {
	return Unavailable(c.cfg.ID, c.cfg.Name+" unavailable.")
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}
