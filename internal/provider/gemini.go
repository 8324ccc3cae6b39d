package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig describes the Gemini upstream.
type GeminiConfig struct {
	ID          string
	APIKey      string
	Model       string
	System      string
	Confidence  float64
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini queries Google's Gemini API through the genai SDK.
type Gemini struct {
	cfg      GeminiConfig
	generate generateFunc
	log      *slog.Logger
}

const defaultGeminiModel = "gemini-2.0-flash"

// NewGemini builds a Gemini adapter backed by the Gemini Developer API.
func NewGemini(ctx context.Context, cfg GeminiConfig, log *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newGemini(cfg, client.Models.GenerateContent, log), nil
}

func newGemini(cfg GeminiConfig, generate generateFunc, log *slog.Logger) *Gemini {
	if cfg.ID == "" {
		cfg.ID = "gemini"
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
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
	return &Gemini{cfg: cfg, generate: generate, log: log.With("provider", cfg.ID)}
}

func (g *Gemini) ID() string { return g.cfg.ID }

func (g *Gemini) Query(ctx context.Context, question string) Result {
	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.cfg.System, genai.RoleUser),
	}
	if g.cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(g.cfg.Temperature))
	}
	if g.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}

	start := time.Now()
	resp, err := g.generate(reqCtx, g.cfg.Model, genai.Text(question), gc)
	if err != nil {
		g.log.Warn("upstream request failed", "err", err)
		return g.unavailable()
	}
	if resp == nil || len(resp.Candidates) == 0 {
		g.log.Warn("upstream returned no candidates")
		return g.unavailable()
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		g.log.Warn("upstream returned no content", "finish_reason", resp.Candidates[0].FinishReason)
		return g.unavailable()
	}
	var tokens int32
	if resp.UsageMetadata != nil {
		tokens = resp.UsageMetadata.TotalTokenCount
	}
	return NewResult(g.cfg.ID, text, g.cfg.Confidence, map[string]any{
		"model":      g.cfg.Model,
		"tokens":     int64(tokens),
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (g *Gemini) unavailable() Result {
	return Unavailable(g.cfg.ID, "Gemini unavailable.")
}
