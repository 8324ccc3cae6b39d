package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const chatCompletionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Go is a programming language."}}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

func newOpenAITestAdapter(t *testing.T, srv *httptest.Server, timeout time.Duration) *OpenAICompatible {
	t.Helper()
	a, err := NewOpenAICompatible(OpenAIConfig{
		ID:         "openai",
		Name:       "OpenAI",
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "gpt-4o-mini",
		Confidence: 0.95,
		MaxTokens:  1000,
		Timeout:    timeout,
	}, discardLog())
	require.NoError(t, err)
	return a
}

func TestOpenAICompatibleQuery(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		timeout    time.Duration
		wantText   string
		wantConf   float64
		wantTokens bool
	}{
		{
			name: "successful completion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "gpt-4o-mini", body["model"])

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(chatCompletionBody))
			},
			wantText:   "Go is a programming language.",
			wantConf:   0.95,
			wantTokens: true,
		},
		{
			name: "non-success status becomes API error placeholder",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
			},
			wantText: "OpenAI API error",
		},
		{
			name: "empty choices become unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": []}`))
			},
			wantText: "OpenAI unavailable.",
		},
		{
			name: "malformed payload becomes unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{not json`))
			},
			wantText: "OpenAI unavailable.",
		},
		{
			name: "slow upstream times out",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout:  50 * time.Millisecond,
			wantText: "OpenAI unavailable.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			a := newOpenAITestAdapter(t, srv, tt.timeout)
			res := a.Query(context.Background(), "What is Go?")

			assert.Equal(t, "openai", res.Source)
			assert.Equal(t, tt.wantText, res.Text)
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
			if tt.wantTokens {
				assert.EqualValues(t, 19, res.Metadata["tokens"])
				assert.Equal(t, "gpt-4o-mini", res.Metadata["model"])
			}
		})
	}
}

func TestNewOpenAICompatibleRequiresKey(t *testing.T) {
	_, err := NewOpenAICompatible(OpenAIConfig{ID: "openai"}, nil)
	assert.Error(t, err)

	_, err = NewOpenAICompatible(OpenAIConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestGeminiQuery(t *testing.T) {
	okResp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "Paris is the capital of France."}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 11},
	}

	tests := []struct {
		name     string
		generate generateFunc
		wantText string
		wantConf float64
	}{
		{
			name: "successful generation",
			generate: func(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				assert.Equal(t, "gemini-2.0-flash", model)
				require.Len(t, contents, 1)
				assert.Equal(t, "What is the capital of France?", contents[0].Parts[0].Text)
				assert.NotNil(t, cfg.SystemInstruction)
				return okResp, nil
			},
			wantText: "Paris is the capital of France.",
			wantConf: 0.9,
		},
		{
			name: "transport error",
			generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, errors.New("connection reset")
			},
			wantText: "Gemini unavailable.",
		},
		{
			name: "no candidates",
			generate: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{}, nil
			},
			wantText: "Gemini unavailable.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGemini(GeminiConfig{Confidence: 0.9}, tt.generate, discardLog())
			res := g.Query(context.Background(), "What is the capital of France?")

			assert.Equal(t, "gemini", res.Source)
			assert.Equal(t, tt.wantText, res.Text)
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
		})
	}
}

func TestNewResultClampsAndCopies(t *testing.T) {
	md := map[string]any{"tokens": 3}
	res := NewResult("alpha", "text", 1.5, md)
	md["tokens"] = 99

	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 3, res.Metadata["tokens"])
	assert.Equal(t, 0.0, NewResult("alpha", "", -0.2, nil).Confidence)
	assert.Nil(t, NewResult("alpha", "", 0.5, nil).Metadata)
	assert.Equal(t, 0.0, NewResult("alpha", "text", math.NaN(), nil).Confidence)
	assert.Equal(t, 1.0, NewResult("alpha", "text", math.Inf(1), nil).Confidence)
}

func TestFuncAdapter(t *testing.T) {
	a := Func{Name: "echo", Fn: func(_ context.Context, q string) Result {
		return Result{Text: q, Confidence: 0.4}
	}}
	res := a.Query(context.Background(), "hello")
	assert.Equal(t, "echo", res.Source)
	assert.Equal(t, "hello", res.Text)
	assert.True(t, res.Usable())

	empty := Func{Name: "broken"}
	res = empty.Query(context.Background(), "hello")
	assert.False(t, res.Usable())
	assert.Equal(t, "broken unavailable.", res.Text)

	static := Static("fixed", "always this", 0.7)
	assert.Equal(t, "fixed", static.ID())
	assert.Equal(t, "always this", static.Query(context.Background(), "anything").Text)
}
