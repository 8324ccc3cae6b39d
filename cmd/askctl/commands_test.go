package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answer-router/internal/classify"
	"answer-router/internal/engine"
	"answer-router/internal/logger"
	"answer-router/internal/provider"
	"answer-router/internal/scoring"
	"answer-router/internal/stream"
)

func testEnv(adapters ...provider.Adapter) env {
	return env{
		newEngine: func(context.Context, bool) (*engine.Engine, func() error, error) {
			eng := engine.New(engine.Options{
				Adapters: adapters,
				Emitter:  stream.NewEmitter(0),
				Timeout:  time.Second,
				Log:      logger.Discard(),
			})
			return eng, func() error { return nil }, nil
		},
		newScorer: func() (*scoring.Scorer, error) {
			return scoring.New(scoring.DefaultWeights(), scoring.BonusTable{
				classify.Explanation: {"alpha": 0.10, "beta": 0.12},
			}), nil
		},
	}
}

func run(t *testing.T, e env, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(e)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskCommand(t *testing.T) {
	e := testEnv(
		provider.Static("openai", "Go is a programming language.", 0.95),
		provider.Static("perplexity", "Go.", 0.9),
	)

	out, err := run(t, e, "", "ask", "what", "is", "golang")
	require.NoError(t, err)
	assert.Contains(t, out, "Go is a programming language.")
	assert.Contains(t, out, "source: openai")

	out, err = run(t, e, "", "ask", "--json", "what is golang")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "openai", body["source"])
	assert.Equal(t, []any{"openai", "perplexity"}, body["all_sources"])
}

func TestAskCommandStream(t *testing.T) {
	e := testEnv(provider.Static("openai", "one two three", 0.9))

	out, err := run(t, e, "", "ask", "--stream", "count to three")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "one two three "))
	assert.Contains(t, out, "source: openai")
}

func TestAskCommandStreamReportsFallback(t *testing.T) {
	e := testEnv(provider.Static("openai", "", 0))

	out, err := run(t, e, "", "ask", "--stream", "hello")
	assert.Error(t, err)
	assert.Contains(t, out, scoring.FallbackText)
}

func TestAskCommandFlagConflict(t *testing.T) {
	_, err := run(t, testEnv(), "", "ask", "--stream", "--json", "hello")
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, testEnv(), "", "classify", "explain", "how", "TCP", "works")
	require.NoError(t, err)
	assert.Equal(t, "explanation\n", out)
}

func TestScoreCommand(t *testing.T) {
	input := `[
		{"source": "alpha", "text": "TCP is reliable.", "confidence": 0.9},
		{"source": "beta", "text": "TCP is ordered.", "confidence": 0.9}
	]`

	out, err := run(t, testEnv(), input, "score", "--question", "explain how TCP works")
	require.NoError(t, err)
	assert.Contains(t, out, "category: explanation")

	var winnerLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "*") {
			winnerLine = line
		}
	}
	assert.Contains(t, winnerLine, "beta")
}

func TestScoreCommandErrors(t *testing.T) {
	_, err := run(t, testEnv(), "[]", "score", "--category", "astrology")
	assert.Error(t, err)

	_, err = run(t, testEnv(), "{not json", "score")
	assert.Error(t, err)

	_, err = run(t, testEnv(), "[]", "score", "--category", "coding", "--question", "x")
	assert.Error(t, err)
}

func TestScoreCommandAllUnusable(t *testing.T) {
	out, err := run(t, testEnv(), `[{"source": "alpha", "text": "down", "confidence": 0}]`, "score")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback")
}
