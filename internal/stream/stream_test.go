package stream

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEmitTokensThenTerminal(t *testing.T) {
	text := "TCP is a  connection-oriented\ttransport protocol."
	e := NewEmitter(0)

	events := collect(e.Emit(context.Background(), text, Final{Source: "openai", Confidence: 0.95}))

	words := strings.Fields(text)
	require.Len(t, events, len(words)+1)

	var rebuilt strings.Builder
	for i, ev := range events[:len(words)] {
		assert.False(t, ev.Finished, "event %d", i)
		assert.Equal(t, words[i]+" ", ev.Token)
		assert.Nil(t, ev.Confidence)
		rebuilt.WriteString(ev.Token)
	}
	assert.Equal(t, strings.Join(words, " "), strings.TrimSpace(rebuilt.String()))

	last := events[len(events)-1]
	assert.True(t, last.Finished)
	assert.Equal(t, "", last.Token)
	assert.Equal(t, "openai", last.Source)
	require.NotNil(t, last.Confidence)
	assert.InDelta(t, 0.95, *last.Confidence, 1e-9)
	assert.Empty(t, last.Error)
}

func TestEmitEmptyTextOnlyTerminal(t *testing.T) {
	events := collect(NewEmitter(0).Emit(context.Background(), "   ", Final{Source: "system", Error: "no usable answer"}))

	require.Len(t, events, 1)
	assert.True(t, events[0].Finished)
	assert.Equal(t, "no usable answer", events[0].Error)
	require.NotNil(t, events[0].Confidence)
	assert.Equal(t, 0.0, *events[0].Confidence)
}

func TestEmitPacing(t *testing.T) {
	e := NewEmitter(20 * time.Millisecond)
	start := time.Now()

	events := collect(e.Emit(context.Background(), "one two three four", Final{Source: "gemini"}))

	require.Len(t, events, 5)
	// Three gaps between four tokens.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestEmitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEmitter(time.Hour)

	ch := e.Emit(ctx, "first second third", Final{Source: "openai"})
	first := <-ch
	assert.Equal(t, "first ", first.Token)

	cancel()
	select {
	case ev, ok := <-ch:
		assert.False(t, ok, "expected closed channel, got %+v", ev)
	case <-time.After(time.Second):
		t.Fatal("emitter did not stop after cancellation")
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"a ", "b ", "c "}, Tokens(" a\nb  c "))
	assert.Empty(t, Tokens(""))
}

func TestNewEmitterNegativeDelay(t *testing.T) {
	e := NewEmitter(-time.Second)
	events := collect(e.Emit(context.Background(), "x y", Final{}))
	assert.Len(t, events, 3)
}
