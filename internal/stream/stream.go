// Package stream replays a finished answer as paced, incremental chunks.
package stream

import (
	"context"
	"strings"
	"time"
)

// DefaultDelay is the pause between two emitted tokens.
const DefaultDelay = 50 * time.Millisecond

// Event is one chunk of a streamed answer. Exactly one event per stream has
// Finished set; it carries the winning source and confidence and no token.
type Event struct {
	Token      string   `json:"token"`
	Finished   bool     `json:"finished"`
	Source     string   `json:"source,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Final describes the terminal event of a stream.
type Final struct {
	Source     string
	Confidence float64
	Error      string
}

// Tokens splits text on whitespace and gives every word a trailing space.
func Tokens(text string) []string {
	words := strings.Fields(text)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w + " "
	}
	return out
}

// Emitter paces tokens with a fixed delay.
type Emitter struct {
	delay time.Duration
}

// NewEmitter returns an Emitter; a negative delay is treated as zero.
func NewEmitter(delay time.Duration) *Emitter {
	if delay < 0 {
		delay = 0
	}
	return &Emitter{delay: delay}
}

// Emit streams text token by token and then the terminal event. The channel is
// closed when the stream ends. If ctx is cancelled the stream stops early and
// no terminal event is sent.
func (e *Emitter) Emit(ctx context.Context, text string, final Final) <-chan Event {
	tokens := Tokens(text)
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for i, tok := range tokens {
			if i > 0 && e.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.delay):
				}
			}
			if !send(ctx, ch, Event{Token: tok}) {
				return
			}
		}
		conf := final.Confidence
		send(ctx, ch, Event{Finished: true, Source: final.Source, Confidence: &conf, Error: final.Error})
	}()
	return ch
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}
