package provider

import (
	"context"
	"maps"
	"time"
)

// DefaultTimeout bounds a single upstream call when the adapter is not given one.
const DefaultTimeout = 30 * time.Second

// Result is one adapter's normalized answer. Confidence 0 means failed or unusable.
type Result struct {
	Source     string         `json:"source"`
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Usable reports whether the result may take part in selection.
func (r Result) Usable() bool {
	return r.Confidence > 0
}

// Adapter wraps one upstream text-generation service.
//
// Query must return within a bounded time and must never panic or return an error:
// transport failures, non-success statuses and malformed payloads come back as a
// zero-confidence Result whose Text explains the outage.
type Adapter interface {
	ID() string
	Query(ctx context.Context, question string) Result
}

// Unavailable builds the zero-confidence placeholder for a failed call.
func Unavailable(source, reason string) Result {
	return Result{Source: source, Text: reason, Confidence: 0}
}

// NewResult builds a Result, copying metadata so the caller cannot mutate it later.
// Confidence is clamped to [0,1]; NaN counts as 0.
func NewResult(source, text string, confidence float64, metadata map[string]any) Result {
	if !(confidence > 0) {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	var md map[string]any
	if len(metadata) > 0 {
		md = maps.Clone(metadata)
	}
	return Result{Source: source, Text: text, Confidence: confidence, Metadata: md}
}

// Func adapts a plain function to the Adapter contract.
type Func struct {
	Name string
	Fn   func(ctx context.Context, question string) Result
}

func (f Func) ID() string { return f.Name }

func (f Func) Query(ctx context.Context, question string) Result {
	if f.Fn == nil {
		return Unavailable(f.Name, f.Name+" unavailable.")
	}
	res := f.Fn(ctx, question)
	if res.Source == "" {
		res.Source = f.Name
	}
	return res
}

// Static returns an adapter that always answers with the same text and confidence.
func Static(name, text string, confidence float64) Func {
	return Func{Name: name, Fn: func(context.Context, string) Result {
		return NewResult(name, text, confidence, nil)
	}}
}
