// Package engine fans a question out to every provider, scores the replies and
// records which one won.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"answer-router/internal/classify"
	"answer-router/internal/history"
	"answer-router/internal/provider"
	"answer-router/internal/scoring"
	"answer-router/internal/stream"
)

const sinkTimeout = 5 * time.Second

// Options wires an Engine. Only Adapters is required.
type Options struct {
	Adapters []provider.Adapter
	Scorer   *scoring.Scorer
	History  *history.Store
	Emitter  *stream.Emitter
	// Sink optionally receives every record after it is appended to History.
	Sink history.Sink
	// Timeout bounds each adapter call independently.
	Timeout time.Duration
	Log     *slog.Logger
	Now     func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	adapters []provider.Adapter
	scorer   *scoring.Scorer
	history  *history.Store
	emitter  *stream.Emitter
	sink     history.Sink
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// New builds an Engine, filling unset collaborators with defaults.
func New(opts Options) *Engine {
	e := &Engine{
		adapters: opts.Adapters,
		scorer:   opts.Scorer,
		history:  opts.History,
		emitter:  opts.Emitter,
		sink:     opts.Sink,
		timeout:  opts.Timeout,
		log:      opts.Log,
		now:      opts.Now,
	}
	if e.scorer == nil {
		e.scorer = scoring.New(scoring.DefaultWeights(), scoring.DefaultBonusTable())
	}
	if e.history == nil {
		e.history = history.NewStore(0)
	}
	if e.emitter == nil {
		e.emitter = stream.NewEmitter(stream.DefaultDelay)
	}
	if e.timeout <= 0 {
		e.timeout = provider.DefaultTimeout
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Sources lists the registered adapter ids in query order.
func (e *Engine) Sources() []string {
	out := make([]string, len(e.adapters))
	for i, a := range e.adapters {
		out[i] = a.ID()
	}
	return out
}

// History exposes the decision log for statistics.
func (e *Engine) History() *history.Store {
	return e.history
}

// Stats is a shortcut for History().Stats.
func (e *Engine) Stats(window int) history.Stats {
	return e.history.Stats(window)
}

// Decide queries every adapter concurrently, selects the best answer and
// appends exactly one record to the history. It never fails: when nothing
// usable comes back the winner is the system fallback.
func (e *Engine) Decide(ctx context.Context, question string) history.Record {
	start := e.now()
	results := e.collect(ctx, question)
	category := classify.Classify(question)
	winner := e.scorer.Select(results, category)

	rec := history.Record{
		ID:        uuid.New(),
		Timestamp: start,
		Question:  question,
		Category:  category,
		Results:   results,
		Winner:    winner,
	}
	e.history.Append(rec)
	e.log.Info("decision recorded",
		"decision_id", rec.ID,
		"category", category,
		"source", winner.Result.Source,
		"confidence", winner.Result.Confidence,
		"score", winner.Score,
		"considered", len(results),
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	e.forward(ctx, rec)
	return rec
}

// Stream decides and then replays the winning text as paced chunks.
func (e *Engine) Stream(ctx context.Context, question string) (history.Record, <-chan stream.Event) {
	rec := e.Decide(ctx, question)
	final := stream.Final{Source: rec.Winner.Result.Source, Confidence: rec.Winner.Result.Confidence}
	if rec.Winner.IsFallback() {
		final.Error = "no provider returned a usable answer"
	}
	return rec, e.emitter.Emit(ctx, rec.Winner.Result.Text, final)
}

// collect runs every adapter in its own goroutine and returns results in
// registry order. Each slot is always filled, with a placeholder if needed.
func (e *Engine) collect(ctx context.Context, question string) []provider.Result {
	results := make([]provider.Result, len(e.adapters))
	var eg errgroup.Group
	for i, a := range e.adapters {
		eg.Go(func() error {
			results[i] = e.invoke(ctx, a, question)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// invoke calls one adapter under its own deadline. The caller stops waiting
// when the deadline or ctx fires even if the adapter ignores its context.
func (e *Engine) invoke(ctx context.Context, a provider.Adapter, question string) provider.Result {
	id := a.ID()
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan provider.Result, 1)
	go func() {
		done <- e.querySafe(callCtx, a, question)
	}()

	select {
	case res := <-done:
		// Results are attributed to the registered id whatever the adapter claims.
		return provider.NewResult(id, res.Text, res.Confidence, res.Metadata)
	case <-callCtx.Done():
		e.log.Warn("provider did not answer in time", "provider", id, "err", callCtx.Err())
		return provider.Unavailable(id, id+" unavailable.")
	}
}

func (e *Engine) querySafe(ctx context.Context, a provider.Adapter, question string) (res provider.Result) {
	id := a.ID()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("provider panicked", "provider", id, "panic", fmt.Sprint(r))
			res = provider.Unavailable(id, id+" unavailable.")
		}
	}()
	return a.Query(ctx, question)
}

func (e *Engine) forward(ctx context.Context, rec history.Record) {
	if e.sink == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := e.sink.Write(sinkCtx, rec); err != nil {
		e.log.Warn("failed to forward decision", "decision_id", rec.ID, "err", err)
	}
}
