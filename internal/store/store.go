package store

import (
	"context"

	"answer-router/internal/history"
)

// Store persists decision records beyond the process lifetime.
type Store interface {
	SaveDecision(ctx context.Context, rec history.Record) error
	Close() error
}

// Sink adapts a Store to history.Sink.
func Sink(st Store) history.Sink {
	return history.SinkFunc(st.SaveDecision)
}
