package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"answer-router/internal/history"
)

const (
	publishAttempts = 3
	publishBackoff  = 200 * time.Millisecond
)

// DecisionSink publishes every decision as a record_decision task for the recorder worker.
type DecisionSink struct {
	q Queue
}

// NewDecisionSink wraps q as a history.Sink.
func NewDecisionSink(q Queue) *DecisionSink {
	return &DecisionSink{q: q}
}

func (s *DecisionSink) Write(ctx context.Context, rec history.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", rec.ID, err)
	}
	task := Task{ID: rec.ID, Type: TaskTypeRecordDecision, Payload: body}
	return EnqueueWithRetry(ctx, s.q, task, publishAttempts, publishBackoff)
}

// DecodeDecision reads the record carried by a record_decision task. Decode failures wrap ErrPermanent.
func DecodeDecision(task Task) (history.Record, error) {
	var rec history.Record
	if task.Type != TaskTypeRecordDecision {
		return rec, Permanent(fmt.Errorf("unexpected task type %q", task.Type))
	}
	if err := json.Unmarshal(task.Payload, &rec); err != nil {
		return rec, Permanent(fmt.Errorf("decode decision payload: %w", err))
	}
	return rec, nil
}
