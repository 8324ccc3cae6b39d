package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"answer-router/internal/classify"
	"answer-router/internal/history"
	"answer-router/internal/logger"
	"answer-router/internal/provider"
	"answer-router/internal/queue"
	"answer-router/internal/scoring"
	"answer-router/internal/store"
)

func decisionTask(t *testing.T, rec history.Record) queue.Task {
	t.Helper()
	body, err := json.Marshal(rec)
	require.NoError(t, err)
	return queue.Task{ID: rec.ID, Type: queue.TaskTypeRecordDecision, Payload: body}
}

func TestRecordHandler(t *testing.T) {
	res := provider.Result{Source: "perplexity", Text: "Markets closed higher.", Confidence: 0.9}
	rec := history.Record{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Question:  "latest market news",
		Category:  classify.CurrentEvents,
		Results:   []provider.Result{res},
		Winner:    scoring.Scored{Result: res, Score: 1.15, CategoryBonus: 0.25},
	}

	tests := []struct {
		name    string
		task    queue.Task
		setup         func(*store.MockStore)
		wantErr       bool
		wantPermanent bool
	}{
		{
			name: "stores decoded decision",
			task: decisionTask(t, rec),
			setup: func(s *store.MockStore) {
				s.On("SaveDecision", mock.Anything, mock.MatchedBy(func(got history.Record) bool {
					return got.ID == rec.ID && got.Winner.Result.Source == "perplexity" && got.Category == classify.CurrentEvents
				})).Return(nil).Once()
			},
		},
		{
			name: "store failure is returned for retry",
			task: decisionTask(t, rec),
			setup: func(s *store.MockStore) {
				s.On("SaveDecision", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()
			},
			wantErr: true,
		},
		{
			name:          "malformed payload is not retried",
			task:          queue.Task{Type: queue.TaskTypeRecordDecision, Payload: []byte(`{nope`)},
			setup:         func(*store.MockStore) {},
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(store.MockStore)
			tt.setup(st)

			err := recordHandler(st, logger.Discard())(context.Background(), tt.task)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantPermanent, errors.Is(err, queue.ErrPermanent))
			} else {
				assert.NoError(t, err)
			}
			st.AssertExpectations(t)
		})
	}
}
