package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"answer-router/internal/history"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveDecision(ctx context.Context, rec history.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
