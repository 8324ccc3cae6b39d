package provider

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of Adapter using testify/mock.
type MockAdapter struct {
	mock.Mock
	Name string
}

func (m *MockAdapter) ID() string {
	return m.Name
}

func (m *MockAdapter) Query(ctx context.Context, question string) Result {
	args := m.Called(ctx, question)
	return args.Get(0).(Result)
}
