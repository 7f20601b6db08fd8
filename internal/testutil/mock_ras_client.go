package testutil

import (
	"context"

	"github.com/cloudfin/finance/internal/client/ras"
	"github.com/stretchr/testify/mock"
)

// MockRASClient is a testify mock of ras.Client
type MockRASClient struct {
	mock.Mock
}

var _ ras.Client = (*MockRASClient)(nil)

func NewMockRASClient() *MockRASClient {
	return &MockRASClient{}
}

func (m *MockRASClient) PauseResourcesByUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRASClient) ResumeResourcesByUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRASClient) PurgeUser(ctx context.Context, userID, provider string) error {
	args := m.Called(ctx, userID, provider)
	return args.Error(0)
}
