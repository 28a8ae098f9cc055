package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of ArtifactStore.
type MockStore struct {
	mock.Mock
}

// PutObject records the call and returns the configured values.
func (m *MockStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// GetObject records the call and returns the configured values.
func (m *MockStore) GetObject(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1) //nolint:wrapcheck
}
