package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) UpsertPresence(ctx context.Context, canvasId string, userId string, data []byte, lastSeen int64) error {
	args := m.Called(ctx, canvasId, userId, data, lastSeen)
	return args.Error(0)
}

func (m *MockCache) GetPresence(ctx context.Context, canvasId string) ([][]byte, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([][]byte), args.Error(1)
}

func (m *MockCache) RemovePresence(ctx context.Context, canvasId string, userId string) error {
	args := m.Called(ctx, canvasId, userId)
	return args.Error(0)
}

func (m *MockCache) RemoveCanvasPresence(ctx context.Context, canvasId string) error {
	args := m.Called(ctx, canvasId)
	return args.Error(0)
}

func (m *MockCache) CountCanvasPresence(ctx context.Context, canvasId string) (int64, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) PurgeStalePresence(ctx context.Context, cutoff int64) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) SetCanvasSnapshot(ctx context.Context, canvasId string, data []byte) error {
	args := m.Called(ctx, canvasId, data)
	return args.Error(0)
}

func (m *MockCache) GetCanvasSnapshot(ctx context.Context, canvasId string) ([]byte, bool, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *MockCache) InvalidateCanvas(ctx context.Context, canvasId string) error {
	args := m.Called(ctx, canvasId)
	return args.Error(0)
}
