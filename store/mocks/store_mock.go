package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/canvasverse/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	args := m.Called(ctx, provider, providerId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) DeleteUser(ctx context.Context, provider string, providerId string) error {
	args := m.Called(ctx, provider, providerId)
	return args.Error(0)
}

func (m *MockStore) CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error) {
	args := m.Called(ctx, canvas)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).(models.Canvas), args.Error(1)
}

func (m *MockStore) ListCanvasesByOwner(ctx context.Context, ownerId string) ([]models.Canvas, error) {
	args := m.Called(ctx, ownerId)
	return args.Get(0).([]models.Canvas), args.Error(1)
}

func (m *MockStore) RenameCanvas(ctx context.Context, canvasId string, title string, updatedAt int64) error {
	args := m.Called(ctx, canvasId, title, updatedAt)
	return args.Error(0)
}

func (m *MockStore) UpdateCanvasData(ctx context.Context, canvasId string, data string, updatedAt int64, expectedVersion *int64) error {
	args := m.Called(ctx, canvasId, data, updatedAt, expectedVersion)
	return args.Error(0)
}

func (m *MockStore) SetLinkAccess(ctx context.Context, canvasId string, enabled bool, level models.AccessLevel) error {
	args := m.Called(ctx, canvasId, enabled, level)
	return args.Error(0)
}

func (m *MockStore) SetCollaborationEnabled(ctx context.Context, canvasId string, enabled bool) error {
	args := m.Called(ctx, canvasId, enabled)
	return args.Error(0)
}

func (m *MockStore) DeleteCanvas(ctx context.Context, canvasId string) error {
	args := m.Called(ctx, canvasId)
	return args.Error(0)
}

func (m *MockStore) PutAccessRecord(ctx context.Context, record models.AccessRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStore) GetAccessRecord(ctx context.Context, canvasId string, userId string) (models.AccessRecord, error) {
	args := m.Called(ctx, canvasId, userId)
	return args.Get(0).(models.AccessRecord), args.Error(1)
}

func (m *MockStore) ListCanvasAccess(ctx context.Context, canvasId string) ([]models.AccessRecord, error) {
	args := m.Called(ctx, canvasId)
	return args.Get(0).([]models.AccessRecord), args.Error(1)
}

func (m *MockStore) ListUserAccess(ctx context.Context, userId string) ([]models.AccessRecord, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]models.AccessRecord), args.Error(1)
}

func (m *MockStore) DeleteAccessRecord(ctx context.Context, canvasId string, userId string) error {
	args := m.Called(ctx, canvasId, userId)
	return args.Error(0)
}

func (m *MockStore) DeleteCanvasAccess(ctx context.Context, canvasId string) error {
	args := m.Called(ctx, canvasId)
	return args.Error(0)
}
