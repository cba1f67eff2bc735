package store

import (
	"context"
	"errors"

	"github.com/zlnvch/canvasverse/models"
)

type CanvasStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, provider string, providerId string) (models.User, error)
	DeleteUser(ctx context.Context, provider string, providerId string) error

	CreateCanvas(ctx context.Context, canvas models.Canvas) (models.Canvas, error)
	GetCanvas(ctx context.Context, canvasId string) (models.Canvas, error)
	ListCanvasesByOwner(ctx context.Context, ownerId string) ([]models.Canvas, error)
	RenameCanvas(ctx context.Context, canvasId string, title string, updatedAt int64) error
	// UpdateCanvasData writes the serialized scene and bumps the version
	// stamp. A non-nil expectedVersion makes the write conditional on the
	// stored UpdatedAt; a mismatch returns ErrConditionFailed.
	UpdateCanvasData(ctx context.Context, canvasId string, data string, updatedAt int64, expectedVersion *int64) error
	SetLinkAccess(ctx context.Context, canvasId string, enabled bool, level models.AccessLevel) error
	SetCollaborationEnabled(ctx context.Context, canvasId string, enabled bool) error
	DeleteCanvas(ctx context.Context, canvasId string) error

	PutAccessRecord(ctx context.Context, record models.AccessRecord) error
	GetAccessRecord(ctx context.Context, canvasId string, userId string) (models.AccessRecord, error)
	ListCanvasAccess(ctx context.Context, canvasId string) ([]models.AccessRecord, error)
	ListUserAccess(ctx context.Context, userId string) ([]models.AccessRecord, error)
	DeleteAccessRecord(ctx context.Context, canvasId string, userId string) error
	DeleteCanvasAccess(ctx context.Context, canvasId string) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)
