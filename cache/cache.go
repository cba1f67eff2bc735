package cache

import "context"

type CanvasverseCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	UpsertPresence(ctx context.Context, canvasId string, userId string, data []byte, lastSeen int64) error
	GetPresence(ctx context.Context, canvasId string) ([][]byte, error)
	RemovePresence(ctx context.Context, canvasId string, userId string) error
	RemoveCanvasPresence(ctx context.Context, canvasId string) error
	CountCanvasPresence(ctx context.Context, canvasId string) (int64, error)
	PurgeStalePresence(ctx context.Context, cutoff int64) (int64, error)

	SetCanvasSnapshot(ctx context.Context, canvasId string, data []byte) error
	GetCanvasSnapshot(ctx context.Context, canvasId string) ([]byte, bool, error)
	InvalidateCanvas(ctx context.Context, canvasId string) error
}
