package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/mq"
	"github.com/zlnvch/canvasverse/store"
)

// SceneUpdateMessage is published on the canvas channel after every
// accepted scene write so other sessions can reconcile against it.
type SceneUpdateMessage struct {
	CanvasId  string `json:"canvasId"`
	UserId    string `json:"userId"`
	Data      string `json:"data"`
	UpdatedAt int64  `json:"updatedAt"`
}

func SceneChannel(canvasId string) string {
	return "canvas:" + canvasId
}

func (s *Service) CreateCanvas(ctx context.Context, owner models.User, title string) (models.Canvas, error) {
	canvas := models.Canvas{
		OwnerId: owner.Id,
		Title:   title,
	}
	return s.Store.CreateCanvas(ctx, canvas)
}

func (s *Service) GetCanvas(ctx context.Context, user models.User, canvasId string) (models.Canvas, error) {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return models.Canvas{}, err
	}

	explicit, err := s.explicitRecord(ctx, canvasId, user.Id)
	if err != nil {
		return models.Canvas{}, err
	}
	if !CanAccessCanvas(canvas, user.Id, explicit) {
		return models.Canvas{}, ErrUnauthorized
	}

	return canvas, nil
}

func (s *Service) ListCanvases(ctx context.Context, user models.User) ([]models.Canvas, error) {
	canvases, err := s.Store.ListCanvasesByOwner(ctx, user.Id)
	if err != nil {
		return nil, err
	}

	sort.Slice(canvases, func(i, j int) bool {
		return canvases[i].UpdatedAt > canvases[j].UpdatedAt
	})
	return canvases, nil
}

// ListSharedCanvases returns canvases another user granted this user
// access to, most recently edited first.
func (s *Service) ListSharedCanvases(ctx context.Context, user models.User) ([]models.Canvas, error) {
	records, err := s.Store.ListUserAccess(ctx, user.Id)
	if err != nil {
		return nil, err
	}

	canvases := make([]models.Canvas, 0, len(records))
	for _, record := range records {
		canvas, err := s.Store.GetCanvas(ctx, record.CanvasId)
		if err != nil {
			if err == store.ErrItemNotFound {
				// Access record outlived its canvas, skip it
				continue
			}
			return nil, err
		}
		canvases = append(canvases, canvas)
	}

	sort.Slice(canvases, func(i, j int) bool {
		return canvases[i].UpdatedAt > canvases[j].UpdatedAt
	})
	return canvases, nil
}

func (s *Service) RenameCanvas(ctx context.Context, user models.User, canvasId string, title string) error {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return err
	}

	explicit, err := s.explicitRecord(ctx, canvasId, user.Id)
	if err != nil {
		return err
	}
	if !CanEditCanvas(canvas, user.Id, explicit) {
		return ErrUnauthorized
	}

	return s.Store.RenameCanvas(ctx, canvasId, title, time.Now().UnixMilli())
}

func (s *Service) SetLinkAccess(ctx context.Context, user models.User, canvasId string, enabled bool, level models.AccessLevel) error {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return err
	}

	if !CanAdministerCanvas(canvas, user.Id) {
		return ErrUnauthorized
	}

	if level == "" {
		level = models.AccessViewer
	}
	if level != models.AccessEditor && level != models.AccessViewer {
		return ErrUnauthorized
	}

	return s.Store.SetLinkAccess(ctx, canvasId, enabled, level)
}

type CanvasDeletedMessage struct {
	CanvasId string `json:"canvasId"`
}

func (s *Service) DeleteCanvas(ctx context.Context, user models.User, canvasId string) error {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return err
	}

	if !CanAdministerCanvas(canvas, user.Id) {
		return ErrUnauthorized
	}

	if err := s.Store.DeleteCanvas(ctx, canvasId); err != nil {
		return err
	}

	// Async side-effects - return to caller as soon as the store delete is done
	go func() {
		deletedMsg := CanvasDeletedMessage{CanvasId: canvasId}
		if deletedMsgBytes, err := json.Marshal(deletedMsg); err == nil {
			s.Cache.Publish(context.Background(), "canvas-deleted", deletedMsgBytes)
		}

		if err := s.Cache.InvalidateCanvas(context.Background(), canvasId); err != nil {
			log.Printf("Failed to invalidate cache for canvas %s: %v", canvasId, err)
		}

		cleanupMsg := mq.CanvasCleanupMessage{CanvasId: canvasId}
		if cleanupMsgBytes, err := json.Marshal(cleanupMsg); err == nil {
			s.MQ.Send(context.Background(), string(cleanupMsgBytes))
		}
	}()

	return nil
}

// UpdateScene is the write authority for scene payloads. It authorizes
// the caller, suppresses byte-identical writes, applies the optimistic
// version check and publishes the accepted snapshot to subscribers.
// Returns the version stamp the canvas holds after the call.
func (s *Service) UpdateScene(ctx context.Context, userId string, canvasId string, data string, expectedVersion *int64) (int64, error) {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return 0, err
	}

	explicit, err := s.explicitRecord(ctx, canvasId, userId)
	if err != nil {
		return 0, err
	}
	if !CanEditCanvas(canvas, userId, explicit) {
		return 0, ErrUnauthorized
	}

	// Redundant-write suppression: a byte-identical payload is a no-op
	// success, no version bump and no subscriber notification.
	if data == canvas.Data {
		return canvas.UpdatedAt, nil
	}

	if expectedVersion != nil && *expectedVersion != canvas.UpdatedAt {
		return 0, &VersionConflictError{StoredVersion: canvas.UpdatedAt}
	}

	updatedAt := time.Now().UnixMilli()
	err = s.Store.UpdateCanvasData(ctx, canvasId, data, updatedAt, expectedVersion)
	if err != nil {
		if err == store.ErrConditionFailed {
			// Lost the race between our read and the conditional write
			current, getErr := s.Store.GetCanvas(ctx, canvasId)
			if getErr != nil {
				return 0, getErr
			}
			return 0, &VersionConflictError{StoredVersion: current.UpdatedAt}
		}
		return 0, err
	}

	// Async side-effects - return to caller as soon as the store write is done
	go func() {
		updateMsg := SceneUpdateMessage{
			CanvasId:  canvasId,
			UserId:    userId,
			Data:      data,
			UpdatedAt: updatedAt,
		}
		if updateMsgBytes, err := json.Marshal(updateMsg); err == nil {
			s.Cache.Publish(context.Background(), SceneChannel(canvasId), updateMsgBytes)
		}

		if err := s.Cache.SetCanvasSnapshot(context.Background(), canvasId, []byte(data)); err != nil {
			log.Printf("Failed to cache snapshot for canvas %s: %v", canvasId, err)
		}
	}()

	return updatedAt, nil
}

// GetSceneData serves the scene payload for a canvas the user can read,
// preferring the cached snapshot over a store read.
func (s *Service) GetSceneData(ctx context.Context, user models.User, canvasId string) (string, int64, error) {
	canvas, err := s.GetCanvas(ctx, user, canvasId)
	if err != nil {
		return "", 0, err
	}

	snapshot, found, err := s.Cache.GetCanvasSnapshot(ctx, canvasId)
	if err == nil && found {
		return string(snapshot), canvas.UpdatedAt, nil
	}
	if err != nil {
		log.Printf("Snapshot read failed for canvas %s: %v", canvasId, err)
	}

	go func() {
		if canvas.Data != "" {
			s.Cache.SetCanvasSnapshot(context.Background(), canvasId, []byte(canvas.Data))
		}
	}()

	return canvas.Data, canvas.UpdatedAt, nil
}
