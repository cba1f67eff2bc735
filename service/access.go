package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/store"
)

// ResolveAccessLevel computes a user's effective permission for a canvas.
// Priority order, first match wins: ownership, an explicit access record,
// then link sharing. Returns nil when the user has no access at all.
func ResolveAccessLevel(canvas models.Canvas, userId string, explicit *models.AccessRecord) *models.AccessLevel {
	if userId != "" && canvas.OwnerId == userId {
		return levelPtr(models.AccessOwner)
	}

	if explicit != nil {
		return levelPtr(explicit.AccessLevel)
	}

	if canvas.LinkAccessEnabled {
		level := canvas.LinkAccessLevel
		if level == "" {
			level = models.AccessViewer
		}
		return levelPtr(level)
	}

	return nil
}

// EffectiveAccessLevel layers the legacy collaborationEnabled path on top
// of ResolveAccessLevel: when the flag is set, any authenticated non-owner
// gets editor-equivalent access even without a record or link setting.
// The legacy path is additive, it never downgrades a resolved level.
func EffectiveAccessLevel(canvas models.Canvas, userId string, explicit *models.AccessRecord) *models.AccessLevel {
	resolved := ResolveAccessLevel(canvas, userId, explicit)

	if canvas.CollaborationEnabled && userId != "" && canvas.OwnerId != userId {
		if resolved == nil || *resolved == models.AccessViewer {
			return levelPtr(models.AccessEditor)
		}
	}

	return resolved
}

func levelPtr(level models.AccessLevel) *models.AccessLevel {
	return &level
}

// CanAccessCanvas reports whether the user may read the canvas at all.
func CanAccessCanvas(canvas models.Canvas, userId string, explicit *models.AccessRecord) bool {
	return EffectiveAccessLevel(canvas, userId, explicit) != nil
}

// CanEditCanvas reports whether the user may mutate the scene payload.
func CanEditCanvas(canvas models.Canvas, userId string, explicit *models.AccessRecord) bool {
	level := EffectiveAccessLevel(canvas, userId, explicit)
	if level == nil {
		return false
	}
	return *level == models.AccessOwner || *level == models.AccessEditor
}

// CanAdministerCanvas gates destructive actions: deletion, sharing
// toggles and access-record management. Only the owner passes, editors
// included.
func CanAdministerCanvas(canvas models.Canvas, userId string) bool {
	return userId != "" && canvas.OwnerId == userId
}

// AccessLevelFor loads the explicit record (if any) and resolves the
// user's effective level for the canvas.
func (s *Service) AccessLevelFor(ctx context.Context, canvas models.Canvas, userId string) (*models.AccessLevel, error) {
	explicit, err := s.explicitRecord(ctx, canvas.Id, userId)
	if err != nil {
		return nil, err
	}
	return EffectiveAccessLevel(canvas, userId, explicit), nil
}

func (s *Service) explicitRecord(ctx context.Context, canvasId string, userId string) (*models.AccessRecord, error) {
	if userId == "" {
		return nil, nil
	}

	record, err := s.Store.GetAccessRecord(ctx, canvasId, userId)
	if err != nil {
		if err == store.ErrItemNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// AddCollaborator grants a user access to a canvas. Adding a user who
// already holds a record is rejected; changing a grant goes through
// UpdateAccessLevel.
func (s *Service) AddCollaborator(ctx context.Context, actor models.User, canvasId string, targetUserId string, level models.AccessLevel) error {
	canvas, err := s.authorizeAccessMutation(ctx, actor, canvasId, targetUserId, level)
	if err != nil {
		return err
	}

	if _, err := s.Store.GetAccessRecord(ctx, canvasId, targetUserId); err == nil {
		return ErrAccessExists
	} else if err != store.ErrItemNotFound {
		return err
	}

	return s.putAccessRecord(ctx, canvas, actor, targetUserId, level)
}

// UpdateAccessLevel changes an existing grant. A missing record surfaces
// as ErrItemNotFound rather than silently creating one.
func (s *Service) UpdateAccessLevel(ctx context.Context, actor models.User, canvasId string, targetUserId string, level models.AccessLevel) error {
	canvas, err := s.authorizeAccessMutation(ctx, actor, canvasId, targetUserId, level)
	if err != nil {
		return err
	}

	if _, err := s.Store.GetAccessRecord(ctx, canvasId, targetUserId); err != nil {
		return err
	}

	return s.putAccessRecord(ctx, canvas, actor, targetUserId, level)
}

func (s *Service) authorizeAccessMutation(ctx context.Context, actor models.User, canvasId string, targetUserId string, level models.AccessLevel) (models.Canvas, error) {
	if level != models.AccessEditor && level != models.AccessViewer {
		return models.Canvas{}, fmt.Errorf("invalid access level: %s", level)
	}

	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return models.Canvas{}, err
	}

	if !CanAdministerCanvas(canvas, actor.Id) {
		return models.Canvas{}, ErrUnauthorized
	}
	// Access records never target the owner
	if targetUserId == canvas.OwnerId {
		return models.Canvas{}, fmt.Errorf("cannot grant access to the canvas owner")
	}

	return canvas, nil
}

func (s *Service) putAccessRecord(ctx context.Context, canvas models.Canvas, actor models.User, targetUserId string, level models.AccessLevel) error {
	record := models.AccessRecord{
		CanvasId:    canvas.Id,
		UserId:      targetUserId,
		AccessLevel: level,
		GrantedAt:   time.Now().UnixMilli(),
		GrantedBy:   actor.Id,
	}
	if err := s.Store.PutAccessRecord(ctx, record); err != nil {
		return err
	}

	return s.syncCollaborationFlag(ctx, canvas)
}

func (s *Service) RemoveCollaborator(ctx context.Context, actor models.User, canvasId string, targetUserId string) error {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return err
	}

	if !CanAdministerCanvas(canvas, actor.Id) {
		return ErrUnauthorized
	}

	if err := s.Store.DeleteAccessRecord(ctx, canvasId, targetUserId); err != nil && err != store.ErrItemNotFound {
		return err
	}

	return s.syncCollaborationFlag(ctx, canvas)
}

func (s *Service) ListCollaborators(ctx context.Context, actor models.User, canvasId string) ([]models.AccessRecord, error) {
	canvas, err := s.Store.GetCanvas(ctx, canvasId)
	if err != nil {
		return nil, err
	}

	if !CanAdministerCanvas(canvas, actor.Id) {
		return nil, ErrUnauthorized
	}

	return s.Store.ListCanvasAccess(ctx, canvasId)
}

// syncCollaborationFlag recomputes the derived collaborationEnabled flag
// after every access-record mutation: true iff at least one record grants
// editor. Disabling the flag also evicts non-owner presence so stale
// cursors do not linger in a canvas that is no longer shared.
func (s *Service) syncCollaborationFlag(ctx context.Context, canvas models.Canvas) error {
	records, err := s.Store.ListCanvasAccess(ctx, canvas.Id)
	if err != nil {
		return err
	}

	enabled := false
	for _, record := range records {
		if record.AccessLevel == models.AccessEditor {
			enabled = true
			break
		}
	}

	if enabled == canvas.CollaborationEnabled {
		return nil
	}

	if err := s.Store.SetCollaborationEnabled(ctx, canvas.Id, enabled); err != nil {
		return err
	}

	if !enabled {
		if err := s.evictNonOwnerPresence(ctx, canvas); err != nil {
			log.Printf("Failed to evict presence for canvas %s: %v", canvas.Id, err)
		}
	}

	return nil
}

func (s *Service) evictNonOwnerPresence(ctx context.Context, canvas models.Canvas) error {
	rows, err := s.Cache.GetPresence(ctx, canvas.Id)
	if err != nil {
		return err
	}

	for _, row := range rows {
		var record models.PresenceRecord
		if err := json.Unmarshal(row, &record); err != nil {
			continue
		}
		if record.UserId == canvas.OwnerId {
			continue
		}
		if err := s.RemovePresence(ctx, canvas.Id, record.UserId); err != nil {
			return err
		}
	}

	return nil
}
