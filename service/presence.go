package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/zlnvch/canvasverse/collab"
	"github.com/zlnvch/canvasverse/models"
)

// PresenceUpdateMessage is published on the presence channel whenever a
// presence record is upserted or removed.
type PresenceUpdateMessage struct {
	CanvasId string `json:"canvasId"`
	UserId   string `json:"userId"`
	Removed  bool   `json:"removed,omitempty"`
}

func PresenceChannel(canvasId string) string {
	return "presence:" + canvasId
}

// ActiveCanvasSummary aggregates live presence per canvas for listing
// views.
type ActiveCanvasSummary struct {
	CanvasId  string   `json:"canvasId"`
	Count     int      `json:"count"`
	UserNames []string `json:"userNames"`
}

// UpsertPresence inserts or refreshes the user's presence row for the
// canvas and notifies subscribers.
func (s *Service) UpsertPresence(ctx context.Context, record models.PresenceRecord) error {
	if record.LastSeen == 0 {
		record.LastSeen = time.Now().UnixMilli()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if err := s.Cache.UpsertPresence(ctx, record.CanvasId, record.UserId, data, record.LastSeen); err != nil {
		return err
	}

	s.publishPresenceEvent(record.CanvasId, record.UserId, false)
	return nil
}

// RemovePresence is the explicit-leave path. Idempotent: removing an
// absent row is a no-op.
func (s *Service) RemovePresence(ctx context.Context, canvasId string, userId string) error {
	if err := s.Cache.RemovePresence(ctx, canvasId, userId); err != nil {
		return err
	}

	s.publishPresenceEvent(canvasId, userId, true)
	return nil
}

func (s *Service) publishPresenceEvent(canvasId string, userId string, removed bool) {
	msg := PresenceUpdateMessage{CanvasId: canvasId, UserId: userId, Removed: removed}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.Cache.Publish(context.Background(), PresenceChannel(canvasId), msgBytes); err != nil {
		log.Printf("Failed to publish presence event for canvas %s: %v", canvasId, err)
	}
}

// ListPresence returns the raw presence records for the canvas. Rows
// that fail to decode are skipped.
func (s *Service) ListPresence(ctx context.Context, canvasId string) ([]models.PresenceRecord, error) {
	rows, err := s.Cache.GetPresence(ctx, canvasId)
	if err != nil {
		return nil, err
	}

	records := make([]models.PresenceRecord, 0, len(rows))
	for _, row := range rows {
		var record models.PresenceRecord
		if err := json.Unmarshal(row, &record); err != nil {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// ListActive returns every non-purged presence record for the canvas,
// annotated with idleness at the supplied instant.
func (s *Service) ListActive(ctx context.Context, canvasId string, now int64) ([]collab.Collaborator, error) {
	rows, err := s.Cache.GetPresence(ctx, canvasId)
	if err != nil {
		return nil, err
	}

	collaborators := make([]collab.Collaborator, 0, len(rows))
	for _, row := range rows {
		var record models.PresenceRecord
		if err := json.Unmarshal(row, &record); err != nil {
			// Skip rows we cannot decode rather than failing the roster
			continue
		}
		collaborators = append(collaborators, collab.Collaborator{
			UserId:             record.UserId,
			UserName:           record.UserName,
			Color:              record.UserColor,
			Pointer:            record.Pointer,
			SelectedElementIds: record.SelectedElementIds,
			IsIdle:             collab.IsIdle(record.LastSeen, now),
		})
	}

	return collaborators, nil
}

// ActiveCollaborators aggregates non-idle users per canvas. Canvases
// with nobody active are omitted entirely rather than reported as zero.
func (s *Service) ActiveCollaborators(ctx context.Context, canvasIds []string, now int64) ([]ActiveCanvasSummary, error) {
	summaries := make([]ActiveCanvasSummary, 0, len(canvasIds))

	for _, canvasId := range canvasIds {
		collaborators, err := s.ListActive(ctx, canvasId, now)
		if err != nil {
			return nil, err
		}

		var names []string
		for _, c := range collaborators {
			if c.IsIdle {
				continue
			}
			names = append(names, c.UserName)
		}
		if len(names) == 0 {
			continue
		}

		summaries = append(summaries, ActiveCanvasSummary{
			CanvasId:  canvasId,
			Count:     len(names),
			UserNames: names,
		})
	}

	return summaries, nil
}

// PurgeStalePresence deletes every presence row older than the purge
// threshold, across all canvases. Called by the background reaper.
// The threshold is strict: a row aged exactly PurgeThresholdMs survives.
func (s *Service) PurgeStalePresence(ctx context.Context) (int64, error) {
	cutoff := time.Now().UnixMilli() - collab.PurgeThresholdMs - 1
	return s.Cache.PurgeStalePresence(ctx, cutoff)
}
