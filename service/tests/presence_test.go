package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/canvasverse/collab"
	"github.com/zlnvch/canvasverse/models"
	mqmocks "github.com/zlnvch/canvasverse/mq/mocks"
	"github.com/zlnvch/canvasverse/service"
	storemocks "github.com/zlnvch/canvasverse/store/mocks"
)

func presenceRow(t *testing.T, record models.PresenceRecord) []byte {
	t.Helper()
	data, err := json.Marshal(record)
	assert.NoError(t, err)
	return data
}

func TestUpsertPresence_StampsLastSeenAndPublishes(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	mockCache.On("UpsertPresence", ctx, "c1", "user1", mock.Anything, mock.MatchedBy(func(lastSeen int64) bool {
		return lastSeen >= before
	})).Return(nil)
	mockCache.On("Publish", mock.Anything, "presence:c1", []byte(`{"canvasId":"c1","userId":"user1"}`)).Return(nil)

	err := svc.UpsertPresence(ctx, models.PresenceRecord{CanvasId: "c1", UserId: "user1", UserName: "alice"})
	assert.NoError(t, err)
	mockCache.AssertExpectations(t)
}

func TestUpsertPresence_KeepsCallerTimestamp(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()

	mockCache.On("UpsertPresence", ctx, "c1", "user1", mock.Anything, int64(1234)).Return(nil)
	mockCache.On("Publish", mock.Anything, "presence:c1", mock.Anything).Return(nil)

	err := svc.UpsertPresence(ctx, models.PresenceRecord{CanvasId: "c1", UserId: "user1", LastSeen: 1234})
	assert.NoError(t, err)
}

func TestRemovePresence_PublishesRemoval(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()

	mockCache.On("RemovePresence", ctx, "c1", "user1").Return(nil)
	mockCache.On("Publish", mock.Anything, "presence:c1", []byte(`{"canvasId":"c1","userId":"user1","removed":true}`)).Return(nil)

	assert.NoError(t, svc.RemovePresence(ctx, "c1", "user1"))
	// Removing again is a no-op at the cache layer and still succeeds
	assert.NoError(t, svc.RemovePresence(ctx, "c1", "user1"))
}

func TestListActive_AnnotatesIdleness(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()
	now := int64(1_000_000)

	rows := [][]byte{
		presenceRow(t, models.PresenceRecord{CanvasId: "c1", UserId: "fresh", LastSeen: now - collab.IdleThresholdMs}),
		presenceRow(t, models.PresenceRecord{CanvasId: "c1", UserId: "stale", LastSeen: now - collab.IdleThresholdMs - 1}),
		[]byte("{corrupt"),
	}
	mockCache.On("GetPresence", ctx, "c1").Return(rows, nil)

	collaborators, err := svc.ListActive(ctx, "c1", now)
	assert.NoError(t, err)
	assert.Len(t, collaborators, 2, "undecodable rows are skipped")

	// Exactly at the threshold is still active; one past it is idle
	assert.Equal(t, "fresh", collaborators[0].UserId)
	assert.False(t, collaborators[0].IsIdle)
	assert.Equal(t, "stale", collaborators[1].UserId)
	assert.True(t, collaborators[1].IsIdle)
}

func TestActiveCollaborators_OmitsQuietCanvases(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()
	now := int64(1_000_000)

	mockCache.On("GetPresence", ctx, "busy").Return([][]byte{
		presenceRow(t, models.PresenceRecord{CanvasId: "busy", UserId: "u1", UserName: "alice", LastSeen: now}),
		presenceRow(t, models.PresenceRecord{CanvasId: "busy", UserId: "u2", UserName: "bob", LastSeen: now - collab.IdleThresholdMs - 1}),
	}, nil)
	mockCache.On("GetPresence", ctx, "idle-only").Return([][]byte{
		presenceRow(t, models.PresenceRecord{CanvasId: "idle-only", UserId: "u3", UserName: "carol", LastSeen: now - collab.IdleThresholdMs - 1}),
	}, nil)
	mockCache.On("GetPresence", ctx, "empty").Return([][]byte{}, nil)

	summaries, err := svc.ActiveCollaborators(ctx, []string{"busy", "idle-only", "empty"}, now)
	assert.NoError(t, err)

	// Idle users neither count nor appear; quiet canvases are absent
	assert.Len(t, summaries, 1)
	assert.Equal(t, "busy", summaries[0].CanvasId)
	assert.Equal(t, 1, summaries[0].Count)
	assert.Equal(t, []string{"alice"}, summaries[0].UserNames)
}

// memPresenceCache is a map-backed cache for replay tests, where mock
// expectations would just restate the sequence under test.
type memPresenceCache struct {
	rows map[string]map[string][]byte
}

func newMemPresenceCache() *memPresenceCache {
	return &memPresenceCache{rows: map[string]map[string][]byte{}}
}

func (c *memPresenceCache) Publish(ctx context.Context, channel string, message []byte) error {
	return nil
}

func (c *memPresenceCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	return nil
}

func (c *memPresenceCache) UpsertPresence(ctx context.Context, canvasId string, userId string, data []byte, lastSeen int64) error {
	if c.rows[canvasId] == nil {
		c.rows[canvasId] = map[string][]byte{}
	}
	c.rows[canvasId][userId] = data
	return nil
}

func (c *memPresenceCache) GetPresence(ctx context.Context, canvasId string) ([][]byte, error) {
	rows := make([][]byte, 0, len(c.rows[canvasId]))
	for _, row := range c.rows[canvasId] {
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *memPresenceCache) RemovePresence(ctx context.Context, canvasId string, userId string) error {
	delete(c.rows[canvasId], userId)
	return nil
}

func (c *memPresenceCache) RemoveCanvasPresence(ctx context.Context, canvasId string) error {
	delete(c.rows, canvasId)
	return nil
}

func (c *memPresenceCache) CountCanvasPresence(ctx context.Context, canvasId string) (int64, error) {
	return int64(len(c.rows[canvasId])), nil
}

func (c *memPresenceCache) PurgeStalePresence(ctx context.Context, cutoff int64) (int64, error) {
	return 0, nil
}

func (c *memPresenceCache) SetCanvasSnapshot(ctx context.Context, canvasId string, data []byte) error {
	return nil
}

func (c *memPresenceCache) GetCanvasSnapshot(ctx context.Context, canvasId string) ([]byte, bool, error) {
	return nil, false, nil
}

func (c *memPresenceCache) InvalidateCanvas(ctx context.Context, canvasId string) error {
	delete(c.rows, canvasId)
	return nil
}

func TestPresence_ReplayMatchesManualFold(t *testing.T) {
	mockStore := new(storemocks.MockStore)
	mockMQ := new(mqmocks.MockMQ)
	svc, err := service.NewService(mockStore, newMemPresenceCache(), mockMQ, nil, []byte("secret"))
	assert.NoError(t, err)
	ctx := context.Background()
	now := int64(1_000_000)

	type op struct {
		remove bool
		userId string
	}
	ops := []op{
		{userId: "u1"},
		{userId: "u2"},
		{userId: "u1"}, // refresh
		{remove: true, userId: "u2"},
		{userId: "u3"},
		{remove: true, userId: "ghost"}, // removing an absent user is a no-op
		{userId: "u2"},                  // rejoin after removal
	}

	expected := map[string]bool{}
	for _, o := range ops {
		if o.remove {
			assert.NoError(t, svc.RemovePresence(ctx, "c1", o.userId))
			delete(expected, o.userId)
			continue
		}
		assert.NoError(t, svc.UpsertPresence(ctx, models.PresenceRecord{CanvasId: "c1", UserId: o.userId, LastSeen: now}))
		expected[o.userId] = true
	}

	collaborators, err := svc.ListActive(ctx, "c1", now)
	assert.NoError(t, err)

	got := map[string]bool{}
	for _, c := range collaborators {
		got[c.UserId] = true
	}
	assert.Equal(t, expected, got)
}

func TestPurgeStalePresence_UsesStrictCutoff(t *testing.T) {
	svc, _, mockCache, _ := setupService(t)
	ctx := context.Background()

	before := time.Now().UnixMilli()
	mockCache.On("PurgeStalePresence", ctx, mock.MatchedBy(func(cutoff int64) bool {
		after := time.Now().UnixMilli()
		// The sweep uses an inclusive range, so the cutoff sits one
		// millisecond short of the purge threshold.
		return cutoff >= before-collab.PurgeThresholdMs-1 && cutoff <= after-collab.PurgeThresholdMs-1
	})).Return(int64(3), nil)

	purged, err := svc.PurgeStalePresence(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), purged)
}
