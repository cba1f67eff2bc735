package collab_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zlnvch/canvasverse/collab"
)

func TestSaveTracker_IdenticalSnapshotIsNoChange(t *testing.T) {
	tracker := collab.NewSaveTracker(newFakeClock())
	tracker.Reset(`{"elements":[]}`)

	assert.False(t, tracker.MarkChange(`{"elements":[]}`))
	assert.False(t, tracker.IsDirty())

	assert.True(t, tracker.MarkChange(`{"elements":[{"id":"a"}]}`))
	assert.True(t, tracker.IsDirty())
}

func TestSaveTracker_ConfirmSaveSetsNewBaseline(t *testing.T) {
	clock := newFakeClock()
	tracker := collab.NewSaveTracker(clock)
	tracker.Reset("v1")

	assert.True(t, tracker.MarkChange("v2"))
	tracker.ConfirmSave("v2")

	assert.False(t, tracker.IsDirty())
	assert.False(t, tracker.MarkChange("v2"))
	assert.True(t, tracker.MarkChange("v1"), "old baseline no longer matches")
}

func TestSaveTracker_ResetWithoutBaselineTreatsFirstSnapshotAsChange(t *testing.T) {
	tracker := collab.NewSaveTracker(newFakeClock())
	tracker.Reset("")

	assert.True(t, tracker.MarkChange(""))
	assert.True(t, tracker.MarkChange("anything"))
}

func TestSaveTracker_LastSavedAt(t *testing.T) {
	clock := newFakeClock()
	tracker := collab.NewSaveTracker(clock)
	tracker.Reset("v1")

	assert.Nil(t, tracker.LastSavedAt())

	tracker.ConfirmSave("v2")
	saved := tracker.LastSavedAt()
	assert.NotNil(t, saved)
	assert.Equal(t, clock.Now(), *saved)

	clock.Advance(time.Minute)
	tracker.ConfirmSave("v3")
	assert.Equal(t, clock.Now(), *tracker.LastSavedAt())

	// Reset clears the session's save history
	tracker.Reset("v3")
	assert.Nil(t, tracker.LastSavedAt())
}
