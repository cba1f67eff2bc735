package collab

import (
	"sync"
	"time"
)

// SaveTracker detects whether a serialized snapshot actually differs
// from the last confirmed save, using byte equality on the serialized
// string. Re-serializations without semantic change collapse into zero
// network traffic. One tracker per open editing session; Reset must be
// called on document load so the initial snapshot is not treated as a
// change.
type SaveTracker struct {
	clock Clock

	mu          sync.Mutex
	lastSaved   string
	hasBaseline bool
	dirty       bool
	lastSavedAt *time.Time
}

func NewSaveTracker(clock Clock) *SaveTracker {
	if clock == nil {
		clock = RealClock()
	}
	return &SaveTracker{clock: clock}
}

// MarkChange reports whether data differs from the last confirmed
// snapshot and marks the tracker dirty if it does.
func (t *SaveTracker) MarkChange(data string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasBaseline && data == t.lastSaved {
		return false
	}
	t.dirty = true
	return true
}

func (t *SaveTracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// ConfirmSave records data as the new baseline after a confirmed write.
func (t *SaveTracker) ConfirmSave(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSaved = data
	t.hasBaseline = true
	t.dirty = false
	now := t.clock.Now()
	t.lastSavedAt = &now
}

// Reset reinitializes the baseline, e.g. on document load. An empty
// initial string clears the baseline entirely, so the next MarkChange
// always reports a change. LastSavedAt is cleared: no save has happened
// in the new session yet.
func (t *SaveTracker) Reset(initial string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSaved = initial
	t.hasBaseline = initial != ""
	t.dirty = false
	t.lastSavedAt = nil
}

// LastSavedAt returns the time of the last confirmed save this session,
// or nil if none has completed yet.
func (t *SaveTracker) LastSavedAt() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastSavedAt == nil {
		return nil
	}
	at := *t.lastSavedAt
	return &at
}
