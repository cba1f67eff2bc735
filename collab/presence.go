package collab

import (
	"github.com/zlnvch/canvasverse/models"
)

const (
	// IdleThresholdMs marks a collaborator idle once their last
	// heartbeat is strictly older than this.
	IdleThresholdMs = 30_000

	// PurgeThresholdMs is the independent, coarser window after which
	// leaked presence records (crashed tab, lost network) are garbage
	// collected by the background sweep.
	PurgeThresholdMs = 300_000
)

// IsIdle reports whether a presence record is idle at the given instant.
// The boundary case (now - lastSeen == threshold) is not idle.
func IsIdle(lastSeenMs, nowMs int64) bool {
	return nowMs-lastSeenMs > IdleThresholdMs
}

// Collaborator is a presence record formatted for rendering as a remote
// cursor in the host editor.
type Collaborator struct {
	UserId             string          `json:"userId"`
	UserName           string          `json:"userName"`
	Color              string          `json:"color"`
	Pointer            *models.Pointer `json:"pointer,omitempty"`
	SelectedElementIds []string        `json:"selectedElementIds"`
	IsIdle             bool            `json:"isIdle"`
}
