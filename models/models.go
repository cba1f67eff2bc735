package models

import "encoding/json"

type User struct {
	Id         string
	Username   string
	Provider   string
	ProviderId string
	Created    int64
}

type AccessLevel string

const (
	AccessOwner  AccessLevel = "owner"
	AccessEditor AccessLevel = "editor"
	AccessViewer AccessLevel = "viewer"
)

// Canvas is the durable document row. Data holds the serialized scene
// payload (see ScenePayload); UpdatedAt doubles as the optimistic
// concurrency version stamp and the "last edited" display value.
type Canvas struct {
	Id                   string      `json:"id"`
	OwnerId              string      `json:"ownerId"`
	Title                string      `json:"title"`
	Data                 string      `json:"data,omitempty"`
	UpdatedAt            int64       `json:"updatedAt"`
	CollaborationEnabled bool        `json:"collaborationEnabled"`
	LinkAccessEnabled    bool        `json:"linkAccessEnabled"`
	LinkAccessLevel      AccessLevel `json:"linkAccessLevel,omitempty"`
}

type AccessRecord struct {
	CanvasId    string      `json:"canvasId"`
	UserId      string      `json:"userId"`
	AccessLevel AccessLevel `json:"accessLevel"`
	GrantedAt   int64       `json:"grantedAt"`
	GrantedBy   string      `json:"grantedBy"`
}

// Element is a single drawing element. Geometry and style beyond the
// named fields are carried opaquely in Props. Elements are never
// destroyed; IsDeleted tombstones keep merges commutative.
type Element struct {
	Id           string          `json:"id"`
	Type         string          `json:"type"`
	Version      int64           `json:"version"`
	VersionNonce int64           `json:"versionNonce"`
	IsDeleted    bool            `json:"isDeleted,omitempty"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Width        float64         `json:"width,omitempty"`
	Height       float64         `json:"height,omitempty"`
	Angle        float64         `json:"angle,omitempty"`
	FileId       string          `json:"fileId,omitempty"`
	Props        json.RawMessage `json:"props,omitempty"`
}

type BinaryFile struct {
	Id       string `json:"id"`
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataURL"`
	Created  int64  `json:"created"`
}

type AppState struct {
	ViewBackgroundColor string `json:"viewBackgroundColor,omitempty"`
	GridSize            int    `json:"gridSize,omitempty"`
}

// ScenePayload is the wire shape stored in Canvas.Data. Only files
// referenced by an image element may appear in Files.
type ScenePayload struct {
	Elements []Element             `json:"elements"`
	AppState AppState              `json:"appState"`
	Files    map[string]BinaryFile `json:"files,omitempty"`
}

type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PresenceRecord is ephemeral per-(canvas,user) liveness state. It lives
// in the cache, never in the document store, and is garbage-collected
// after the purge window if the session did not leave cleanly.
type PresenceRecord struct {
	CanvasId           string   `json:"canvasId"`
	UserId             string   `json:"userId"`
	UserName           string   `json:"userName"`
	UserColor          string   `json:"userColor"`
	Pointer            *Pointer `json:"pointer,omitempty"`
	SelectedElementIds []string `json:"selectedElementIds"`
	LastSeen           int64    `json:"lastSeen"`
}
