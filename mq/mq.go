package mq

import "context"

type MessageQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}

// CanvasCleanupMessage is queued when a canvas is deleted, so access
// records and presence rows are removed out of the request path.
type CanvasCleanupMessage struct {
	CanvasId string `json:"canvasId"`
}
