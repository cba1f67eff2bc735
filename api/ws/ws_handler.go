package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/canvasverse/collab"
	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/scene"
	"github.com/zlnvch/canvasverse/service"
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

// sessionBackend adapts the service to the session's backend interface
// (the argument orders differ).
type sessionBackend struct {
	svc *service.Service
}

func (b sessionBackend) UpdateScene(ctx context.Context, canvasId, userId, data string, expectedVersion *int64) (int64, error) {
	return b.svc.UpdateScene(ctx, userId, canvasId, data, expectedVersion)
}

func (b sessionBackend) UpsertPresence(ctx context.Context, record models.PresenceRecord) error {
	return b.svc.UpsertPresence(ctx, record)
}

func (b sessionBackend) RemovePresence(ctx context.Context, canvasId, userId string) error {
	return b.svc.RemovePresence(ctx, canvasId, userId)
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == requiredOrigin
		},
		Subprotocols: []string{"canvasverse-v1"},
	}
}

// ServeWS handles websocket requests from the peer.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	user, authErr := h.Service.AuthenticateToken(r.Context(), token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, user, h.HandleWsMessage, h.handleDisconnect)

	h.Hub.OpenCh <- client

	// Start pumps
	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// handleDisconnect tears down every session this connection had open.
// Leave flushes nothing: pending solo saves are lost on a hard drop, the
// same as a browser crash. Presence rows are removed so rosters stay
// accurate without waiting for the reaper.
func (h *Handler) handleDisconnect(client *Client) {
	for _, session := range client.takeSessions() {
		session.Leave(context.Background())
	}
}

// newCanvasSession builds the session for a joined canvas, wiring its
// output back to this connection: merged scenes and rebuilt rosters go
// out as scene_update / presence_update events.
func (h *Handler) newCanvasSession(client *Client, canvas models.Canvas, canvasId string) *collab.Session {
	return collab.NewSession(collab.Config{
		CanvasId:      canvasId,
		User:          client.user,
		Collaborative: canvas.CollaborationEnabled || canvas.LinkAccessEnabled,
		Backend:       sessionBackend{svc: h.Service},
		OnDocumentChange: func(payload models.ScenePayload) {
			data, err := scene.EncodePayload(payload)
			if err != nil {
				log.Printf("Failed to encode merged scene for canvas %s: %v", canvasId, err)
				return
			}
			client.sendEvent("scene_update", map[string]any{
				"canvasId": canvasId,
				"data":     data,
			})
		},
		OnPresenceChange: func(collaborators map[string]collab.Collaborator) {
			client.sendEvent("presence_update", map[string]any{
				"canvasId":      canvasId,
				"collaborators": collaborators,
			})
		},
	})
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type canvasMessage struct {
	CanvasId string `json:"canvasId"`
}

type sceneUpdateMessage struct {
	CanvasId string `json:"canvasId"`
	Data     string `json:"data"`
}

type pointerMessage struct {
	CanvasId           string          `json:"canvasId"`
	Pointer            *models.Pointer `json:"pointer"`
	SelectedElementIds []string        `json:"selectedElementIds"`
}

type responseMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Invalid JSON: %v", err)
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "join":
		var canvasMsg canvasMessage
		if err := json.Unmarshal(msg.Data, &canvasMsg); err != nil {
			log.Printf("Invalid join data: %v", err)
			return
		}
		resp = h.handleJoin(client, canvasMsg)

	case "leave":
		var canvasMsg canvasMessage
		if err := json.Unmarshal(msg.Data, &canvasMsg); err != nil {
			log.Printf("Invalid leave data: %v", err)
			return
		}
		resp = h.handleLeave(client, canvasMsg)

	case "scene_update":
		var updateMsg sceneUpdateMessage
		if err := json.Unmarshal(msg.Data, &updateMsg); err != nil {
			log.Printf("Invalid scene_update data: %v", err)
			return
		}
		h.handleSceneUpdate(client, updateMsg)

	case "pointer":
		var ptrMsg pointerMessage
		if err := json.Unmarshal(msg.Data, &ptrMsg); err != nil {
			log.Printf("Invalid pointer data: %v", err)
			return
		}
		h.handlePointer(client, ptrMsg)

	case "flush_save":
		var canvasMsg canvasMessage
		if err := json.Unmarshal(msg.Data, &canvasMsg); err != nil {
			log.Printf("Invalid flush_save data: %v", err)
			return
		}
		resp = h.handleFlushSave(client, canvasMsg)

	case "save_state":
		var canvasMsg canvasMessage
		if err := json.Unmarshal(msg.Data, &canvasMsg); err != nil {
			log.Printf("Invalid save_state data: %v", err)
			return
		}
		resp = h.handleSaveState(client, canvasMsg)

	case "roster":
		var canvasMsg canvasMessage
		if err := json.Unmarshal(msg.Data, &canvasMsg); err != nil {
			log.Printf("Invalid roster data: %v", err)
			return
		}
		resp = h.handleRoster(client, canvasMsg)

	default:
		log.Printf("Unknown message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling response JSON: %v", err)
			return
		}
		client.Send <- respBytes
	}
}

func (h *Handler) handleJoin(client *Client, canvasMsg canvasMessage) responseMessage {
	resp := responseMessage{
		Type: "join_response",
	}

	canvas, err := h.Service.GetCanvas(context.Background(), client.user, canvasMsg.CanvasId)
	if err != nil {
		log.Printf("Join failed for canvas %s: %v", canvasMsg.CanvasId, err)
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}

	session := h.newCanvasSession(client, canvas, canvasMsg.CanvasId)
	if err := session.Join(context.Background(), canvas); err != nil {
		log.Printf("Session join failed for canvas %s: %v", canvasMsg.CanvasId, err)
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}
	if prior := client.setSession(canvasMsg.CanvasId, session); prior != nil {
		prior.Leave(context.Background())
	}

	sub := subscription{client: client, canvasId: canvasMsg.CanvasId}
	h.Hub.SubscribeCh <- sub

	collaborators, err := h.Service.ListActive(context.Background(), canvasMsg.CanvasId, time.Now().UnixMilli())
	if err != nil {
		log.Printf("Failed to list collaborators on join: %v", err)
	}

	resp.Data = map[string]any{
		"success":       true,
		"canvasId":      canvasMsg.CanvasId,
		"data":          canvas.Data,
		"updatedAt":     canvas.UpdatedAt,
		"collaborating": session.Collaborating(),
		"userColor":     session.UserColor(),
		"collaborators": collaborators,
	}
	return resp
}

func (h *Handler) handleLeave(client *Client, canvasMsg canvasMessage) responseMessage {
	resp := responseMessage{
		Type: "leave_response",
	}

	sub := subscription{client: client, canvasId: canvasMsg.CanvasId}
	h.Hub.UnsubscribeCh <- sub

	session := client.removeSession(canvasMsg.CanvasId)
	if session == nil {
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}
	session.Leave(context.Background())

	resp.Data = map[string]any{"success": true, "canvasId": canvasMsg.CanvasId}
	return resp
}

// handleSceneUpdate feeds an editor change into the session, which owns
// the outbound policy: throttled live sync when collaborating, debounced
// direct save otherwise. Malformed payloads are dropped without a reply,
// keeping the last good state. No response message; the accepted write
// comes back through the canvas subscription.
func (h *Handler) handleSceneUpdate(client *Client, updateMsg sceneUpdateMessage) {
	session := client.session(updateMsg.CanvasId)
	if session == nil {
		return
	}

	payload, err := scene.DecodePayload(updateMsg.Data)
	if err != nil {
		return
	}

	session.OnLocalChange(payload)
}

// handlePointer is high-frequency and fire-and-forget: the session
// throttles the presence refresh, no response message.
func (h *Handler) handlePointer(client *Client, ptrMsg pointerMessage) {
	session := client.session(ptrMsg.CanvasId)
	if session == nil || ptrMsg.Pointer == nil {
		return
	}

	session.SubmitPointerUpdate(*ptrMsg.Pointer, ptrMsg.SelectedElementIds)
}

// handleFlushSave forces any pending debounced save to run now. Sent by
// the client on tab close or navigation away.
func (h *Handler) handleFlushSave(client *Client, canvasMsg canvasMessage) responseMessage {
	resp := responseMessage{
		Type: "flush_save_response",
	}

	session := client.session(canvasMsg.CanvasId)
	if session == nil {
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}
	session.FlushPendingSave()

	resp.Data = map[string]any{"success": true, "canvasId": canvasMsg.CanvasId}
	return resp
}

func (h *Handler) handleSaveState(client *Client, canvasMsg canvasMessage) responseMessage {
	resp := responseMessage{
		Type: "save_state_response",
	}

	session := client.session(canvasMsg.CanvasId)
	if session == nil {
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}

	var lastSavedAt *int64
	if saved := session.LastSavedAt(); saved != nil {
		ms := saved.UnixMilli()
		lastSavedAt = &ms
	}

	resp.Data = map[string]any{
		"success":          true,
		"canvasId":         canvasMsg.CanvasId,
		"pendingSave":      session.HasPendingSave(),
		"lastSavedAt":      lastSavedAt,
		"blocksNavigation": session.BlocksNavigation(),
	}
	return resp
}

// handleRoster answers only for canvases this connection has joined; a
// join is the access check, so an unjoined canvas gets no roster.
func (h *Handler) handleRoster(client *Client, canvasMsg canvasMessage) responseMessage {
	resp := responseMessage{
		Type: "roster_response",
	}

	if client.session(canvasMsg.CanvasId) == nil {
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}

	collaborators, err := h.Service.ListActive(context.Background(), canvasMsg.CanvasId, time.Now().UnixMilli())
	if err != nil {
		log.Printf("ListActive failed: %v", err)
		resp.Data = map[string]any{"success": false, "canvasId": canvasMsg.CanvasId}
		return resp
	}

	resp.Data = map[string]any{
		"success":       true,
		"canvasId":      canvasMsg.CanvasId,
		"collaborators": collaborators,
	}
	return resp
}
