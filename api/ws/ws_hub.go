package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/zlnvch/canvasverse/cache"
	"github.com/zlnvch/canvasverse/models"
	"github.com/zlnvch/canvasverse/service"
)

type subscription struct {
	client   *Client
	canvasId string
}

// canvasEvent is a message from a canvas's redis channel, queued so that
// fanout runs on the hub's run loop rather than the subscription
// goroutine that received it.
type canvasEvent struct {
	canvasId    string
	messageType string
	payload     []byte
}

// PresenceLister is the slice of the service layer the hub needs to
// rebuild rosters on presence events.
type PresenceLister interface {
	ListPresence(ctx context.Context, canvasId string) ([]models.PresenceRecord, error)
}

// Hub maintains the set of active clients and dispatches canvas events
// to their sessions.
type Hub struct {
	canvasverseCache         cache.CanvasverseCache
	presence                 PresenceLister
	OpenCh                   chan *Client
	CloseCh                  chan *Client
	CanvasEventCh            chan canvasEvent
	SubscribeCh              chan subscription
	UnsubscribeCh            chan subscription
	UserDeletedCh            chan string
	CanvasDeletedCh          chan string
	userToClients            map[string]map[*Client]struct{}
	canvasToClients          map[string]map[*Client]struct{}
	canvasToSubscriberCancel map[string]context.CancelFunc
}

func NewHub(canvasverseCache cache.CanvasverseCache, presence PresenceLister) *Hub {
	return &Hub{
		canvasverseCache:         canvasverseCache,
		presence:                 presence,
		OpenCh:                   make(chan *Client, 256),
		CloseCh:                  make(chan *Client, 256),
		CanvasEventCh:            make(chan canvasEvent, 1024),
		SubscribeCh:              make(chan subscription, 1024),
		UnsubscribeCh:            make(chan subscription, 1024),
		UserDeletedCh:            make(chan string, 64),
		CanvasDeletedCh:          make(chan string, 64),
		userToClients:            make(map[string]map[*Client]struct{}),
		canvasToClients:          make(map[string]map[*Client]struct{}),
		canvasToSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerUser         = 3
	maxSubscriptionsPerConnection = 50
)

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.userToClients[client.user.Id]; !ok {
				h.userToClients[client.user.Id] = make(map[*Client]struct{})
			}

			if len(h.userToClients[client.user.Id]) >= maxConnectionsPerUser {
				log.Printf("User %s reached max connections (%d)", client.user.Id, maxConnectionsPerUser)
				close(client.Send)
				continue
			}

			h.userToClients[client.user.Id][client] = struct{}{}

		case client := <-h.CloseCh:
			h.detachClient(client)
			delete(h.userToClients[client.user.Id], client)
			if len(h.userToClients[client.user.Id]) == 0 {
				delete(h.userToClients, client.user.Id)
			}

		case event := <-h.CanvasEventCh:
			h.dispatchCanvasEvent(event)

		case sub := <-h.SubscribeCh:
			if len(sub.client.subscribedCanvases) >= maxSubscriptionsPerConnection {
				log.Printf("Connection by user %s reached max subscriptions (%d)", sub.client.user.Id, maxSubscriptionsPerConnection)
				continue
			}
			if h.canvasToClients[sub.canvasId] == nil {
				log.Printf("Subscriber does not exist, creating for canvas: %s", sub.canvasId)

				ctx, cancel := context.WithCancel(context.Background())
				canvasId := sub.canvasId

				err := h.canvasverseCache.Subscribe(ctx, service.SceneChannel(canvasId), func(messageBytes []byte) {
					h.CanvasEventCh <- canvasEvent{canvasId: canvasId, messageType: "scene_update", payload: messageBytes}
				})
				if err != nil {
					log.Printf("Failed to create redis sub for canvas %s scene channel: %v", canvasId, err)
					cancel()
					continue
				}

				err = h.canvasverseCache.Subscribe(ctx, service.PresenceChannel(canvasId), func(messageBytes []byte) {
					h.CanvasEventCh <- canvasEvent{canvasId: canvasId, messageType: "presence_update", payload: messageBytes}
				})
				if err != nil {
					log.Printf("Failed to create redis sub for canvas %s presence channel: %v", canvasId, err)
					cancel()
					continue
				}

				h.canvasToClients[sub.canvasId] = make(map[*Client]struct{})
				h.canvasToSubscriberCancel[sub.canvasId] = cancel
			}
			h.canvasToClients[sub.canvasId][sub.client] = struct{}{}
			sub.client.subscribedCanvases[sub.canvasId] = struct{}{}

		case unsub := <-h.UnsubscribeCh:
			delete(h.canvasToClients[unsub.canvasId], unsub.client)
			delete(unsub.client.subscribedCanvases, unsub.canvasId)
			if len(h.canvasToClients[unsub.canvasId]) == 0 {
				if cancel, ok := h.canvasToSubscriberCancel[unsub.canvasId]; ok {
					cancel()
					delete(h.canvasToSubscriberCancel, unsub.canvasId)
				}
				delete(h.canvasToClients, unsub.canvasId)
			}

		case userId := <-h.UserDeletedCh:
			if clients, ok := h.userToClients[userId]; ok {
				for client := range clients {
					// Detach before closing Send so no later canvas
					// event can reach the closed channel.
					h.detachClient(client)
					close(client.Send)
					delete(h.userToClients[userId], client)
				}
				delete(h.userToClients, userId)
			}

		case canvasId := <-h.CanvasDeletedCh:
			clients, ok := h.canvasToClients[canvasId]
			if !ok {
				continue
			}
			deletedMsg := service.CanvasDeletedMessage{CanvasId: canvasId}
			if deletedMsgBytes, err := json.Marshal(deletedMsg); err == nil {
				h.broadcast(canvasId, "canvas_deleted", deletedMsgBytes)
			}
			for client := range clients {
				delete(client.subscribedCanvases, canvasId)
				if session := client.removeSession(canvasId); session != nil {
					session.Leave(context.Background())
				}
			}
			if cancel, ok := h.canvasToSubscriberCancel[canvasId]; ok {
				cancel()
				delete(h.canvasToSubscriberCancel, canvasId)
			}
			delete(h.canvasToClients, canvasId)
		}
	}
}

// detachClient removes the client from every canvas it subscribed to,
// tearing down the canvas's redis subscription when it was the last one.
func (h *Hub) detachClient(client *Client) {
	for canvasId := range client.subscribedCanvases {
		delete(h.canvasToClients[canvasId], client)
		if len(h.canvasToClients[canvasId]) == 0 {
			if cancel, ok := h.canvasToSubscriberCancel[canvasId]; ok {
				cancel()
				delete(h.canvasToSubscriberCancel, canvasId)
			}
			delete(h.canvasToClients, canvasId)
		}
	}
}

// dispatchCanvasEvent routes a canvas event through each subscriber's
// session: remote scenes are reconciled against the session's element
// set and presence events are rebuilt into a roster, so every client
// receives the merged view rather than the raw published payload.
func (h *Hub) dispatchCanvasEvent(event canvasEvent) {
	switch event.messageType {
	case "scene_update":
		var updateMsg service.SceneUpdateMessage
		if err := json.Unmarshal(event.payload, &updateMsg); err != nil {
			log.Printf("Failed to unmarshal scene update for canvas %s: %v", event.canvasId, err)
			return
		}
		for client := range h.canvasToClients[event.canvasId] {
			if session := client.session(event.canvasId); session != nil {
				session.ApplyRemote(updateMsg.Data)
			}
		}

	case "presence_update":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		records, err := h.presence.ListPresence(ctx, event.canvasId)
		cancel()
		if err != nil {
			log.Printf("Failed to list presence for canvas %s: %v", event.canvasId, err)
			return
		}
		for client := range h.canvasToClients[event.canvasId] {
			if session := client.session(event.canvasId); session != nil {
				session.ApplyPresence(records)
			}
		}

	default:
		h.broadcast(event.canvasId, event.messageType, event.payload)
	}
}

// broadcast wraps an already-marshaled payload in the websocket envelope
// and fans it out to every client subscribed to the canvas. Only called
// from the run loop.
func (h *Hub) broadcast(canvasId string, messageType string, payload []byte) {
	envelope := responseMessage{Type: messageType, Data: json.RawMessage(payload)}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("Failed to marshal %s envelope: %v", messageType, err)
		return
	}
	for client := range h.canvasToClients[canvasId] {
		select {
		case client.Send <- envelopeBytes:
		default:
			log.Printf("Dropping %s broadcast for slow consumer (user %s)", messageType, client.user.Id)
		}
	}
}

func (h *Hub) InitSubscriptions(shutdownCtx context.Context) error {
	err := h.canvasverseCache.Subscribe(shutdownCtx, "user-deleted", func(message []byte) {
		var userDeletedMsg service.UserDeletedMessage
		if err := json.Unmarshal(message, &userDeletedMsg); err == nil {
			h.UserDeletedCh <- userDeletedMsg.UserId
		}
	})
	if err != nil {
		log.Printf("WS hub failed to subscribe to user-deleted: %v", err)
		return err
	}

	err = h.canvasverseCache.Subscribe(shutdownCtx, "canvas-deleted", func(message []byte) {
		var canvasDeletedMsg service.CanvasDeletedMessage
		if err := json.Unmarshal(message, &canvasDeletedMsg); err == nil {
			h.CanvasDeletedCh <- canvasDeletedMsg.CanvasId
		} else {
			log.Printf("Failed to unmarshal canvas-deleted message: %v", err)
		}
	})
	if err != nil {
		log.Printf("WS hub failed to subscribe to canvas-deleted: %v", err)
		return err
	}

	return nil
}
