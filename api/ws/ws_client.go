package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zlnvch/canvasverse/collab"
	"github.com/zlnvch/canvasverse/models"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Scene payloads carry full
	// element sets plus referenced binary assets.
	maxMessageSize = 1024 * 512

	// Rate limiting: 40 messages per second with a burst of 60. Pointer
	// updates arrive at up to 20/s per joined canvas, so the ceiling is
	// above the throttled steady state but below abuse territory.
	messagesPerSecond = 40
	burstLimit        = 60
)

type MessageHandler func(client *Client, messageType int, messageBytes []byte)

// DisconnectHandler runs when the read pump exits, before the client is
// detached from the hub.
type DisconnectHandler func(client *Client)

func NewClient(hub *Hub, conn *websocket.Conn, user models.User, handler MessageHandler, onDisconnect DisconnectHandler) *Client {
	return &Client{
		hub:                hub,
		conn:               conn,
		user:               user,
		handler:            handler,
		onDisconnect:       onDisconnect,
		subscribedCanvases: make(map[string]struct{}),
		sessions:           make(map[string]*collab.Session),
		Send:               make(chan []byte, 128),
		limiter:            rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub                *Hub
	conn               *websocket.Conn
	user               models.User
	handler            MessageHandler
	onDisconnect       DisconnectHandler
	subscribedCanvases map[string]struct{}
	// sessions holds one collaboration session per joined canvas. The
	// read pump creates and removes entries; the hub's run loop reads
	// them to dispatch remote updates, so access goes through sessionsMu.
	sessionsMu sync.Mutex
	sessions   map[string]*collab.Session
	Send       chan []byte // Buffered channel of outbound messages.
	limiter    *rate.Limiter
}

func (c *Client) session(canvasId string) *collab.Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	return c.sessions[canvasId]
}

// setSession registers a session for the canvas and returns the one it
// replaced, if any.
func (c *Client) setSession(canvasId string, session *collab.Session) *collab.Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	prior := c.sessions[canvasId]
	c.sessions[canvasId] = session
	return prior
}

func (c *Client) removeSession(canvasId string) *collab.Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	session := c.sessions[canvasId]
	delete(c.sessions, canvasId)
	return session
}

// takeSessions empties the session registry and returns what it held.
func (c *Client) takeSessions() map[string]*collab.Session {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	taken := c.sessions
	c.sessions = make(map[string]*collab.Session)
	return taken
}

// sendEvent queues an outbound envelope without blocking the caller.
// Events to a consumer whose send buffer is full are dropped; the client
// can recover state with a roster or save_state query.
func (c *Client) sendEvent(messageType string, data any) {
	envelope := responseMessage{Type: messageType, Data: data}
	envelopeBytes, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("Failed to marshal %s event: %v", messageType, err)
		return
	}
	select {
	case c.Send <- envelopeBytes:
	default:
		log.Printf("Dropping %s event for slow consumer (user %s)", messageType, c.user.Id)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		if c.onDisconnect != nil {
			c.onDisconnect(c)
		}
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		messageType, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS close error: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			log.Printf("Closing connection for user %s: message rate limit exceeded", c.user.Id)
			break
		}

		c.handler(c, messageType, messageBytes)
	}
}

func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WS send error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Websocket service shutting down"),
			)
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
