// Package events relays published platform events to the websocket
// connections of the user they belong to.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendQueue  = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 4096
)

// Message is the frame sent to clients.
type Message struct {
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

type conn struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*conn]struct{}
	log   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns: map[string]map[*conn]struct{}{},
		log:   logger.With().Str("component", "hub").Logger(),
	}
}

// Count returns the number of open connections for a user.
func (h *Hub) Count(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = map[*conn]struct{}{}
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// drop must be called with mu held.
func (h *Hub) drop(c *conn) {
	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
	c.close()
}

// Broadcast queues msg on every connection of the user. A connection whose
// queue is full is dropped.
func (h *Hub) Broadcast(userID string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", msg.Topic).Msg("encode event failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns[userID] {
		select {
		case c.send <- b:
		default:
			h.log.Warn().Str("user_id", userID).Msg("dropping slow websocket client")
			h.drop(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.conns {
		for c := range set {
			h.drop(c)
		}
	}
}

// serve runs the connection until the client goes away. It blocks.
func (h *Hub) serve(userID string, ws *websocket.Conn) {
	c := &conn{userID: userID, ws: ws, send: make(chan []byte, sendQueue)}
	h.add(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(c)
	}()

	h.readLoop(c)
	h.remove(c)
	<-done
}

// readLoop discards client frames; it only exists to notice closes and
// answer pings.
func (h *Hub) readLoop(c *conn) {
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("user_id", c.userID).Msg("websocket read")
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				h.log.Debug().Err(err).Str("user_id", c.userID).Msg("websocket write")
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
