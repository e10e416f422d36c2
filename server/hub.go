package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vizdirector/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType is the type field of a websocket message.
type MessageType string

const (
	// host -> server
	MsgTypePlayback MessageType = "playback"
	MsgTypeCommand  MessageType = "command"
	MsgTypePing     MessageType = "ping"

	// server -> host
	MsgTypeFrame MessageType = "frame"
	MsgTypeEvent MessageType = "event"
	MsgTypeSeek  MessageType = "seek"
	MsgTypeError MessageType = "error"
	MsgTypePong  MessageType = "pong"
	MsgTypeHello MessageType = "hello"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8 << 20
	sendBuffer     = 64
)

// WSMessage is the JSON envelope of every text frame.
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewMessage encodes data into a message of type typ.
func NewMessage(typ MessageType, data interface{}) (*WSMessage, error) {
	msg := &WSMessage{Type: typ, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// MessageHandler receives what a client sends. Pings are answered by the
// hub and never reach it.
type MessageHandler interface {
	HandleText(ctx context.Context, c *Client, msg *WSMessage)
	HandleBinary(ctx context.Context, c *Client, binary []byte)
	Disconnected(c *Client)
}

// Client is one connected host page.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected hosts and fans engine output out to them.
type Hub struct {
	clients    map[*Client]bool
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	readLimit  int64
}

// NewHub creates a hub. readLimit bounds incoming messages; values below
// the default are raised to it.
func NewHub(readLimit int64) *Hub {
	if readLimit < maxMessageSize {
		readLimit = maxMessageSize
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		readLimit:  readLimit,
	}
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.unregister:
			h.mu.Lock()
			h.removeClient(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// removeClient drops c. The caller holds h.mu.
func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	logger.Info("host disconnected", logger.String("client", c.ID))
}

func (h *Hub) fanOut(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// send buffer full, drop the client
			logger.Warn("host too slow, dropping connection", logger.String("client", c.ID))
			h.removeClient(c)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Count returns the number of connected hosts.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every host. It never blocks; when the queue is
// full the message is dropped and false returned.
func (h *Hub) Broadcast(msg *WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("failed to marshal broadcast", logger.ErrorField(err))
		return false
	}
	select {
	case h.broadcast <- data:
		return true
	default:
		return false
	}
}

// Attach registers conn and starts its pumps. The client can be sent to as
// soon as Attach returns.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, handler MessageHandler) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		conn.Close()
		return c
	default:
	}
	h.clients[c] = true
	h.mu.Unlock()
	logger.Info("host connected", logger.String("client", c.ID))

	go c.writePump()
	go c.readPump(ctx, handler)
	return c
}

// Send queues msg for this client only.
func (c *Client) Send(msg *WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context, handler MessageHandler) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		handler.Disconnected(c)
	}()

	c.conn.SetReadLimit(c.hub.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("client", c.ID))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if kind == websocket.BinaryMessage {
			handler.HandleBinary(ctx, c, data)
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("invalid message format", logger.ErrorField(err), logger.String("client", c.ID))
			continue
		}
		if msg.Type == MsgTypePing {
			c.Send(&WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
			continue
		}
		handler.HandleText(ctx, c, &msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
