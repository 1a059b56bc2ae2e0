// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     eventhub
// Description: WebSocket broadcast of recorder events
// Created:     2026-10-13
// License:     MIT
// ============================================================================

package eventhub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msto63/speechrec/internal/recorder"
	"github.com/msto63/speechrec/internal/segment"
	"github.com/msto63/speechrec/pkg/core/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message types
const (
	TypeAudio      = "audio"
	TypeChunkStart = "chunk_start"
	TypeChunkEnd   = "chunk_end"
	TypeTrigger    = "trigger"
	TypeSegment    = "segment"
	TypeError      = "error"
	TypePong       = "pong"
)

// WebSocket upgrader with permissive settings for local use
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope of every message sent to clients
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// AudioPayload is sent once per frame. Audio samples are not included.
type AudioPayload struct {
	Speaking bool `json:"speaking"`
	Speech   bool `json:"speech"`
	Volume   int  `json:"volume"`
	Silence  int  `json:"silence"`
}

// ChunkStartPayload announces a new chunk
type ChunkStartPayload struct {
	LeadingBytes int `json:"leading_bytes"`
}

// TriggerPayload carries the trigger that fired
type TriggerPayload struct {
	ID        string `json:"id"`
	Threshold int    `json:"threshold"`
}

// ErrorPayload describes a recorder error
type ErrorPayload struct {
	Message string `json:"message"`
}

// Hub fans messages out to all connected WebSocket clients
type Hub struct {
	logger     *logging.Logger
	sendBuffer int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// New creates a hub. sendBuffer is the per-client queue length; clients
// that fall further behind are disconnected.
func New(sendBuffer int, logger *logging.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		logger:     logger.Named("eventhub"),
		sendBuffer: sendBuffer,
		clients:    make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(c)
}

// readPump answers pings and detects disconnects
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket read error", "error", err)
			} else {
				h.logger.Info("WebSocket client disconnected")
			}
			return
		}
		if msg.Type == "ping" {
			h.sendTo(c, Message{Type: TypePong})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("WebSocket write failed", "error", err)
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Broadcast sends a message to every client. Clients whose queue is full
// are disconnected.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error("Failed to encode message", "type", msgType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("WebSocket client too slow, disconnecting", "queue", cap(c.send))
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handlers returns recorder handlers that broadcast every event
func (h *Hub) Handlers() recorder.Handlers {
	return recorder.Handlers{
		OnAudio: func(ev recorder.AudioEvent) {
			h.Broadcast(TypeAudio, AudioPayload{
				Speaking: ev.Speaking,
				Speech:   ev.Speech,
				Volume:   ev.Volume,
				Silence:  ev.Silence,
			})
		},
		OnChunkStart: func(leading []byte) {
			h.Broadcast(TypeChunkStart, ChunkStartPayload{LeadingBytes: len(leading)})
		},
		OnChunkEnd: func() {
			h.Broadcast(TypeChunkEnd, nil)
		},
		OnTrigger: func(t recorder.Trigger) {
			h.Broadcast(TypeTrigger, TriggerPayload{ID: t.ID, Threshold: t.Threshold})
		},
	}
}

// Segment announces a finished segment
func (h *Hub) Segment(seg *segment.Segment) {
	h.Broadcast(TypeSegment, seg)
}

// Error broadcasts a recorder error
func (h *Hub) Error(err error) {
	h.Broadcast(TypeError, ErrorPayload{Message: err.Error()})
}

// Close disconnects all clients and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
