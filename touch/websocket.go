// Copyright 2026 The Polaris Touch Authors
// SPDX-License-Identifier: Apache-2.0

package touch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/GEEKiDoS/polaris-touch-godot/tracker"
)

const (
	// maxMessageSize bounds one WebSocket message. A full batch of ten
	// fingers is well under 1 KiB.
	maxMessageSize = 64 << 10

	// clientIDBits is the width of the touch id space each connection
	// gets. Ids from different connections never collide.
	clientIDBits = 16
	maxClientID  = 1<<clientIDBits - 1
)

// Message is one touch update sent by a WebSocket client. A client may
// send a single object or an array of them.
//
//	{"type":"down","id":0,"x":412,"y":960}
//	{"type":"resize","width":1920,"height":1080}
type Message struct {
	Type   string  `json:"type"`
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Handler upgrades HTTP requests to WebSocket connections and feeds
// their touch messages into a Sink. When a connection ends, any contact
// it left down is released.
type Handler struct {
	sink     Sink
	logger   *slog.Logger
	upgrader websocket.Upgrader

	nextConnection atomic.Int64
	connections    atomic.Int32

	mu     sync.Mutex
	open   map[*websocket.Conn]struct{}
	closed bool
}

// NewHandler returns a Handler feeding sink.
func NewHandler(sink Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sink:   sink,
		logger: logger,
		open:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The touch surface is usually a page served from another
			// origin or a native app.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Connections returns the number of open WebSocket clients.
func (h *Handler) Connections() int {
	return int(h.connections.Load())
}

// Close disconnects every client and refuses new ones. Register it
// with http.Server.RegisterOnShutdown, since hijacked connections are
// not closed by Shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.open {
		conn.Close()
	}
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.open[conn] = struct{}{}
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.open, conn)
}

// ServeHTTP handles one client until it disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	if !h.track(conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return
	}
	defer h.untrack(conn)
	conn.SetReadLimit(maxMessageSize)

	client := &wsClient{
		sink:   h.sink,
		prefix: int(h.nextConnection.Add(1)) << clientIDBits,
		down:   make(map[int]struct{}),
	}
	h.connections.Add(1)
	defer h.connections.Add(-1)
	defer client.releaseAll()

	logger := h.logger.With("remote", r.RemoteAddr)
	logger.Info("touch client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("touch client failed", "error", err)
			} else {
				logger.Info("touch client disconnected")
			}
			return
		}

		messages, err := decodeMessages(data)
		if err != nil {
			logger.Debug("ignoring malformed touch message", "error", err)
			continue
		}
		for _, message := range messages {
			if err := client.apply(message); err != nil {
				logger.Debug("ignoring touch message", "type", message.Type, "error", err)
			}
		}
	}
}

func decodeMessages(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var messages []Message
		if err := json.Unmarshal(data, &messages); err != nil {
			return nil, err
		}
		return messages, nil
	}
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, err
	}
	return []Message{message}, nil
}

// wsClient scopes one connection's touch ids.
type wsClient struct {
	sink   Sink
	prefix int
	down   map[int]struct{}
}

func (c *wsClient) apply(message Message) error {
	if message.Type == "resize" {
		if message.Width <= 0 || message.Height <= 0 {
			return fmt.Errorf("invalid surface size %vx%v", message.Width, message.Height)
		}
		c.sink.Resize(message.Width, message.Height)
		return nil
	}

	if message.ID < 0 || message.ID > maxClientID {
		return fmt.Errorf("touch id %d out of range", message.ID)
	}
	id := c.prefix | message.ID
	position := tracker.Point{X: message.X, Y: message.Y}

	switch message.Type {
	case "down":
		c.down[id] = struct{}{}
		c.sink.Down(id, position)
	case "move":
		c.down[id] = struct{}{}
		c.sink.Move(id, position)
	case "up", "cancel":
		delete(c.down, id)
		c.sink.Up(id)
	default:
		return fmt.Errorf("unknown message type %q", message.Type)
	}
	return nil
}

func (c *wsClient) releaseAll() {
	for id := range c.down {
		c.sink.Up(id)
	}
	clear(c.down)
}
