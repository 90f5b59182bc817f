// Package realtime pushes order status events to WebSocket subscribers.
package realtime

import (
	"context"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and broadcasts messages to them. The
// connections map is owned by the Run goroutine; all access goes through
// the channels.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	broadcast   chan []byte
}

// NewHub constructs a Hub. Run must be started for it to make progress.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		broadcast:   make(chan []byte, 16),
	}
}

// Register adds the connection to the broadcast set.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes and closes the connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// Broadcast queues msg for delivery to every connected client. Messages
// are dropped once the queue is full; a status event is a snapshot, not a
// ledger, and a stalled hub must not block the saga.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Run processes register, unregister, and broadcast events until ctx is
// cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.connections {
				conn.Close()
				delete(h.connections, conn)
			}
			return
		case conn := <-h.register:
			h.connections[conn] = struct{}{}
		case conn := <-h.unregister:
			delete(h.connections, conn)
			conn.Close()
		case msg := <-h.broadcast:
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
		}
	}
}
