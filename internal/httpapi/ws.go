package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// ConnRegistry tracks live websocket connections for broadcasting.
type ConnRegistry interface {
	Register(conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// WebsocketHandler upgrades the request and parks the connection in the
// registry until the client goes away. Clients only listen; inbound frames
// are read solely to notice the close.
func WebsocketHandler(registry ConnRegistry, logf func(format string, args ...any)) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if logf != nil {
				logf("ws: upgrade: %v", err)
			}
			return
		}
		registry.Register(conn)

		go func() {
			defer registry.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}
