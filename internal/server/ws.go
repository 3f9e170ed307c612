package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, calls CallService, logger *slog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		greeting := []any{
			ConnectionEvent{Event: newEvent("connection", time.Now().UTC()), Connected: true},
			CallStateEvent{Event: newEvent("call_state", time.Now().UTC()), Call: calls.Snapshot()},
		}
		for _, ev := range greeting {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := writeMessage(conn, payload); err != nil {
				return
			}
		}

		// The client never sends; reading only detects the close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := writeMessage(conn, msg); err != nil {
					return
				}
			}
		}
	})
}

func writeMessage(conn *websocket.Conn, msg []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
