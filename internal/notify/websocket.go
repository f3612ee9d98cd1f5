package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"clypse/internal/logging"
	"clypse/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Events carry only public catalog data.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams hub events to the client until
// either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Websocket upgrade failed: %v", err)
		return
	}

	events, unsubscribe := h.Subscribe()
	metrics.WebsocketClients.Inc()
	logging.Debug("Websocket client connected from %s", r.RemoteAddr)

	done := make(chan struct{})
	go readLoop(conn, done)

	defer func() {
		unsubscribe()
		metrics.WebsocketClients.Dec()
		if err := conn.Close(); err != nil {
			logging.Debug("Websocket close: %v", err)
		}
		logging.Debug("Websocket client disconnected from %s", r.RemoteAddr)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and keeps the pong deadline fresh. It
// closes done when the connection fails.
func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
