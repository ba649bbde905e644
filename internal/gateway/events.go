package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

// handleEvents streams bus events over a WebSocket. An optional session_id
// query parameter narrows the feed to one session. Slow readers are
// disconnected rather than allowed to stall the bus.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.bus == nil {
			http.Error(w, "event feed disabled", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("event feed accept failed", "error", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "unexpected close")

		filter := r.URL.Query().Get("session_id")
		ch, cancel := g.bus.Subscribe()
		defer cancel()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case ev, ok := <-ch:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "feed closed")
					return
				}
				if filter != "" && ev.SessionID != filter {
					continue
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
		}
	}
}
