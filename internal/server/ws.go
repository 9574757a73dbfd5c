package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsContext returns a context cancelled when the request ends or the peer
// closes the connection. The reader goroutine drains client frames so
// control messages are processed.
func (s *Server) wsContext(r *http.Request, conn *websocket.Conn) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx, cancel
}
