package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/agora/event"
)

const wsWriteTimeout = 10 * time.Second

// streamFilters builds subscriber filters from the session id and the
// optional "filter" query parameter holding a jq expression.
func streamFilters(r *http.Request, sessionID string) ([]event.Filter, error) {
	var filters []event.Filter
	if sessionID != "" {
		filters = append(filters, event.SessionFilter(sessionID))
	}
	if expr := r.URL.Query().Get("filter"); expr != "" {
		f, err := event.QueryFilter(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseWriter) writeEvent(env event.Envelope) error {
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Type, env.Data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) writeHeartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r, r.URL.Query().Get("session"))
}

func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := s.agora.Engine().Pool().Peek(id); err != nil {
		writeEngineError(w, err)
		return
	}
	s.streamSSE(w, r, id)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, sessionID string) {
	filters, err := streamFilters(r, sessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	events, err := s.agora.Bus().Subscribe(r.Context(), filters...)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, rc: http.NewResponseController(w)}
	if err := sse.writeHeartbeat(); err != nil {
		return
	}

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			if err := sse.writeEvent(env); err != nil {
				s.logger.Debug("server.sse.write_failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}

// websocketEvents streams envelopes as JSON text frames. It accepts the same
// "session" and "filter" query parameters as the SSE stream. Client frames
// are ignored.
func (s *Server) websocketEvents(w http.ResponseWriter, r *http.Request) {
	filters, err := streamFilters(r, r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("server.ws.upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := s.wsContext(r, conn)
	defer cancel()

	events, err := s.agora.Bus().Subscribe(ctx, filters...)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(wsWriteTimeout))
		return
	}

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
