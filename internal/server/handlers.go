package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/agora/core"
)

// CreateSessionRequest is the body of POST /sessions. An empty participant
// list seats every registered participant.
type CreateSessionRequest struct {
	Topic        string        `json:"topic"`
	Participants []string      `json:"participants"`
	Protocol     core.Protocol `json:"protocol"`
}

// FormCoalitionRequest is the body of POST /sessions/{id}/coalitions.
type FormCoalitionRequest struct {
	Members  []string `json:"members"`
	Position string   `json:"position"`
	Strength float64  `json:"strength"`
	Reason   string   `json:"reason"`
}

// InterjectRequest is the body of POST /sessions/{id}/interject.
type InterjectRequest struct {
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.agora.Engine().Pool().Len(),
	})
}

func (s *Server) listParticipants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agora.Registry().All())
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agora.Engine().Pool().Stats())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "topic is required")
		return
	}
	snap, err := s.agora.CreateSession(r.Context(), req.Topic, req.Participants, req.Protocol)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agora.Engine().Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.agora.Engine().Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getOutcome returns the recorded outcome of a concluded session, or a
// provisional synthesis of the debate so far.
func (s *Server) getOutcome(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agora.Engine().Snapshot(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if snap.Outcome != nil {
		writeJSON(w, http.StatusOK, snap.Outcome)
		return
	}
	writeJSON(w, http.StatusOK, s.agora.Engine().Synthesize(snap))
}

func (s *Server) formCoalition(w http.ResponseWriter, r *http.Request) {
	var req FormCoalitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if len(req.Members) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "members are required")
		return
	}
	if req.Strength < 0 || req.Strength > 1 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "strength must be within 0..1")
		return
	}
	c, err := s.agora.Engine().FormCoalition(r.Context(), chi.URLParam(r, "sessionID"), req.Members, req.Position, req.Strength, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agora.Engine().Advance(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) interject(w http.ResponseWriter, r *http.Request) {
	var req InterjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message is required")
		return
	}
	id := chi.URLParam(r, "sessionID")
	if err := s.agora.Engine().Interject(r.Context(), id, req.Message); err != nil {
		writeEngineError(w, err)
		return
	}
	snap, err := s.agora.Engine().Snapshot(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
