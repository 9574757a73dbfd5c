package server

import "github.com/go-chi/chi/v5"

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.health)
	r.Get("/participants", s.listParticipants)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Get("/outcome", s.getOutcome)
			r.Post("/coalitions", s.formCoalition)
			r.Post("/advance", s.advance)
			r.Post("/interject", s.interject)
			r.Get("/events", s.sessionEvents)
		})
	})

	r.Get("/events", s.allEvents)
	r.Get("/ws", s.websocketEvents)
}
