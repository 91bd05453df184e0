package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the HTTP handler. allowedOrigins configures CORS; an empty
// list allows none.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health.HandleHealth)
	r.Get("/health/live", s.health.HandleLiveness)
	r.Get("/health/ready", s.health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/gate", func(r chi.Router) {
			r.Post("/evaluate", s.HandleEvaluate)
			r.Post("/evaluate-batch", s.HandleEvaluateBatch)
			r.Post("/filter", s.HandleFilterAllowed)
		})

		r.Route("/contacts/{contactID}", func(r chi.Router) {
			r.Get("/", s.HandleGetContact)
			r.Put("/", s.HandleUpsertContact)
			r.Put("/state", s.HandleSetState)
			r.Get("/signals", s.HandleSignalHistory)
			r.Post("/signals", s.HandleAppendSignal)
			r.Get("/route", s.HandleRouteContact)
		})

		r.Post("/inbound", s.HandleInbound)
		r.Get("/personas", s.HandleListPersonas)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.HandleListCampaigns)
			r.Route("/{campaignID}", func(r chi.Router) {
				r.Post("/enroll", s.HandleEnroll)
				r.Route("/contacts/{contactID}", func(r chi.Router) {
					r.Get("/", s.HandleEscalationStatus)
					r.Post("/send", s.HandleSendNext)
					r.Post("/pause", s.HandlePause)
					r.Post("/resume", s.HandleResume)
					r.Post("/reset", s.HandleReset)
				})
			})
		})
	})

	return r
}
