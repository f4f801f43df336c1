package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", h.CreateExperiment)
			r.Get("/", h.ListExperiments)

			r.Route("/{experimentID}", func(r chi.Router) {
				r.Get("/", h.GetExperiment)
				r.Put("/", h.UpdateExperiment)
				r.Delete("/", h.DeleteExperiment)

				r.Post("/start", h.StartExperiment)
				r.Post("/pause", h.PauseExperiment)
				r.Post("/resume", h.ResumeExperiment)
				r.Post("/complete", h.CompleteExperiment)

				r.Post("/assignments", h.AssignSubject)
				r.Get("/assignments/{subjectID}", h.GetAssignment)

				r.Post("/events", h.RecordEvent)
				r.Post("/conversions", h.RecordConversion)
				r.Post("/revenue", h.RecordRevenue)

				r.Get("/analysis", h.GetAnalysis)
				r.Get("/variants/stats", h.GetVariantStats)
			})
		})
	})

	return r
}
