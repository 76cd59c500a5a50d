package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the ops router.
func SetupRoutes(h *Handlers, health *HealthChecker, metrics http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/batch", func(r chi.Router) {
		r.Post("/run", h.RunBatch)
		r.Get("/last", h.LastBatch)
	})

	r.Route("/businesses/{businessID}", func(r chi.Router) {
		r.Get("/insights", h.GetInsights)
		r.Post("/analyze", h.AnalyzeBusiness)
		r.Get("/experiments", h.ListExperiments)
	})

	r.Route("/experiments", func(r chi.Router) {
		r.Post("/", h.CreateExperiment)
		r.Route("/{experimentID}", func(r chi.Router) {
			r.Get("/", h.GetExperiment)
			r.Get("/results", h.GetResults)
			r.Get("/assign/{subjectID}", h.AssignVariant)
			r.Post("/pause", h.PauseExperiment)
			r.Post("/resume", h.ResumeExperiment)
			r.Post("/complete", h.CompleteExperiment)
		})
	})

	return r
}
