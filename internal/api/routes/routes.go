// internal/api/routes/routes.go
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fawad-mazhar/flowstate/internal/api/handlers"
	"github.com/fawad-mazhar/flowstate/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(eng *engine.Engine) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	// Initialize handlers
	runHandler := handlers.NewRunHandler(eng)
	eventHandler := handlers.NewEventHandler(eng)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Run endpoints
		r.Post("/jobs/{name}/runs", runHandler.StartRun)
		r.Get("/runs/{id}", runHandler.GetRun)

		// External completion event ingest
		r.Post("/events", eventHandler.IngestEvent)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return r
}
