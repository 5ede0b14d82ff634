package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/robofleet/orctl/internal/models"
	"github.com/robofleet/orctl/internal/trigger"
)

// Launcher executes the trigger flow. Separated from the concrete client so
// handlers can be tested against a fake.
type Launcher interface {
	Launch(ctx context.Context, opts trigger.Options, log trigger.LogFunc) (*trigger.Result, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts trigger.Options, log trigger.LogFunc) (*trigger.Result, error)

// Launch implements Launcher.
func (f LauncherFunc) Launch(ctx context.Context, opts trigger.Options, log trigger.LogFunc) (*trigger.Result, error) {
	return f(ctx, opts, log)
}

// Server holds shared state for all API handlers.
type Server struct {
	Target   *models.Target
	Runs     *models.RunStore
	Launcher Launcher

	// Defaults applied to run requests that omit them.
	PollInterval time.Duration
	Timeout      time.Duration
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.Health)

		r.Post("/runs", s.CreateRun)
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
		r.Post("/runs/{id}/cancel", s.CancelRun)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/runs/{id}/logs", s.StreamRunLogs)

	return r
}

// Health reports the configured target without touching it.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"target": s.Target.Name,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
