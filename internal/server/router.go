package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/server/handler"
)

// requestTimeout covers the slowest request: a full auto-fix session with
// LLM rewrites.
const requestTimeout = 3 * time.Minute

// NewRouter creates and configures the HTTP router with middleware and API routes.
func NewRouter(fixer handler.Fixer, adapters autofix.Adapters, layouter handler.Layouter, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		h := handler.NewDiagramHandler(fixer, adapters, layouter, logger)
		r.Post("/detect", h.Detect)
		r.Post("/validate", h.Validate)
		r.Post("/autofix", h.Autofix)
		r.Post("/layout", h.Layout)
	})

	return r
}
