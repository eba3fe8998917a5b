// Package httptransport assembles the public HTTP surface: middleware chain,
// health endpoint, and the registration routes. It holds no business logic.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"enroll/internal/registration/handler"
	"enroll/pkg/platform/httputil"
	"enroll/pkg/platform/middleware/logging"
	"enroll/pkg/platform/middleware/requestid"
	"enroll/pkg/platform/middleware/requesttime"
)

// NewRouter wires the middleware stack and mounts the registration handler.
func NewRouter(h *handler.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(logging.Middleware(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Register(r)

	return r
}
