// Package httpserver builds the process's HTTP listeners with a shared
// timeout policy so the API and metrics servers degrade the same way under
// slow or stalled clients.
package httpserver

import (
	"net/http"
	"time"

	"enroll/internal/platform/config"
)

// Header reads are bounded separately from bodies: a client that never
// finishes its headers should not hold a connection for the full read window.
const readHeaderTimeout = 5 * time.Second

// New builds an HTTP server for addr carrying the configured timeouts.
func New(addr string, handler http.Handler, cfg config.Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
