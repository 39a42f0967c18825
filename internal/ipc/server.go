// Package ipc provides the read-only HTTP API for observing a running
// pipeline and resolving blocking clarifications.
package ipc

import (
	"context"
	"net/http"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/project", h.GetProject)
	mux.HandleFunc("GET /api/v1/project/transitions", h.ListTransitions)
	mux.HandleFunc("GET /api/v1/project/audit", h.ListAudit)
	mux.HandleFunc("GET /api/v1/bus/stats", h.BusStats)
	mux.HandleFunc("GET /api/v1/bus/history", h.BusHistory)
	mux.HandleFunc("GET /api/v1/decisions", h.ListDecisions)
	mux.HandleFunc("POST /api/v1/clarifications/resolve", h.ResolveClarifications)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{httpServer: srv}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for local dashboard access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
