package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-arbiter/internal/auth"
	"github.com/nerrad567/gray-logic-arbiter/internal/panel"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Operator console (static, polls the unauthenticated monitoring routes)
	r.Handle("/console/*", http.StripPrefix("/console", panel.Handler(s.cfg.ConsoleDir)))
	r.Handle("/console", http.RedirectHandler("/console/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		// Monitoring (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/metrics/prometheus", s.handlePrometheus)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/locks", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermLockRead)).Get("/", s.handleListLocks)
				r.With(s.requirePermission(auth.PermLockSelect)).Post("/select", s.handleSelectLock)
				r.With(s.requirePermission(auth.PermLockBlock)).Post("/block", s.handleBlockLock)
				r.Post("/delete", s.handleDeleteLocks)
				r.With(s.requirePermission(auth.PermLockRead)).Get("/{id}", s.handleGetLock)
				r.Delete("/{id}", s.handleDeleteLock)
			})

			r.Route("/commands", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermCommandRead)).Get("/", s.handleListCommands)
				r.With(s.requirePermission(auth.PermCommandIssue)).Post("/{id}/issue", s.handleIssueCommand)
			})

			r.With(s.requirePermission(auth.PermCommandRead)).Get("/endpoints", s.handleListEndpoints)

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}
