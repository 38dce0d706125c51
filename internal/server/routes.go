package server

import (
	"net/http"

	"lifelockr/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.defaultHeaders)

	r.Get("/health", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/verify-otp", s.handleVerifyOTP)

		api.Group(func(p chi.Router) {
			p.Use(auth.AuthRequired(s.deps.Tokens, s.logger))

			p.Post("/auth/logout", s.handleLogout)

			p.Route("/vault", func(v chi.Router) {
				v.Get("/", s.handleListItems)
				v.Post("/", s.handleCreateItem)
				v.Get("/{id}", s.handleGetItem)
				v.Put("/{id}", s.handleUpdateItem)
				v.Delete("/{id}", s.handleDeleteItem)
			})

			p.With(auth.Require(auth.CapAccessRequest, s.logger)).Post("/access/request", s.handleRequestAccess)

			p.Route("/contacts", func(c chi.Router) {
				c.Use(auth.Require(auth.CapContactsManage, s.logger))
				c.Get("/", s.handleListContacts)
				c.Post("/", s.handleAddContact)
				c.Delete("/{id}", s.handleRemoveContact)
				c.Post("/{contactId}/revoke", s.handleRevokeContact)
			})

			p.With(auth.Require(auth.CapLogsOwn, s.logger)).Get("/logs", s.handleOwnLogs)
			p.With(auth.Require(auth.CapLogsAll, s.logger)).Get("/admin/logs", s.handleAllLogs)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Error("health check failed", "err", err)
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
