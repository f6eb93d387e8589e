package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)
		r.Post("/audits", s.handleCreateAudit)
		r.Get("/audits/{id}", s.handleGetAudit)
		r.Get("/audits/{id}/pages", s.handleListPages)
		r.Get("/audits/{id}/checks", s.handleListChecks)
		r.Post("/audits/{id}/stop", s.handleStopAudit)
		r.Post("/audits/{id}/resume", s.handleResumeAudit)
		r.Post("/cleanup", s.handleCleanup)
	})

	return r
}
