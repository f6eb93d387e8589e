package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"auditor/internal/audit"
	"auditor/internal/storage"
)

// CreateAuditRequest is the intake payload. A missing organization id makes
// the audit ephemeral and subject to aggressive retention.
type CreateAuditRequest struct {
	URL            string  `json:"url"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

func (s *Server) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	var req CreateAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		s.respondWithError(w, http.StatusBadRequest, "URL is required")
		return
	}

	a, err := s.runner.Create(r.Context(), req.URL, req.OrganizationID)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidURL) {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to create audit", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not create audit")
		return
	}

	// Background execution is detached from the request lifetime.
	go s.runner.Execute(context.WithoutCancel(r.Context()), a.ID)

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"id": a.ID})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.pgStore.GetAudit(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Audit not found")
			return
		}
		s.logger.Error("failed to get audit", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve audit")
		return
	}
	s.respondWithJSON(w, http.StatusOK, a)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pages, err := s.pgStore.ListPages(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list pages", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve pages")
		return
	}
	s.respondWithJSON(w, http.StatusOK, pages)
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	checks, err := s.pgStore.ListChecks(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list checks", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve checks")
		return
	}
	s.respondWithJSON(w, http.StatusOK, checks)
}

func (s *Server) handleStopAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, err := s.runner.Stop(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, "Audit not found")
	case errors.Is(err, audit.ErrNotActive):
		s.respondWithError(w, http.StatusBadRequest, "Audit is not running")
	case err != nil:
		s.logger.Error("failed to stop audit", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not stop audit")
	default:
		s.respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
	}
}

func (s *Server) handleResumeAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.runner.Resume(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, "Audit not found")
	case errors.Is(err, audit.ErrNotResumable):
		s.respondWithError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("failed to resume audit", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not resume audit")
	default:
		s.respondWithJSON(w, http.StatusAccepted, map[string]any{"success": true})
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.config.CleanupToken == "" ||
		r.Header.Get("Authorization") != "Bearer "+s.config.CleanupToken {
		s.respondWithError(w, http.StatusUnauthorized, "Invalid cleanup token")
		return
	}

	counts, err := s.cleaner.Run(r.Context())
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	s.respondWithJSON(w, http.StatusOK, counts)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	isHealthy := healthStatus["postgres"] == "healthy" && healthStatus["redis"] == "healthy"
	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
