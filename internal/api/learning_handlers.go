package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/training-engine/internal/certificates"
	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// Progress handlers

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	lesson, err := s.repo.GetLesson(r.Context(), lessonID)
	if err != nil {
		if errors.Is(err, storage.ErrLessonNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "lesson not found")
			return
		}
		slog.Error("failed to get lesson", "error", err, "id", lessonID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete lesson")
		return
	}

	module, err := s.repo.GetModule(r.Context(), lesson.ModuleID)
	if err != nil {
		slog.Error("failed to get module", "error", err, "id", lesson.ModuleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete lesson")
		return
	}

	if err := s.learning.CompleteLesson(r.Context(), user.ID, lessonID, module.FormationID); err != nil {
		slog.Error("failed to complete lesson", "error", err, "lesson_id", lessonID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete lesson")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"completed": lessonID})
}

func (s *Server) handleUncompleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	if err := s.learning.UncompleteLesson(r.Context(), user.ID, lessonID); err != nil {
		slog.Error("failed to uncomplete lesson", "error", err, "lesson_id", lessonID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to uncomplete lesson")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"uncompleted": lessonID})
}

func (s *Server) handleCompleteModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	if _, err := s.repo.GetModule(r.Context(), moduleID); err != nil {
		if errors.Is(err, storage.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "module not found")
			return
		}
		slog.Error("failed to get module", "error", err, "id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete module")
		return
	}

	if err := s.learning.CompleteModule(r.Context(), user.ID, moduleID); err != nil {
		slog.Error("failed to complete module", "error", err, "module_id", moduleID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to complete module")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"completed": moduleID})
}

func (s *Server) handleUncompleteModule(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	if err := s.learning.UncompleteModule(r.Context(), user.ID, moduleID); err != nil {
		slog.Error("failed to uncomplete module", "error", err, "module_id", moduleID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to uncomplete module")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"uncompleted": moduleID})
}

// Certificate handlers

func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	trainingID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	eligibility, err := s.certificates.CheckEligibility(r.Context(), user.ID, trainingID)
	if err != nil {
		slog.Error("failed to check eligibility", "error", err, "training_id", trainingID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to check eligibility")
		return
	}

	respondJSON(w, http.StatusOK, eligibility)
}

func (s *Server) handleGenerateCertificate(w http.ResponseWriter, r *http.Request) {
	trainingID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	cert, err := s.certificates.Generate(r.Context(), user.ID, trainingID)
	if err != nil {
		switch {
		case errors.Is(err, certificates.ErrNotEligible):
			respondError(w, http.StatusConflict, "not_eligible", "completion requirements are not yet met")
		case errors.Is(err, certificates.ErrGenerationInProgress):
			respondError(w, http.StatusConflict, "generation_in_progress", "certificate generation is already running, try again shortly")
		default:
			slog.Error("failed to generate certificate", "error", err, "training_id", trainingID, "user_id", user.ID)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to generate certificate")
		}
		return
	}

	respondJSON(w, http.StatusOK, cert)
}

func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	trainingID := chi.URLParam(r, "id")
	user := UserFromContext(r.Context())

	cert, err := s.repo.GetCertificate(r.Context(), models.CertificateID(user.ID, trainingID))
	if err != nil {
		slog.Error("failed to get certificate", "error", err, "training_id", trainingID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get certificate")
		return
	}
	if cert == nil {
		respondError(w, http.StatusNotFound, "not_found", "no certificate has been issued")
		return
	}

	respondJSON(w, http.StatusOK, cert)
}

// Message history handler (REST fallback for clients without a live
// chat connection; the WebSocket endpoint is the primary surface)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	trainingID := chi.URLParam(r, "id")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	var err error
	var messages interface{}

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, parseErr := time.Parse(time.RFC3339Nano, beforeStr)
		if parseErr != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "before must be an RFC3339 timestamp")
			return
		}
		messages, err = s.repo.ListMessagesBefore(r.Context(), trainingID, before, limit)
	} else {
		messages, err = s.repo.ListMessages(r.Context(), trainingID, limit)
	}

	if err != nil {
		slog.Error("failed to list messages", "error", err, "training_id", trainingID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
