package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Formation handlers

func (s *Server) handleCreateFormation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFormationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "title is required")
		return
	}

	if req.MaxLearners < 1 {
		respondError(w, http.StatusBadRequest, "validation_error", "max_learners must be positive")
		return
	}

	trainer := UserFromContext(r.Context())

	code, err := models.GenerateInvitationCode()
	if err != nil {
		slog.Error("failed to generate invitation code", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create formation")
		return
	}

	f := &models.Formation{
		ID:             uuid.New().String(),
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		TrainerID:      trainer.ID,
		InvitationCode: code,
		MaxLearners:    req.MaxLearners,
		Status:         models.FormationPlanned,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.CreateFormation(r.Context(), f); err != nil {
		slog.Error("failed to create formation", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create formation")
		return
	}

	respondJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFormation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f, err := s.repo.GetFormation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrFormationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "formation not found")
			return
		}
		slog.Error("failed to get formation", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get formation")
		return
	}

	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleUpdateFormation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateFormationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	f, err := s.repo.GetFormation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrFormationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "formation not found")
			return
		}
		slog.Error("failed to get formation", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update formation")
		return
	}

	trainer := UserFromContext(r.Context())
	if f.TrainerID != trainer.ID {
		respondError(w, http.StatusForbidden, "forbidden", "only the owning trainer may edit this formation")
		return
	}

	// Status moves are always allowed; everything else only while planned
	editingFields := req.Title != nil || req.Description != nil || req.Category != nil || req.MaxLearners != nil
	if editingFields && !f.IsEditable() {
		respondError(w, http.StatusConflict, "not_editable", "formation fields can only change while planned")
		return
	}

	if req.Title != nil {
		f.Title = *req.Title
	}
	if req.Description != nil {
		f.Description = *req.Description
	}
	if req.Category != nil {
		f.Category = *req.Category
	}
	if req.MaxLearners != nil {
		if *req.MaxLearners < f.CurrentLearners {
			respondError(w, http.StatusConflict, "validation_error", "max_learners cannot drop below current enrollment")
			return
		}
		f.MaxLearners = *req.MaxLearners
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			respondError(w, http.StatusBadRequest, "validation_error", "invalid status")
			return
		}
		f.Status = *req.Status
	}

	if err := s.repo.UpdateFormation(r.Context(), f); err != nil {
		slog.Error("failed to update formation", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update formation")
		return
	}

	respondJSON(w, http.StatusOK, f)
}

func (s *Server) handleListFormations(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	filters := models.ListFilters{
		Status: models.FormationStatus(r.URL.Query().Get("status")),
		Limit:  50, // default
		Offset: 0,
	}

	// Trainers list what they run, learners what they joined
	if user.IsTrainer() {
		filters.TrainerID = user.ID
	} else {
		filters.ParticipantID = user.ID
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	formations, err := s.repo.ListFormations(r.Context(), filters)
	if err != nil {
		slog.Error("failed to list formations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list formations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"formations": formations,
		"total":      len(formations),
	})
}

// Enrollment handler

func (s *Server) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	var req models.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user := UserFromContext(r.Context())

	result, err := s.enrollment.JoinByCode(r.Context(), req.Code, user.ID)
	if err != nil && result.Message == "" {
		slog.Error("enrollment error", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "enrollment failed")
		return
	}

	// Business-rule refusals are 200s with success=false; the client
	// shows result.Message as-is
	respondJSON(w, http.StatusOK, result)
}
