package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/terra-clan/training-engine/internal/learning"
	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// Module handlers

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	formationID := chi.URLParam(r, "id")

	modules, err := s.repo.ListModules(r.Context(), formationID)
	if err != nil {
		slog.Error("failed to list modules", "error", err, "formation_id", formationID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list modules")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"modules": modules,
		"total":   len(modules),
	})
}

func (s *Server) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	formationID := chi.URLParam(r, "id")

	var req models.CreateModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "title is required")
		return
	}

	f, err := s.repo.GetFormation(r.Context(), formationID)
	if err != nil {
		if errors.Is(err, storage.ErrFormationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "formation not found")
			return
		}
		slog.Error("failed to get formation", "error", err, "id", formationID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create module")
		return
	}

	trainer := UserFromContext(r.Context())
	if f.TrainerID != trainer.ID {
		respondError(w, http.StatusForbidden, "forbidden", "only the owning trainer may edit this formation")
		return
	}

	m := &models.Module{
		ID:          uuid.New().String(),
		FormationID: formationID,
		Title:       req.Title,
	}

	if err := s.repo.CreateModule(r.Context(), m); err != nil {
		slog.Error("failed to create module", "error", err, "formation_id", formationID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create module")
		return
	}

	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.requireModuleOwnership(w, r, id) {
		return
	}

	if err := s.repo.DeleteModule(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "module not found")
			return
		}
		slog.Error("failed to delete module", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete module")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Lesson handlers

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")

	lessons, err := s.repo.ListLessons(r.Context(), moduleID)
	if err != nil {
		slog.Error("failed to list lessons", "error", err, "module_id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list lessons")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lessons": lessons,
		"total":   len(lessons),
	})
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")

	var req models.CreateLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "title is required")
		return
	}

	if !req.Type.IsValid() {
		respondError(w, http.StatusBadRequest, "validation_error", "type must be text, video or pdf")
		return
	}

	if !s.requireModuleOwnership(w, r, moduleID) {
		return
	}

	l := &models.Lesson{
		ID:       uuid.New().String(),
		ModuleID: moduleID,
		Title:    req.Title,
		Type:     req.Type,
		Content:  req.Content,
		Duration: req.Duration,
	}

	if err := s.repo.CreateLesson(r.Context(), l); err != nil {
		slog.Error("failed to create lesson", "error", err, "module_id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create lesson")
		return
	}

	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lesson, err := s.repo.GetLesson(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrLessonNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "lesson not found")
			return
		}
		slog.Error("failed to get lesson", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete lesson")
		return
	}

	if !s.requireModuleOwnership(w, r, lesson.ModuleID) {
		return
	}

	if err := s.repo.DeleteLesson(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrLessonNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "lesson not found")
			return
		}
		slog.Error("failed to delete lesson", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete lesson")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Quiz handlers

func (s *Server) handleListQuizQuestions(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")

	questions, err := s.repo.ListQuizQuestions(r.Context(), moduleID)
	if err != nil {
		slog.Error("failed to list quiz questions", "error", err, "module_id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list quiz questions")
		return
	}

	user := UserFromContext(r.Context())
	if !user.IsTrainer() {
		// Learners never see the answer key
		for _, q := range questions {
			q.CorrectIndex = -1
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     len(questions),
	})
}

func (s *Server) handleCreateQuizQuestion(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")

	var req models.CreateQuizQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "question is required")
		return
	}

	if len(req.Options) < 2 {
		respondError(w, http.StatusBadRequest, "validation_error", "at least two options are required")
		return
	}

	if req.CorrectIndex < 0 || req.CorrectIndex >= len(req.Options) {
		respondError(w, http.StatusBadRequest, "validation_error", "correct_index is out of range")
		return
	}

	if !s.requireModuleOwnership(w, r, moduleID) {
		return
	}

	points := req.Points
	if points < 1 {
		points = 1
	}

	q := &models.QuizQuestion{
		ID:           uuid.New().String(),
		ModuleID:     moduleID,
		Question:     req.Question,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
		Points:       points,
	}

	if err := s.repo.CreateQuizQuestion(r.Context(), q); err != nil {
		slog.Error("failed to create quiz question", "error", err, "module_id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create quiz question")
		return
	}

	respondJSON(w, http.StatusCreated, q)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "id")

	var submission models.QuizSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	module, err := s.repo.GetModule(r.Context(), moduleID)
	if err != nil {
		if errors.Is(err, storage.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "module not found")
			return
		}
		slog.Error("failed to get module", "error", err, "id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to submit quiz")
		return
	}

	user := UserFromContext(r.Context())

	result, err := s.learning.SubmitQuiz(r.Context(), user.ID, module.FormationID, moduleID, submission)
	if err != nil {
		if errors.Is(err, learning.ErrNoQuestions) {
			respondError(w, http.StatusConflict, "no_questions", "this module has no quiz")
			return
		}
		slog.Error("failed to submit quiz", "error", err, "module_id", moduleID, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to submit quiz")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// requireModuleOwnership verifies the authenticated trainer owns the
// formation the module belongs to. Writes the error response itself and
// returns false when the check fails.
func (s *Server) requireModuleOwnership(w http.ResponseWriter, r *http.Request, moduleID string) bool {
	module, err := s.repo.GetModule(r.Context(), moduleID)
	if err != nil {
		if errors.Is(err, storage.ErrModuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "module not found")
			return false
		}
		slog.Error("failed to get module", "error", err, "id", moduleID)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return false
	}

	f, err := s.repo.GetFormation(r.Context(), module.FormationID)
	if err != nil {
		slog.Error("failed to get formation", "error", err, "id", module.FormationID)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return false
	}

	trainer := UserFromContext(r.Context())
	if f.TrainerID != trainer.ID {
		respondError(w, http.StatusForbidden, "forbidden", "only the owning trainer may edit this formation")
		return false
	}

	return true
}
