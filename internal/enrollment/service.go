package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// User-facing messages for expected enrollment outcomes
const (
	msgEmptyCode       = "invitation code is required"
	msgInvalidCode     = "no formation matches this invitation code"
	msgAlreadyEnrolled = "you are already enrolled in this formation"
	msgFormationFull   = "this formation is full"
	msgGenericFailure  = "enrollment failed, please try again"
)

// Service wraps the enrollment transaction with input validation and
// result mapping. Business-rule violations come back as JoinResult
// messages, never as errors.
type Service struct {
	repo storage.Repository
}

// NewService creates an enrollment service
func NewService(repo storage.Repository) *Service {
	return &Service{repo: repo}
}

// JoinByCode enrolls the user into the formation matching the invitation
// code. The code is trimmed and matched case-insensitively. The returned
// error is non-nil only for unexpected failures; everything a user can
// recover from is carried in the JoinResult.
func (s *Service) JoinByCode(ctx context.Context, code, userID string) (models.JoinResult, error) {
	if strings.TrimSpace(code) == "" {
		return models.JoinResult{Success: false, Message: msgEmptyCode}, nil
	}

	f, err := s.repo.EnrollByCode(ctx, code, userID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrCodeNotFound):
			return models.JoinResult{Success: false, Message: msgInvalidCode}, nil
		case errors.Is(err, storage.ErrAlreadyEnrolled):
			return models.JoinResult{Success: false, Message: msgAlreadyEnrolled}, nil
		case errors.Is(err, storage.ErrFormationFull):
			return models.JoinResult{Success: false, Message: msgFormationFull}, nil
		case errors.Is(err, storage.ErrUserNotFound):
			return models.JoinResult{}, err
		}
		slog.Error("enrollment failed", "user_id", userID, "error", err)
		return models.JoinResult{Success: false, Message: msgGenericFailure}, err
	}

	slog.Info("learner enrolled",
		"user_id", userID,
		"training_id", f.ID,
		"learners", f.CurrentLearners,
		"capacity", f.MaxLearners,
	)

	return models.JoinResult{
		Success:    true,
		Title:      f.Title,
		TrainingID: f.ID,
	}, nil
}
