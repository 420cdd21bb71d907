// Package learning handles lesson/module completion records and quiz
// attempt scoring. The certificate engine reads the records this
// service writes.
package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// ErrNoQuestions is returned when a quiz attempt targets a module
// without quiz questions
var ErrNoQuestions = errors.New("module has no quiz questions")

// Service wraps progress and quiz persistence
type Service struct {
	repo storage.Repository
}

// NewService creates a learning service
func NewService(repo storage.Repository) *Service {
	return &Service{repo: repo}
}

// CompleteLesson records a lesson completion for the learner
func (s *Service) CompleteLesson(ctx context.Context, userID, lessonID, formationID string) error {
	return s.repo.CompleteLesson(ctx, &models.LessonProgress{
		UserID:      userID,
		LessonID:    lessonID,
		FormationID: formationID,
		CompletedAt: time.Now().UTC(),
	})
}

// UncompleteLesson deletes the completion record outright
func (s *Service) UncompleteLesson(ctx context.Context, userID, lessonID string) error {
	return s.repo.UncompleteLesson(ctx, userID, lessonID)
}

// CompleteModule records a module completion for the learner
func (s *Service) CompleteModule(ctx context.Context, userID, moduleID string) error {
	return s.repo.CompleteModule(ctx, &models.ModuleProgress{
		UserID:      userID,
		ModuleID:    moduleID,
		CompletedAt: time.Now().UTC(),
	})
}

// UncompleteModule deletes the module completion record
func (s *Service) UncompleteModule(ctx context.Context, userID, moduleID string) error {
	return s.repo.UncompleteModule(ctx, userID, moduleID)
}

// SubmitQuiz scores an attempt against the module's questions and stores
// the result. Unanswered or out-of-range answers score zero for that
// question. Passing means reaching the threshold percentage.
func (s *Service) SubmitQuiz(ctx context.Context, userID, trainingID, moduleID string, submission models.QuizSubmission) (*models.QuizResult, error) {
	questions, err := s.repo.ListQuizQuestions(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	score, total := ScoreAttempt(questions, submission.Answers)

	percentage := float64(score) / float64(total) * 100

	result := &models.QuizResult{
		ID:          uuid.New().String(),
		UserID:      userID,
		TrainingID:  trainingID,
		ModuleID:    moduleID,
		Passed:      percentage >= models.PassThreshold,
		Score:       score,
		TotalPoints: total,
		Percentage:  percentage,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.CreateQuizResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store quiz result: %w", err)
	}

	return result, nil
}

// ScoreAttempt sums the points of correctly answered questions.
// Returns the score and the total attainable points.
func ScoreAttempt(questions []*models.QuizQuestion, answers map[string]int) (score, total int) {
	for _, q := range questions {
		points := q.Points
		if points < 1 {
			points = 1
		}
		total += points

		selected, ok := answers[q.ID]
		if ok && selected == q.CorrectIndex {
			score += points
		}
	}
	return score, total
}
