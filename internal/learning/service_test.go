package learning

import (
	"context"
	"errors"
	"testing"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

type fakeRepo struct {
	storage.Repository

	questions  []*models.QuizQuestion
	lastResult *models.QuizResult
}

func (f *fakeRepo) ListQuizQuestions(ctx context.Context, moduleID string) ([]*models.QuizQuestion, error) {
	return f.questions, nil
}

func (f *fakeRepo) CreateQuizResult(ctx context.Context, r *models.QuizResult) error {
	f.lastResult = r
	return nil
}

func question(id string, correct, points int) *models.QuizQuestion {
	return &models.QuizQuestion{
		ID:           id,
		ModuleID:     "m1",
		Question:     "q",
		Options:      []string{"a", "b", "c", "d"},
		CorrectIndex: correct,
		Points:       points,
	}
}

func TestScoreAttempt(t *testing.T) {
	questions := []*models.QuizQuestion{
		question("q1", 0, 2),
		question("q2", 1, 3),
		question("q3", 2, 0), // zero points counts as one
	}

	score, total := ScoreAttempt(questions, map[string]int{
		"q1": 0, // correct, 2 points
		"q2": 3, // wrong
		"q3": 2, // correct, 1 point (floored)
	})

	if total != 6 {
		t.Errorf("expected total 6, got %d", total)
	}
	if score != 3 {
		t.Errorf("expected score 3, got %d", score)
	}
}

func TestScoreAttemptUnanswered(t *testing.T) {
	questions := []*models.QuizQuestion{
		question("q1", 0, 1),
		question("q2", 1, 1),
	}

	score, total := ScoreAttempt(questions, map[string]int{"q1": 0})
	if score != 1 || total != 2 {
		t.Errorf("unanswered question must score zero: score=%d total=%d", score, total)
	}
}

func TestSubmitQuizPass(t *testing.T) {
	repo := &fakeRepo{questions: []*models.QuizQuestion{
		question("q1", 0, 1),
		question("q2", 1, 1),
		question("q3", 2, 1),
	}}
	svc := NewService(repo)

	result, err := svc.SubmitQuiz(context.Background(), "u1", "f1", "m1", models.QuizSubmission{
		Answers: map[string]int{"q1": 0, "q2": 1, "q3": 0},
	})
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}

	// 2 of 3 points is below the 70% threshold
	if result.Passed {
		t.Errorf("66%% must not pass: %+v", result)
	}
	if result.Score != 2 || result.TotalPoints != 3 {
		t.Errorf("unexpected scoring: %+v", result)
	}
	if repo.lastResult == nil {
		t.Fatal("result was not persisted")
	}

	// Full marks pass
	result, err = svc.SubmitQuiz(context.Background(), "u1", "f1", "m1", models.QuizSubmission{
		Answers: map[string]int{"q1": 0, "q2": 1, "q3": 2},
	})
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}
	if !result.Passed || result.Percentage != 100 {
		t.Errorf("full marks must pass at 100%%: %+v", result)
	}
}

func TestSubmitQuizThresholdBoundary(t *testing.T) {
	// 7 of 10 points is exactly the threshold; exactly 70% passes
	var questions []*models.QuizQuestion
	answers := make(map[string]int)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		questions = append(questions, question(id, 0, 1))
		if i < 7 {
			answers[id] = 0
		} else {
			answers[id] = 1
		}
	}
	repo := &fakeRepo{questions: questions}
	svc := NewService(repo)

	result, err := svc.SubmitQuiz(context.Background(), "u1", "f1", "m1", models.QuizSubmission{Answers: answers})
	if err != nil {
		t.Fatalf("SubmitQuiz failed: %v", err)
	}
	if !result.Passed {
		t.Errorf("exactly 70%% must pass: %+v", result)
	}
}

func TestSubmitQuizNoQuestions(t *testing.T) {
	svc := NewService(&fakeRepo{})

	_, err := svc.SubmitQuiz(context.Background(), "u1", "f1", "m1", models.QuizSubmission{})
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}
