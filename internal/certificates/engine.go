package certificates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

var (
	// ErrNotEligible is returned when generation is requested before the
	// learner satisfies the completion requirements
	ErrNotEligible = errors.New("learner is not eligible for a certificate")
	// ErrGenerationInProgress is returned while another generation for the
	// same learner/training pair is still running
	ErrGenerationInProgress = errors.New("certificate generation already in progress")
)

// Renderer produces a local certificate file from display strings.
// The visual template is out of scope; the engine only needs a file
// it can hand to the uploader.
type Renderer interface {
	Render(ctx context.Context, learnerName, formationTitle, trainerName, issuedDate string) (path string, err error)
}

// Uploader pushes a local file to the blob host and returns a durable URL
type Uploader interface {
	Upload(ctx context.Context, path, folder, contentType string) (url string, err error)
}

// Engine computes certificate eligibility and issues certificates
// idempotently. The deterministic certificate ID is the idempotency key;
// existence of the row is the completion marker.
type Engine struct {
	repo     storage.Repository
	renderer Renderer
	uploader Uploader

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEngine creates a certificate engine
func NewEngine(repo storage.Repository, renderer Renderer, uploader Uploader) *Engine {
	return &Engine{
		repo:     repo,
		renderer: renderer,
		uploader: uploader,
		inFlight: make(map[string]bool),
	}
}

// CheckEligibility walks the formation's module/lesson/quiz graph against
// the learner's progress records.
//
// Rules:
//   - a formation with no modules is never eligible
//   - every lesson of every module must be completed (early exit on the
//     first incomplete module)
//   - a module's quiz must be passed only if the module has at least one
//     question; quiz-less modules impose no quiz requirement
func (e *Engine) CheckEligibility(ctx context.Context, userID, trainingID string) (*models.Eligibility, error) {
	// An issued certificate settles the question; eligibility is no
	// longer re-derived once one exists.
	cert, err := e.repo.GetCertificate(ctx, models.CertificateID(userID, trainingID))
	if err != nil {
		return nil, fmt.Errorf("failed to check existing certificate: %w", err)
	}
	if cert != nil {
		return &models.Eligibility{
			Eligible:            true,
			AllLessonsCompleted: true,
			AllQuizzesPassed:    true,
			Certificate:         cert,
		}, nil
	}

	modules, err := e.repo.ListModules(ctx, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	if len(modules) == 0 {
		return &models.Eligibility{}, nil
	}

	completed, err := e.repo.ListCompletedLessonIDs(ctx, userID, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed lessons: %w", err)
	}

	allLessons := true
	for _, m := range modules {
		lessons, err := e.repo.ListLessons(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list lessons for module %s: %w", m.ID, err)
		}
		for _, l := range lessons {
			if !completed[l.ID] {
				allLessons = false
				break
			}
		}
		if !allLessons {
			break
		}
	}

	passed, err := e.repo.ListPassedModuleIDs(ctx, userID, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passed quizzes: %w", err)
	}

	allQuizzes := true
	for _, m := range modules {
		count, err := e.repo.CountQuizQuestions(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count quiz questions for module %s: %w", m.ID, err)
		}
		if count > 0 && !passed[m.ID] {
			allQuizzes = false
			break
		}
	}

	return &models.Eligibility{
		Eligible:            allLessons && allQuizzes,
		AllLessonsCompleted: allLessons,
		AllQuizzesPassed:    allQuizzes,
	}, nil
}

// Generate issues a certificate for an eligible learner. Calling it again
// after success returns the existing certificate without re-rendering.
// Render or upload failures leave no certificate row, so the caller may
// simply retry; the render step is cheap and repeated, not cached.
func (e *Engine) Generate(ctx context.Context, userID, trainingID string) (*models.Certificate, error) {
	certID := models.CertificateID(userID, trainingID)

	if existing, err := e.repo.GetCertificate(ctx, certID); err != nil {
		return nil, fmt.Errorf("failed to check existing certificate: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	if !e.tryAcquire(certID) {
		return nil, ErrGenerationInProgress
	}
	defer e.release(certID)

	eligibility, err := e.CheckEligibility(ctx, userID, trainingID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, ErrNotEligible
	}

	learner, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load learner: %w", err)
	}

	formation, err := e.repo.GetFormation(ctx, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load formation: %w", err)
	}

	trainer, err := e.repo.GetUser(ctx, formation.TrainerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trainer: %w", err)
	}

	issuedAt := time.Now().UTC()

	path, err := e.renderer.Render(ctx, learner.Name, formation.Title, trainer.Name, issuedAt.Format("2 January 2006"))
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}

	url, err := e.uploader.Upload(ctx, path, "certificates", "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to upload certificate: %w", err)
	}

	cert := &models.Certificate{
		ID:             certID,
		UserID:         userID,
		TrainingID:     trainingID,
		LearnerName:    learner.Name,
		FormationTitle: formation.Title,
		TrainerName:    trainer.Name,
		CertificateURL: url,
		IssuedAt:       issuedAt,
	}

	inserted, err := e.repo.CreateCertificate(ctx, cert)
	if err != nil {
		return nil, fmt.Errorf("failed to persist certificate: %w", err)
	}

	if !inserted {
		// Lost a race with a concurrent generation; the stored row wins
		existing, err := e.repo.GetCertificate(ctx, certID)
		if err != nil {
			return nil, fmt.Errorf("failed to load winning certificate: %w", err)
		}
		return existing, nil
	}

	slog.Info("certificate issued",
		"certificate_id", certID,
		"user_id", userID,
		"training_id", trainingID,
	)

	return cert, nil
}

func (e *Engine) tryAcquire(certID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[certID] {
		return false
	}
	e.inFlight[certID] = true
	return true
}

func (e *Engine) release(certID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, certID)
}
