package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/training-engine/internal/models"
)

// Sentinel errors surfaced to services and mapped by the API layer
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrFormationNotFound = errors.New("formation not found")
	ErrCodeNotFound      = errors.New("invitation code not found")
	ErrAlreadyEnrolled   = errors.New("already enrolled")
	ErrFormationFull     = errors.New("formation full")
	ErrModuleNotFound    = errors.New("module not found")
	ErrLessonNotFound    = errors.New("lesson not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotEditable       = errors.New("formation is not editable")
)

// Repository defines the persistence interface for training-engine
type Repository interface {
	// Users
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByToken(ctx context.Context, token string) (*models.User, error)

	// Formations
	CreateFormation(ctx context.Context, f *models.Formation) error
	GetFormation(ctx context.Context, id string) (*models.Formation, error)
	GetFormationByCode(ctx context.Context, code string) (*models.Formation, error)
	UpdateFormation(ctx context.Context, f *models.Formation) error
	ListFormations(ctx context.Context, filters models.ListFilters) ([]*models.Formation, error)

	// Enrollment (sole writer of the denormalized counters)
	EnrollByCode(ctx context.Context, code, userID string) (*models.Formation, error)

	// Modules, lessons, quiz questions
	CreateModule(ctx context.Context, m *models.Module) error
	GetModule(ctx context.Context, id string) (*models.Module, error)
	ListModules(ctx context.Context, formationID string) ([]*models.Module, error)
	DeleteModule(ctx context.Context, id string) error
	CreateLesson(ctx context.Context, l *models.Lesson) error
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	ListLessons(ctx context.Context, moduleID string) ([]*models.Lesson, error)
	DeleteLesson(ctx context.Context, id string) error
	CreateQuizQuestion(ctx context.Context, q *models.QuizQuestion) error
	ListQuizQuestions(ctx context.Context, moduleID string) ([]*models.QuizQuestion, error)
	CountQuizQuestions(ctx context.Context, moduleID string) (int, error)

	// Progress
	CompleteLesson(ctx context.Context, p *models.LessonProgress) error
	UncompleteLesson(ctx context.Context, userID, lessonID string) error
	ListCompletedLessonIDs(ctx context.Context, userID, formationID string) (map[string]bool, error)
	CompleteModule(ctx context.Context, p *models.ModuleProgress) error
	UncompleteModule(ctx context.Context, userID, moduleID string) error

	// Quiz results
	CreateQuizResult(ctx context.Context, r *models.QuizResult) error
	ListPassedModuleIDs(ctx context.Context, userID, trainingID string) (map[string]bool, error)

	// Certificates
	CreateCertificate(ctx context.Context, c *models.Certificate) (bool, error)
	GetCertificate(ctx context.Context, id string) (*models.Certificate, error)

	// Messages
	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, trainingID string, limit int) ([]*models.Message, error)
	ListMessagesBefore(ctx context.Context, trainingID string, before time.Time, limit int) ([]*models.Message, error)
	SetMessagePinned(ctx context.Context, id string, pinned bool) error
	AddMessageRead(ctx context.Context, messageID, userID string) error
	AddReaction(ctx context.Context, messageID, userID, emoji string) error
	DeleteReaction(ctx context.Context, messageID, userID, emoji string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
