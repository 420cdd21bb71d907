package models

import "time"

// LessonProgress records a learner completing a lesson.
// Deleted outright on un-completion, never soft-deleted.
type LessonProgress struct {
	UserID      string    `json:"user_id"`
	LessonID    string    `json:"lesson_id"`
	FormationID string    `json:"formation_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// ModuleProgress records a learner completing a whole module
type ModuleProgress struct {
	UserID      string    `json:"user_id"`
	ModuleID    string    `json:"module_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// QuizResult records one scored quiz attempt for a module.
// Passed is true when Percentage >= PassThreshold.
type QuizResult struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TrainingID  string    `json:"training_id"`
	ModuleID    string    `json:"module_id"`
	Passed      bool      `json:"passed"`
	Score       int       `json:"score"`
	TotalPoints int       `json:"total_points"`
	Percentage  float64   `json:"percentage"`
	CreatedAt   time.Time `json:"created_at"`
}

// PassThreshold is the minimum percentage for a passing quiz attempt
const PassThreshold = 70.0

// Certificate is issued at most once per learner per training; its ID is
// the deterministic "<userID>_<trainingID>" key and its existence is the
// completion marker. Never mutated after creation.
type Certificate struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TrainingID     string    `json:"training_id"`
	LearnerName    string    `json:"learner_name"`
	FormationTitle string    `json:"formation_title"`
	TrainerName    string    `json:"trainer_name"`
	CertificateURL string    `json:"certificate_url"`
	IssuedAt       time.Time `json:"issued_at"`
}

// CertificateID builds the deterministic certificate key
func CertificateID(userID, trainingID string) string {
	return userID + "_" + trainingID
}

// Eligibility is the caller-facing result of an eligibility check
type Eligibility struct {
	Eligible            bool         `json:"eligible"`
	AllLessonsCompleted bool         `json:"all_lessons_completed"`
	AllQuizzesPassed    bool         `json:"all_quizzes_passed"`
	Certificate         *Certificate `json:"certificate,omitempty"`
}
