package models

// Module is an ordered grouping of lessons and an optional quiz
// within a formation. Positions are dense and 1-based.
type Module struct {
	ID          string `json:"id"`
	FormationID string `json:"formation_id"`
	Position    int    `json:"position"`
	Title       string `json:"title"`
}

// LessonType enumerates supported lesson content kinds
type LessonType string

const (
	LessonText  LessonType = "text"
	LessonVideo LessonType = "video"
	LessonPDF   LessonType = "pdf"
)

// IsValid reports whether the lesson type is known
func (t LessonType) IsValid() bool {
	return t == LessonText || t == LessonVideo || t == LessonPDF
}

// Lesson belongs to a module. Content is inline text for text lessons
// and a URL for video/pdf lessons. Positions stay dense after deletion.
type Lesson struct {
	ID       string     `json:"id"`
	ModuleID string     `json:"module_id"`
	Position int        `json:"position"`
	Title    string     `json:"title"`
	Type     LessonType `json:"type"`
	Content  string     `json:"content"`
	Duration int        `json:"duration_minutes,omitempty"`
}

// QuizQuestion belongs to a module. CorrectIndex is a 0-based index
// into Options; Options always has at least two entries.
type QuizQuestion struct {
	ID           string   `json:"id"`
	ModuleID     string   `json:"module_id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
}

// CreateModuleRequest represents a request to add a module
type CreateModuleRequest struct {
	Title string `json:"title"`
}

// CreateLessonRequest represents a request to add a lesson
type CreateLessonRequest struct {
	Title    string     `json:"title"`
	Type     LessonType `json:"type"`
	Content  string     `json:"content"`
	Duration int        `json:"duration_minutes,omitempty"`
}

// CreateQuizQuestionRequest represents a request to add a quiz question
type CreateQuizQuestionRequest struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points,omitempty"`
}

// QuizSubmission maps question IDs to the selected option index
type QuizSubmission struct {
	Answers map[string]int `json:"answers"`
}
