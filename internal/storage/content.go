package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/terra-clan/training-engine/internal/models"
)

// --- Modules ---

// CreateModule appends a module at the next dense position
func (r *PostgresRepository) CreateModule(ctx context.Context, m *models.Module) error {
	query := `
		INSERT INTO modules (id, formation_id, position, title)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM modules WHERE formation_id = $2), $3)
		RETURNING position
	`

	if err := r.pool.QueryRow(ctx, query, m.ID, m.FormationID, m.Title).Scan(&m.Position); err != nil {
		return fmt.Errorf("failed to create module: %w", err)
	}

	return nil
}

// GetModule fetches a module by ID
func (r *PostgresRepository) GetModule(ctx context.Context, id string) (*models.Module, error) {
	var m models.Module
	err := r.pool.QueryRow(ctx,
		`SELECT id, formation_id, position, title FROM modules WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.FormationID, &m.Position, &m.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return &m, nil
}

// ListModules returns the formation's modules in position order
func (r *PostgresRepository) ListModules(ctx context.Context, formationID string) ([]*models.Module, error) {
	query := `
		SELECT id, formation_id, position, title
		FROM modules
		WHERE formation_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, formationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []*models.Module

	for rows.Next() {
		var m models.Module
		if err := rows.Scan(&m.ID, &m.FormationID, &m.Position, &m.Title); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating modules: %w", err)
	}

	return modules, nil
}

// DeleteModule removes a module and closes the position gap so sibling
// positions stay dense and 1-based
func (r *PostgresRepository) DeleteModule(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var formationID string
	var position int
	err = tx.QueryRow(ctx, `SELECT formation_id, position FROM modules WHERE id = $1 FOR UPDATE`, id).Scan(&formationID, &position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrModuleNotFound
		}
		return fmt.Errorf("failed to lock module: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM modules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE modules SET position = position - 1 WHERE formation_id = $1 AND position > $2`,
		formationID, position,
	); err != nil {
		return fmt.Errorf("failed to reindex modules: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit module delete: %w", err)
	}

	return nil
}

// --- Lessons ---

// CreateLesson appends a lesson at the next dense position
func (r *PostgresRepository) CreateLesson(ctx context.Context, l *models.Lesson) error {
	query := `
		INSERT INTO lessons (id, module_id, position, title, type, content, duration_minutes)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM lessons WHERE module_id = $2), $3, $4, $5, $6)
		RETURNING position
	`

	var duration interface{}
	if l.Duration > 0 {
		duration = l.Duration
	}

	if err := r.pool.QueryRow(ctx, query, l.ID, l.ModuleID, l.Title, string(l.Type), l.Content, duration).Scan(&l.Position); err != nil {
		return fmt.Errorf("failed to create lesson: %w", err)
	}

	return nil
}

// GetLesson fetches a lesson by ID
func (r *PostgresRepository) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	var l models.Lesson
	var typeStr string
	err := r.pool.QueryRow(ctx,
		`SELECT id, module_id, position, title, type, content, COALESCE(duration_minutes, 0) FROM lessons WHERE id = $1`,
		id,
	).Scan(&l.ID, &l.ModuleID, &l.Position, &l.Title, &typeStr, &l.Content, &l.Duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	l.Type = models.LessonType(typeStr)
	return &l, nil
}

// ListLessons returns the module's lessons in position order
func (r *PostgresRepository) ListLessons(ctx context.Context, moduleID string) ([]*models.Lesson, error) {
	query := `
		SELECT id, module_id, position, title, type, content, COALESCE(duration_minutes, 0)
		FROM lessons
		WHERE module_id = $1
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []*models.Lesson

	for rows.Next() {
		var l models.Lesson
		var typeStr string
		if err := rows.Scan(&l.ID, &l.ModuleID, &l.Position, &l.Title, &typeStr, &l.Content, &l.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		l.Type = models.LessonType(typeStr)
		lessons = append(lessons, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lessons: %w", err)
	}

	return lessons, nil
}

// DeleteLesson removes a lesson and reindexes sibling positions
func (r *PostgresRepository) DeleteLesson(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var moduleID string
	var position int
	err = tx.QueryRow(ctx, `SELECT module_id, position FROM lessons WHERE id = $1 FOR UPDATE`, id).Scan(&moduleID, &position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLessonNotFound
		}
		return fmt.Errorf("failed to lock lesson: %w", err)
	}

	// Completion records for a removed lesson must not keep blocking or
	// satisfying eligibility
	if _, err := tx.Exec(ctx, `DELETE FROM lesson_progress WHERE lesson_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete lesson progress: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete lesson: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE lessons SET position = position - 1 WHERE module_id = $1 AND position > $2`,
		moduleID, position,
	); err != nil {
		return fmt.Errorf("failed to reindex lessons: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit lesson delete: %w", err)
	}

	return nil
}

// --- Quiz questions ---

// CreateQuizQuestion adds a question to a module's quiz
func (r *PostgresRepository) CreateQuizQuestion(ctx context.Context, q *models.QuizQuestion) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		INSERT INTO quiz_questions (id, module_id, question, options, correct_index, points)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.pool.Exec(ctx, query, q.ID, q.ModuleID, q.Question, optionsJSON, q.CorrectIndex, q.Points); err != nil {
		return fmt.Errorf("failed to create quiz question: %w", err)
	}

	return nil
}

// ListQuizQuestions returns all questions of a module's quiz
func (r *PostgresRepository) ListQuizQuestions(ctx context.Context, moduleID string) ([]*models.QuizQuestion, error) {
	query := `
		SELECT id, module_id, question, options, correct_index, points
		FROM quiz_questions
		WHERE module_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.QuizQuestion

	for rows.Next() {
		var q models.QuizQuestion
		var optionsJSON []byte
		if err := rows.Scan(&q.ID, &q.ModuleID, &q.Question, &optionsJSON, &q.CorrectIndex, &q.Points); err != nil {
			return nil, fmt.Errorf("failed to scan quiz question: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		questions = append(questions, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quiz questions: %w", err)
	}

	return questions, nil
}

// CountQuizQuestions returns the number of questions in a module's quiz
func (r *PostgresRepository) CountQuizQuestions(ctx context.Context, moduleID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quiz_questions WHERE module_id = $1`, moduleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count quiz questions: %w", err)
	}
	return count, nil
}
