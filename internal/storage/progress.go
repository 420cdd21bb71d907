package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/terra-clan/training-engine/internal/models"
)

// --- Lesson / module progress ---

// CompleteLesson records a lesson completion (idempotent upsert)
func (r *PostgresRepository) CompleteLesson(ctx context.Context, p *models.LessonProgress) error {
	query := `
		INSERT INTO lesson_progress (user_id, lesson_id, formation_id, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, lesson_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, p.UserID, p.LessonID, p.FormationID, p.CompletedAt); err != nil {
		return fmt.Errorf("failed to record lesson completion: %w", err)
	}

	return nil
}

// UncompleteLesson removes a completion record outright
func (r *PostgresRepository) UncompleteLesson(ctx context.Context, userID, lessonID string) error {
	query := `DELETE FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`

	if _, err := r.pool.Exec(ctx, query, userID, lessonID); err != nil {
		return fmt.Errorf("failed to remove lesson completion: %w", err)
	}

	return nil
}

// ListCompletedLessonIDs returns the set of lesson IDs the user completed
// within the formation
func (r *PostgresRepository) ListCompletedLessonIDs(ctx context.Context, userID, formationID string) (map[string]bool, error) {
	query := `SELECT lesson_id FROM lesson_progress WHERE user_id = $1 AND formation_id = $2`

	rows, err := r.pool.Query(ctx, query, userID, formationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed lessons: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lesson id: %w", err)
		}
		completed[id] = true
	}

	return completed, rows.Err()
}

// CompleteModule records a module completion (idempotent upsert)
func (r *PostgresRepository) CompleteModule(ctx context.Context, p *models.ModuleProgress) error {
	query := `
		INSERT INTO module_progress (user_id, module_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, module_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, p.UserID, p.ModuleID, p.CompletedAt); err != nil {
		return fmt.Errorf("failed to record module completion: %w", err)
	}

	return nil
}

// UncompleteModule removes a module completion record
func (r *PostgresRepository) UncompleteModule(ctx context.Context, userID, moduleID string) error {
	query := `DELETE FROM module_progress WHERE user_id = $1 AND module_id = $2`

	if _, err := r.pool.Exec(ctx, query, userID, moduleID); err != nil {
		return fmt.Errorf("failed to remove module completion: %w", err)
	}

	return nil
}

// --- Quiz results ---

// CreateQuizResult stores one scored attempt
func (r *PostgresRepository) CreateQuizResult(ctx context.Context, res *models.QuizResult) error {
	query := `
		INSERT INTO quiz_results (id, user_id, training_id, module_id, passed, score, total_points, percentage, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		res.ID,
		res.UserID,
		res.TrainingID,
		res.ModuleID,
		res.Passed,
		res.Score,
		res.TotalPoints,
		res.Percentage,
		res.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create quiz result: %w", err)
	}

	return nil
}

// ListPassedModuleIDs returns the set of module IDs with at least one
// passing attempt for the user within the training
func (r *PostgresRepository) ListPassedModuleIDs(ctx context.Context, userID, trainingID string) (map[string]bool, error) {
	query := `
		SELECT DISTINCT module_id
		FROM quiz_results
		WHERE user_id = $1 AND training_id = $2 AND passed = TRUE
	`

	rows, err := r.pool.Query(ctx, query, userID, trainingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passed modules: %w", err)
	}
	defer rows.Close()

	passed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan module id: %w", err)
		}
		passed[id] = true
	}

	return passed, rows.Err()
}

// --- Certificates ---

// CreateCertificate persists a certificate once. The deterministic primary
// key makes the insert idempotent; returns false when one already existed.
func (r *PostgresRepository) CreateCertificate(ctx context.Context, c *models.Certificate) (bool, error) {
	query := `
		INSERT INTO certificates (id, user_id, training_id, learner_name, formation_title, trainer_name, certificate_url, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.TrainingID,
		c.LearnerName,
		c.FormationTitle,
		c.TrainerName,
		c.CertificateURL,
		c.IssuedAt,
	)

	if err != nil {
		return false, fmt.Errorf("failed to create certificate: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetCertificate retrieves a certificate by its deterministic ID.
// Returns nil (no error) when none exists; existence is the only
// permitted has-a-certificate check.
func (r *PostgresRepository) GetCertificate(ctx context.Context, id string) (*models.Certificate, error) {
	query := `
		SELECT id, user_id, training_id, learner_name, formation_title, trainer_name, certificate_url, issued_at
		FROM certificates
		WHERE id = $1
	`

	var c models.Certificate
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.UserID,
		&c.TrainingID,
		&c.LearnerName,
		&c.FormationTitle,
		&c.TrainerName,
		&c.CertificateURL,
		&c.IssuedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return &c, nil
}
