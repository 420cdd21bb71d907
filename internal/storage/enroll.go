package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/terra-clan/training-engine/internal/models"
)

// maxEnrollRetries bounds re-execution on serialization conflicts
const maxEnrollRetries = 3

// EnrollByCode atomically joins a learner to the formation matching the
// invitation code. All four writes (participant row, formation counter,
// learner counters, instructor link) commit together or not at all.
//
// The formation row is locked first and every validation re-reads inside
// the transaction, so the capacity check is re-evaluated on every retry
// and two concurrent joins for the last seat cannot both succeed.
func (r *PostgresRepository) EnrollByCode(ctx context.Context, code, userID string) (*models.Formation, error) {
	normalized := models.NormalizeInvitationCode(code)

	var f *models.Formation
	var err error

	for attempt := 0; attempt < maxEnrollRetries; attempt++ {
		f, err = r.enrollOnce(ctx, normalized, userID)
		if err == nil || !isSerializationError(err) {
			return f, err
		}
		slog.Warn("enrollment transaction conflict, retrying",
			"user_id", userID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, fmt.Errorf("enrollment failed after %d attempts: %w", maxEnrollRetries, err)
}

func (r *PostgresRepository) enrollOnce(ctx context.Context, code, userID string) (*models.Formation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin enrollment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the formation row for the duration of the transaction. The
	// capacity check below is only safe while this lock is held.
	query := `
		SELECT id, title, description, category, trainer_id, invitation_code, max_learners, current_learners, status, created_at
		FROM formations
		WHERE UPPER(invitation_code) = $1
		FOR UPDATE
	`

	f, err := scanFormation(tx.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to look up invitation code: %w", err)
	}

	// Lock the learner row; also confirms the user exists.
	var trainingsJoined int
	err = tx.QueryRow(ctx, `SELECT trainings_joined_count FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&trainingsJoined)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock learner: %w", err)
	}

	var alreadyEnrolled bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM formation_participants WHERE formation_id = $1 AND user_id = $2)`,
		f.ID, userID,
	).Scan(&alreadyEnrolled)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if alreadyEnrolled {
		return nil, ErrAlreadyEnrolled
	}

	if f.CurrentLearners >= f.MaxLearners {
		return nil, ErrFormationFull
	}

	// 1. Add the learner to the participant set
	if _, err := tx.Exec(ctx,
		`INSERT INTO formation_participants (formation_id, user_id) VALUES ($1, $2)`,
		f.ID, userID,
	); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	// 2. Bump the formation's learner counter
	if _, err := tx.Exec(ctx,
		`UPDATE formations SET current_learners = current_learners + 1 WHERE id = $1`,
		f.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to increment formation counter: %w", err)
	}

	// 3. Link the instructor if this trainer is new to the learner
	tag, err := tx.Exec(ctx,
		`INSERT INTO user_instructors (user_id, trainer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, f.TrainerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to link instructor: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET learners_count = learners_count + 1 WHERE id = $1`,
			f.TrainerID,
		); err != nil {
			return nil, fmt.Errorf("failed to increment trainer counter: %w", err)
		}
	}

	// 4. Bump the learner's joined counter
	if _, err := tx.Exec(ctx,
		`UPDATE users SET trainings_joined_count = trainings_joined_count + 1 WHERE id = $1`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to increment learner counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit enrollment: %w", err)
	}

	f.CurrentLearners++
	return f, nil
}

// isSerializationError reports whether the error is a retryable
// serialization failure or deadlock (SQLSTATE 40001 / 40P01)
func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
