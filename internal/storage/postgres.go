package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/training-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Users ---

// GetUser retrieves a user by ID
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByToken retrieves a user by API token
func (r *PostgresRepository) GetUserByToken(ctx context.Context, token string) (*models.User, error) {
	return r.getUser(ctx, "api_token", token)
}

func (r *PostgresRepository) getUser(ctx context.Context, field, value string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, name, role, photo_url, trainings_joined_count, learners_count, created_at
		FROM users
		WHERE %s = $1
	`, field)

	var u models.User
	var roleStr string
	var photoURL sql.NullString

	err := r.pool.QueryRow(ctx, query, value).Scan(
		&u.ID,
		&u.Name,
		&roleStr,
		&photoURL,
		&u.TrainingsJoinedCount,
		&u.LearnersCount,
		&u.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = models.Role(roleStr)
	u.PhotoURL = photoURL.String

	return &u, nil
}

// --- Formations ---

const formationColumns = `id, title, description, category, trainer_id, invitation_code, max_learners, current_learners, status, created_at`

// CreateFormation creates a new formation record
func (r *PostgresRepository) CreateFormation(ctx context.Context, f *models.Formation) error {
	query := `
		INSERT INTO formations (id, title, description, category, trainer_id, invitation_code, max_learners, current_learners, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		f.ID,
		f.Title,
		nullString(f.Description),
		nullString(f.Category),
		f.TrainerID,
		f.InvitationCode,
		f.MaxLearners,
		f.CurrentLearners,
		string(f.Status),
		f.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create formation: %w", err)
	}

	return nil
}

// GetFormation retrieves a formation by ID
func (r *PostgresRepository) GetFormation(ctx context.Context, id string) (*models.Formation, error) {
	query := `SELECT ` + formationColumns + ` FROM formations WHERE id = $1`
	f, err := scanFormation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFormationNotFound
		}
		return nil, fmt.Errorf("failed to get formation: %w", err)
	}
	return f, nil
}

// GetFormationByCode retrieves a formation by its normalized invitation code
func (r *PostgresRepository) GetFormationByCode(ctx context.Context, code string) (*models.Formation, error) {
	query := `SELECT ` + formationColumns + ` FROM formations WHERE UPPER(invitation_code) = $1`
	f, err := scanFormation(r.pool.QueryRow(ctx, query, models.NormalizeInvitationCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get formation by code: %w", err)
	}
	return f, nil
}

// UpdateFormation updates trainer-editable fields and status
func (r *PostgresRepository) UpdateFormation(ctx context.Context, f *models.Formation) error {
	query := `
		UPDATE formations
		SET title = $2, description = $3, category = $4, max_learners = $5, status = $6
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		f.ID,
		f.Title,
		nullString(f.Description),
		nullString(f.Category),
		f.MaxLearners,
		string(f.Status),
	)

	if err != nil {
		return fmt.Errorf("failed to update formation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrFormationNotFound
	}

	return nil
}

// ListFormations returns formations matching filters
func (r *PostgresRepository) ListFormations(ctx context.Context, filters models.ListFilters) ([]*models.Formation, error) {
	query := `
		SELECT f.id, f.title, f.description, f.category, f.trainer_id, f.invitation_code, f.max_learners, f.current_learners, f.status, f.created_at
		FROM formations f
		WHERE 1=1
	`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.TrainerID != "" {
		query += fmt.Sprintf(" AND f.trainer_id = $%d", argNum)
		args = append(args, filters.TrainerID)
		argNum++
	}

	if filters.ParticipantID != "" {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM formation_participants p WHERE p.formation_id = f.id AND p.user_id = $%d)", argNum)
		args = append(args, filters.ParticipantID)
		argNum++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND f.status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	query += " ORDER BY f.created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list formations: %w", err)
	}
	defer rows.Close()

	var formations []*models.Formation

	for rows.Next() {
		f, err := scanFormation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan formation: %w", err)
		}
		formations = append(formations, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formations: %w", err)
	}

	return formations, nil
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFormation(row rowScanner) (*models.Formation, error) {
	var f models.Formation
	var statusStr string
	var description, category sql.NullString

	err := row.Scan(
		&f.ID,
		&f.Title,
		&description,
		&category,
		&f.TrainerID,
		&f.InvitationCode,
		&f.MaxLearners,
		&f.CurrentLearners,
		&statusStr,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Description = description.String
	f.Category = category.String
	f.Status = models.FormationStatus(statusStr)

	return &f, nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
