package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/terra-clan/training-engine/internal/models"
)

const messageColumns = `id, training_id, sender_id, sender_name, sender_role, sender_photo, body, attachment_url, attachment_type, reply_to_id, pinned, created_at`

// CreateMessage persists a chat message
func (r *PostgresRepository) CreateMessage(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, training_id, sender_id, sender_name, sender_role, sender_photo, body, attachment_url, attachment_type, reply_to_id, pinned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var attachmentURL, attachmentType sql.NullString
	if m.Attachment != nil {
		attachmentURL = sql.NullString{String: m.Attachment.URL, Valid: true}
		attachmentType = sql.NullString{String: string(m.Attachment.Type), Valid: true}
	}

	_, err := r.pool.Exec(ctx, query,
		m.ID,
		m.TrainingID,
		m.SenderID,
		m.SenderName,
		string(m.SenderRole),
		nullString(m.SenderPhoto),
		nullString(m.Text),
		attachmentURL,
		attachmentType,
		nullString(m.ReplyToID),
		m.Pinned,
		m.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetMessage retrieves one message with its reads and reactions
func (r *PostgresRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if err := r.attachMessageState(ctx, []*models.Message{m}); err != nil {
		return nil, err
	}

	return m, nil
}

// ListMessages returns the newest messages of a training, newest first
func (r *PostgresRepository) ListMessages(ctx context.Context, trainingID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE training_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return r.listMessages(ctx, query, trainingID, limit)
}

// ListMessagesBefore returns the next older page, strictly before the cursor
func (r *PostgresRepository) ListMessagesBefore(ctx context.Context, trainingID string, before time.Time, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE training_id = $1 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $2
	`

	return r.listMessages(ctx, query, trainingID, limit, before)
}

func (r *PostgresRepository) listMessages(ctx context.Context, query, trainingID string, limit int, extra ...interface{}) ([]*models.Message, error) {
	args := append([]interface{}{trainingID, limit}, extra...)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	if err := r.attachMessageState(ctx, messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// attachMessageState loads read receipts and reactions for a batch of messages
func (r *PostgresRepository) attachMessageState(ctx context.Context, messages []*models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]string, len(messages))
	byID := make(map[string]*models.Message, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id FROM message_reads WHERE message_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to load read receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("failed to scan read receipt: %w", err)
		}
		if m := byID[messageID]; m != nil {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating read receipts: %w", err)
	}

	reactionRows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("failed to load reactions: %w", err)
	}
	defer reactionRows.Close()

	for reactionRows.Next() {
		var messageID string
		var reaction models.Reaction
		if err := reactionRows.Scan(&messageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan reaction: %w", err)
		}
		if m := byID[messageID]; m != nil {
			m.Reactions = append(m.Reactions, reaction)
		}
	}
	if err := reactionRows.Err(); err != nil {
		return fmt.Errorf("error iterating reactions: %w", err)
	}

	return nil
}

// SetMessagePinned flips the pin flag
func (r *PostgresRepository) SetMessagePinned(ctx context.Context, id string, pinned bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE messages SET pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return fmt.Errorf("failed to set pinned: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// AddMessageRead adds the user to a message's read set (idempotent union)
func (r *PostgresRepository) AddMessageRead(ctx context.Context, messageID, userID string) error {
	query := `
		INSERT INTO message_reads (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("failed to add read receipt: %w", err)
	}

	return nil
}

// AddReaction records a (user, emoji) reaction; duplicate adds are no-ops
func (r *PostgresRepository) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}

	return nil
}

// DeleteReaction removes a reaction by its (message, user, emoji) key.
// Keyed deletion avoids the remove-by-exact-value hazard of list-shaped
// reaction storage.
func (r *PostgresRepository) DeleteReaction(ctx context.Context, messageID, userID, emoji string) error {
	query := `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	if _, err := r.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}

	return nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var roleStr string
	var senderPhoto, body, attachmentURL, attachmentType, replyToID sql.NullString

	err := row.Scan(
		&m.ID,
		&m.TrainingID,
		&m.SenderID,
		&m.SenderName,
		&roleStr,
		&senderPhoto,
		&body,
		&attachmentURL,
		&attachmentType,
		&replyToID,
		&m.Pinned,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.SenderRole = models.Role(roleStr)
	m.SenderPhoto = senderPhoto.String
	m.Text = body.String
	m.ReplyToID = replyToID.String

	if attachmentURL.Valid {
		m.Attachment = &models.Attachment{
			URL:  attachmentURL.String,
			Type: models.AttachmentType(attachmentType.String),
		}
	}

	return &m, nil
}
