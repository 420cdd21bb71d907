package models

import (
	"crypto/rand"
	"strings"
	"time"
)

// FormationStatus represents the lifecycle state of a formation
type FormationStatus string

const (
	FormationPlanned   FormationStatus = "planned"
	FormationOngoing   FormationStatus = "ongoing"
	FormationCompleted FormationStatus = "completed"
	FormationCancelled FormationStatus = "cancelled"
)

// IsValid reports whether the status is one of the known states
func (s FormationStatus) IsValid() bool {
	switch s {
	case FormationPlanned, FormationOngoing, FormationCompleted, FormationCancelled:
		return true
	}
	return false
}

// Formation represents a training offering created by a trainer.
// current_learners is a denormalized counter kept consistent with the
// participant set by the enrollment transaction (and re-derived by the
// reconciliation worker).
type Formation struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	TrainerID       string          `json:"trainer_id"`
	InvitationCode  string          `json:"invitation_code"`
	MaxLearners     int             `json:"max_learners"`
	CurrentLearners int             `json:"current_learners"`
	Status          FormationStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsEditable reports whether trainer edits to core fields are allowed.
// Only planned formations may change title/description/category/capacity.
func (f *Formation) IsEditable() bool {
	return f.Status == FormationPlanned
}

// NormalizeInvitationCode canonicalizes a join code for lookup.
// Codes are stored uppercase and matched case-insensitively.
func NormalizeInvitationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// invitationCodeAlphabet avoids characters that read ambiguously (0/O, 1/I)
const invitationCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateInvitationCode creates a random 8-character join code
func GenerateInvitationCode() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = invitationCodeAlphabet[int(b)%len(invitationCodeAlphabet)]
	}
	return string(bytes), nil
}

// CreateFormationRequest represents a request to create a formation
type CreateFormationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	MaxLearners int    `json:"max_learners"`
}

// UpdateFormationRequest represents a trainer edit to a planned formation
type UpdateFormationRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	MaxLearners *int             `json:"max_learners,omitempty"`
	Status      *FormationStatus `json:"status,omitempty"`
}

// JoinRequest represents an enrollment attempt by invitation code
type JoinRequest struct {
	Code string `json:"code"`
}

// JoinResult is the caller-facing envelope for enrollment attempts.
// Business-rule violations (already enrolled, formation full) are expected
// outcomes carried in Message, not errors.
type JoinResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Title      string `json:"title,omitempty"`
	TrainingID string `json:"training_id,omitempty"`
}

// ListFilters defines filters for listing formations
type ListFilters struct {
	TrainerID     string
	ParticipantID string
	Status        FormationStatus
	Limit         int
	Offset        int
}
