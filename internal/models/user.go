package models

import "time"

// Role distinguishes trainers from learners
type Role string

const (
	RoleLearner Role = "learner"
	RoleTrainer Role = "trainer"
)

// User represents an account. TrainingsJoinedCount and LearnersCount are
// denormalized counters written only by the enrollment transaction.
type User struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Role                 Role      `json:"role"`
	PhotoURL             string    `json:"photo_url,omitempty"`
	TrainingsJoinedCount int       `json:"trainings_joined_count"`
	LearnersCount        int       `json:"learners_count"`
	CreatedAt            time.Time `json:"created_at"`
}

// IsTrainer reports whether the user holds the trainer role
func (u *User) IsTrainer() bool {
	return u.Role == RoleTrainer
}
