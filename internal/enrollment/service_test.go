package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

type fakeRepo struct {
	storage.Repository

	enrollErr error
	formation *models.Formation
	lastCode  string
}

func (f *fakeRepo) EnrollByCode(ctx context.Context, code, userID string) (*models.Formation, error) {
	f.lastCode = code
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	return f.formation, nil
}

func TestJoinByCodeSuccess(t *testing.T) {
	repo := &fakeRepo{
		formation: &models.Formation{
			ID:              "f1",
			Title:           "Go Fundamentals",
			CurrentLearners: 4,
			MaxLearners:     10,
		},
	}
	svc := NewService(repo)

	result, err := svc.JoinByCode(context.Background(), "ABCD2345", "u1")
	if err != nil {
		t.Fatalf("JoinByCode failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Title != "Go Fundamentals" || result.TrainingID != "f1" {
		t.Errorf("result missing formation details: %+v", result)
	}
}

func TestJoinByCodeEmptyCode(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	for _, code := range []string{"", "   ", "\t"} {
		result, err := svc.JoinByCode(context.Background(), code, "u1")
		if err != nil {
			t.Fatalf("blank code %q must not error: %v", code, err)
		}
		if result.Success || result.Message == "" {
			t.Errorf("blank code %q must be refused with a message: %+v", code, result)
		}
		if repo.lastCode != "" {
			t.Errorf("blank code %q reached storage", code)
		}
	}
}

func TestJoinByCodeBusinessRefusals(t *testing.T) {
	cases := []struct {
		name      string
		enrollErr error
	}{
		{"unknown code", storage.ErrCodeNotFound},
		{"already enrolled", storage.ErrAlreadyEnrolled},
		{"formation full", storage.ErrFormationFull},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(&fakeRepo{enrollErr: tc.enrollErr})

			result, err := svc.JoinByCode(context.Background(), "ABCD2345", "u1")
			if err != nil {
				t.Fatalf("business refusal must not surface as an error: %v", err)
			}
			if result.Success {
				t.Error("refused enrollment reported success")
			}
			if result.Message == "" {
				t.Error("refusal carries no user-facing message")
			}
		})
	}
}

func TestJoinByCodeUnexpectedFailure(t *testing.T) {
	svc := NewService(&fakeRepo{enrollErr: errors.New("connection reset")})

	result, err := svc.JoinByCode(context.Background(), "ABCD2345", "u1")
	if err == nil {
		t.Fatal("infrastructure failure must surface as an error")
	}
	if result.Success {
		t.Error("failed enrollment reported success")
	}
	if result.Message == "" {
		t.Error("failure carries no user-facing message")
	}
}

func TestJoinByCodeUnknownUser(t *testing.T) {
	svc := NewService(&fakeRepo{enrollErr: storage.ErrUserNotFound})

	_, err := svc.JoinByCode(context.Background(), "ABCD2345", "ghost")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
