package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rimo-de/attend-academy-timekeeper/internal/repository/memory"
	"github.com/rimo-de/attend-academy-timekeeper/internal/service"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := service.NewUserService(memory.NewUserRepository(), "")

	user, err := svc.Register(context.Background(), "alice", "correct horse", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected user id to be assigned")
	}
	if user.PasswordHash != "" {
		t.Error("register must not expose the password hash")
	}

	got, err := svc.Authenticate(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %q", got.Username)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc := service.NewUserService(memory.NewUserRepository(), "")

	if _, err := svc.Register(context.Background(), "alice", "correct horse", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "another pass", ""); !errors.Is(err, service.ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := service.NewUserService(memory.NewUserRepository(), "")

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "correct horse"},
		{"empty password", "alice", ""},
		{"short password", "alice", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.username, tc.password, ""); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestRegisterEnforcesSecretWhenConfigured(t *testing.T) {
	svc := service.NewUserService(memory.NewUserRepository(), "let-me-in")

	if _, err := svc.Register(context.Background(), "alice", "correct horse", "wrong"); !errors.Is(err, service.ErrInvalidRegistrationPassword) {
		t.Errorf("expected ErrInvalidRegistrationPassword, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "correct horse", "let-me-in"); err != nil {
		t.Errorf("expected success with correct secret, got %v", err)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	svc := service.NewUserService(memory.NewUserRepository(), "")

	if _, err := svc.Register(context.Background(), "alice", "correct horse", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody", "correct horse"); !errors.Is(err, service.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}
