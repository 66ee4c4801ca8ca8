package auth

import (
	"context"
	"testing"
	"time"

	"collab-app/internal/config"
	"collab-app/internal/database"
	"collab-app/internal/models"
)

func newTestAuth() *Service {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:    []byte("test-secret"),
			ExpiresIn: time.Hour,
		},
	}
	return NewService(database.NewMemoryStore(), cfg)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth()

	resp, err := svc.Register(ctx, &models.RegisterRequest{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("register returned no token")
	}

	if _, err := svc.Register(ctx, &models.RegisterRequest{Username: "alice", Password: "another-pass"}); err == nil {
		t.Error("duplicate username was accepted")
	}

	if _, err := svc.Login(ctx, &models.LoginRequest{Username: "alice", Password: "correct-horse"}); err != nil {
		t.Errorf("login with correct password failed: %v", err)
	}
	if _, err := svc.Login(ctx, &models.LoginRequest{Username: "alice", Password: "wrong"}); err == nil {
		t.Error("login with wrong password succeeded")
	}
	if _, err := svc.Login(ctx, &models.LoginRequest{Username: "nobody", Password: "whatever"}); err == nil {
		t.Error("login for unknown user succeeded")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth()

	cases := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"empty username", models.RegisterRequest{Password: "long-enough"}},
		{"empty password", models.RegisterRequest{Username: "alice"}},
		{"short password", models.RegisterRequest{Username: "alice", Password: "short"}},
		{"short username", models.RegisterRequest{Username: "ab", Password: "long-enough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, &tc.req); err == nil {
				t.Error("invalid registration was accepted")
			}
		})
	}
}

func TestUserFromToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth()

	resp, err := svc.Register(ctx, &models.RegisterRequest{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, err := svc.UserFromToken(resp.Token)
	if err != nil {
		t.Fatalf("token did not round-trip: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("token carried username %q", user.Username)
	}

	if _, err := svc.UserFromToken("not-a-token"); err == nil {
		t.Error("garbage token was accepted")
	}
}
