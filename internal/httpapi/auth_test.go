package httpapi

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

type userStoreStub struct {
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	user, exists := s.users[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func stubWithUser(t *testing.T, user domain.UserAccount) *userStoreStub {
	t.Helper()
	return &userStoreStub{users: map[string]domain.UserAccount{user.Username: user}}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, domain.UserAccount{
		ID: "user-1", Username: "alex", Name: "Alex Doe",
		Password: mustHashPassword(t, "admin123"),
		Role:     domain.RoleAdministration, Active: true,
	}))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "Alex", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.OperatorID != "user-1" || resp.Name != "Alex Doe" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	identity, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if identity.UserID != "user-1" || identity.UserName != "Alex Doe" || identity.Role != domain.RoleAdministration {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestLoginRejectsUnknownUserAndWrongPassword(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, domain.UserAccount{
		ID: "user-1", Username: "alex",
		Password: mustHashPassword(t, "admin123"),
		Role:     domain.RoleAdministration, Active: true,
	}))

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "x"}); err == nil {
		t.Fatalf("expected unknown user login to fail")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "alex", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password login to fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, domain.UserAccount{
		ID: "user-1", Username: "alex",
		Password: mustHashPassword(t, "admin123"),
		Role:     domain.RoleAdministration, Active: false,
	}))

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "alex", Password: "admin123"}); err == nil {
		t.Fatalf("expected inactive account login to fail")
	}
}

func TestLoginRejectsPlaintextStoredPassword(t *testing.T) {
	// A row holding an unhashed password must never authenticate.
	manager := NewAuthManager("test-secret", time.Hour, stubWithUser(t, domain.UserAccount{
		ID: "user-1", Username: "alex",
		Password: "admin123",
		Role:     domain.RoleAdministration, Active: true,
	}))

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "alex", Password: "admin123"}); err == nil {
		t.Fatalf("expected plaintext-stored password to be rejected")
	}
}

func TestParseTokenRejectsForgedAndGarbageTokens(t *testing.T) {
	user := domain.UserAccount{
		ID: "user-1", Username: "alex", Name: "Alex Doe",
		Password: mustHashPassword(t, "admin123"),
		Role:     domain.RoleAdministration, Active: true,
	}
	issuer := NewAuthManager("secret-a", time.Hour, stubWithUser(t, user))
	verifier := NewAuthManager("secret-b", time.Hour, stubWithUser(t, user))

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "alex", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", -time.Minute, stubWithUser(t, domain.UserAccount{
		ID: "user-1", Username: "alex",
		Password: mustHashPassword(t, "admin123"),
		Role:     domain.RoleAdministration, Active: true,
	}))
	// A non-positive TTL falls back to the default, so build an expired
	// token by signing with a manager whose clock-sensitive TTL elapsed.
	short := NewAuthManager("test-secret", time.Nanosecond+time.Millisecond, manager.users)

	resp, err := short.Login(context.Background(), domain.LoginRequest{Username: "alex", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}
