package httpapi

import (
	"strings"
	"testing"
	"time"

	"barbershop/backend/internal/domain"
)

func TestOwnerLoginRequiresShopPassword(t *testing.T) {
	manager := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, "Barber#2024", "")

	if _, err := manager.Login(domain.LoginRequest{Role: "owner", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	resp, err := manager.Login(domain.LoginRequest{Role: " Owner ", Password: "Barber#2024"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleOwner || resp.AccessToken == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Role != domain.RoleOwner {
		t.Fatalf("expected owner actor, got %+v", actor)
	}
}

func TestEmployeeLoginWithoutConfiguredPassword(t *testing.T) {
	manager := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, "Barber#2024", "")

	resp, err := manager.Login(domain.LoginRequest{Role: "employee"})
	if err != nil {
		t.Fatalf("expected passwordless employee login, got %v", err)
	}
	if resp.Role != domain.RoleEmployee {
		t.Fatalf("unexpected role %s", resp.Role)
	}

	if _, err := manager.Login(domain.LoginRequest{Role: "admin", Password: "Barber#2024"}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestOwnerLoginDisabledWithoutPassword(t *testing.T) {
	manager := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, "", "")
	if _, err := manager.Login(domain.LoginRequest{Role: "owner", Password: "anything"}); err == nil {
		t.Fatalf("expected owner login to be disabled")
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	manager := NewAuthManager("test-secret-test-secret-test-secret", time.Minute, "Barber#2024", "")
	resp, err := manager.Login(domain.LoginRequest{Role: "owner", Password: "Barber#2024"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := NewAuthManager("another-secret-another-secret-another", time.Hour, "Barber#2024", "")
	foreign, _ := other.Login(domain.LoginRequest{Role: "owner", Password: "Barber#2024"})
	if _, err := manager.ParseToken(foreign.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestStoredPasswordIsHashed(t *testing.T) {
	manager := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, "Barber#2024", "Staff#2024")
	for role, stored := range manager.passwords {
		if !strings.HasPrefix(stored, "$2") {
			t.Fatalf("expected bcrypt hash for %s, got %q", role, stored)
		}
	}
}
